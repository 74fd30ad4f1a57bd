// Package coalesce runs at most one producer per key at a time and shares
// its result with every caller that asks for the same key meanwhile.
//
// It is close to golang.org/x/sync/singleflight but exposes the in-flight
// call as a handle, so callers can join an existing call without starting
// one ([Group.Join]), probe for one ([Group.InFlight]), and stop waiting
// after a deadline without cancelling the producer ([Call.Wait]).
package coalesce

import (
	"context"
	"fmt"
	"sync"
	"time"

	errs "github.com/matzehuels/shelfcache/pkg/errors"
)

// Call is an in-flight or settled producer invocation.
type Call[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Done is closed once the producer has returned and the call has been
// removed from its group.
func (c *Call[T]) Done() <-chan struct{} {
	return c.done
}

// Result blocks until the call settles and returns its outcome.
func (c *Call[T]) Result() (T, error) {
	<-c.done
	return c.val, c.err
}

// Wait blocks for at most d, or until ctx ends. settled reports whether the
// producer finished in time; when it did not, the producer keeps running.
// A d <= 0 only checks whether the call has already settled.
func (c *Call[T]) Wait(ctx context.Context, d time.Duration) (v T, settled bool, err error) {
	select {
	case <-c.done:
		return c.val, true, c.err
	default:
	}
	if d <= 0 {
		return v, false, nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.done:
		return c.val, true, c.err
	case <-timer.C:
		return v, false, nil
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}

// Group holds the in-flight calls, one per key. The zero value is ready to use.
type Group[T any] struct {
	mu sync.Mutex
	m  map[string]*Call[T]
}

// Run returns the in-flight call for key, or starts fn on its own goroutine
// and returns the new call. started reports which happened. The check and
// the insert happen under one lock, so concurrent callers never start two
// producers for the same key.
//
// A panic in fn settles the call with an INTERNAL_ERROR.
func (g *Group[T]) Run(key string, fn func() (T, error)) (c *Call[T], started bool) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[string]*Call[T])
	}
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		return c, false
	}
	c = &Call[T]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	go g.doCall(c, key, fn)
	return c, true
}

// Join returns the in-flight call for key without starting one.
func (g *Group[T]) Join(key string) (*Call[T], bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.m[key]
	return c, ok
}

// InFlight reports whether a producer is running for key.
func (g *Group[T]) InFlight(key string) bool {
	_, ok := g.Join(key)
	return ok
}

// Len returns the number of in-flight calls.
func (g *Group[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

func (g *Group[T]) doCall(c *Call[T], key string, fn func() (T, error)) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			c.val = zero
			c.err = errs.Wrap(errs.ErrCodeInternal, fmt.Errorf("%v", r), "producer for %q panicked", key)
		}
		g.mu.Lock()
		if g.m[key] == c {
			delete(g.m, key)
		}
		g.mu.Unlock()
		close(c.done)
	}()
	c.val, c.err = fn()
}
