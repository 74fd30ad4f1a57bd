package httputil

import (
	"context"
	"math/rand/v2"
	"time"

	errs "github.com/matzehuels/shelfcache/pkg/errors"
)

// DefaultMaxTimeout is the hard ceiling for a single attempt's timeout.
const DefaultMaxTimeout = 60 * time.Second

// DefaultMaxDelay is the longest backoff sleep between two attempts.
const DefaultMaxDelay = 30 * time.Second

// timeoutGrowth is the factor applied to the per-attempt timeout after each
// transient failure.
const timeoutGrowth = 1.5

// Policy describes how [Execute] retries an upstream call.
//
// Attempts is the total number of calls made (the first one included), so a
// policy with Attempts 3 calls fn at most three times. Values below 1 are
// treated as 1.
type Policy struct {
	Attempts       int           // Total attempts, first call included
	BaseDelay      time.Duration // Backoff base; attempt i sleeps BaseDelay*2^i plus jitter
	InitialTimeout time.Duration // Timeout of the first attempt; 0 disables per-attempt timeouts
	MaxTimeout     time.Duration // Ceiling for the growing timeout; 0 means DefaultMaxTimeout
	MaxDelay       time.Duration // Ceiling for one backoff sleep; 0 means DefaultMaxDelay

	// OnRetry, if set, is called before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)

	// jitter returns a random duration in [0, n). Tests replace it.
	jitter func(n time.Duration) time.Duration
}

// DefaultPolicy returns 3 attempts, 500ms base delay, and a 10s first timeout.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:       3,
		BaseDelay:      500 * time.Millisecond,
		InitialTimeout: 10 * time.Second,
		MaxTimeout:     DefaultMaxTimeout,
		MaxDelay:       DefaultMaxDelay,
	}
}

// Execute runs fn until it succeeds, fails with a non-retryable error, or the
// attempts are exhausted.
//
// Each attempt receives a context bounded by the current timeout. Cancelling
// that context aborts the in-flight HTTP request, so a timed-out attempt
// releases its connection. After a transient failure the next timeout grows by
// 1.5x, capped at MaxTimeout, and Execute sleeps BaseDelay*2^attempt plus a
// random jitter in [0, BaseDelay), never more than MaxDelay. A rate-limit
// error carrying Retry-After stretches the sleep to at least that long; if the
// upstream asks for more than MaxDelay, Execute gives up and returns that
// error instead of sleeping.
//
// Client and malformed-response errors are returned immediately. If the parent
// context ends, ctx.Err() is returned.
func (p Policy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)
	timeout := p.InitialTimeout
	var lastErr error

	for i := range attempts {
		lastErr = p.attempt(ctx, timeout, fn)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errs.IsRetryable(lastErr) || i == attempts-1 {
			return lastErr
		}

		delay, ok := p.backoff(i, lastErr)
		if !ok {
			return lastErr
		}
		if p.OnRetry != nil {
			p.OnRetry(i+1, lastErr, delay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		timeout = p.nextTimeout(timeout)
	}
	return lastErr
}

// Do is the value-returning form of [Policy.Execute].
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (p Policy) attempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(actx)
}

// backoff returns the sleep before the attempt after attempt. It reports
// false when the upstream's Retry-After is longer than MaxDelay.
func (p Policy) backoff(attempt int, err error) (time.Duration, bool) {
	ceiling := p.MaxDelay
	if ceiling <= 0 {
		ceiling = DefaultMaxDelay
	}

	delay := ceiling
	if attempt < 63 && p.BaseDelay <= ceiling>>attempt {
		delay = p.BaseDelay << attempt
	}
	if p.BaseDelay > 0 {
		delay = min(delay+p.randJitter(p.BaseDelay), ceiling)
	}
	if ra := time.Duration(errs.RetryAfter(err)) * time.Second; ra > delay {
		if ra > ceiling {
			return 0, false
		}
		delay = ra
	}
	return delay, true
}

func (p Policy) nextTimeout(cur time.Duration) time.Duration {
	if cur <= 0 {
		return cur
	}
	ceiling := p.MaxTimeout
	if ceiling <= 0 {
		ceiling = DefaultMaxTimeout
	}
	return min(time.Duration(float64(cur)*timeoutGrowth), ceiling)
}

func (p Policy) randJitter(n time.Duration) time.Duration {
	if p.jitter != nil {
		return p.jitter(n)
	}
	return rand.N(n)
}
