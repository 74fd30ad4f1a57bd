// Package tiered puts a two-level cache, request coalescing, retries, and
// stale-while-revalidate in front of a slow upstream.
//
// # Read path
//
// [Manager.Get] answers from the first source that has the key:
//
//  1. Memory, fresh: returned as [StateFresh]; a refresh is armed if the
//     entry is close to expiry.
//  2. Memory, stale: returned as [StateStale] right away; a background
//     refresh is armed.
//  3. A fetch already in flight: joined for at most the bounded wait, then
//     [StatePending] if it has not finished.
//  4. Distributed tier: copied into memory and returned as [StateFresh].
//  5. Otherwise a new fetch starts (coalesced per key, retried per policy)
//     and is awaited for at most the bounded wait.
//
// A fetch that outlives the bounded wait keeps running and fills both tiers
// for later callers. Only a foreground fetch that fails while its caller is
// still waiting returns an error; background failures are logged.
package tiered

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/shelfcache/pkg/cache"
	"github.com/matzehuels/shelfcache/pkg/coalesce"
	errs "github.com/matzehuels/shelfcache/pkg/errors"
	"github.com/matzehuels/shelfcache/pkg/httputil"
	"github.com/matzehuels/shelfcache/pkg/observability"
	"github.com/matzehuels/shelfcache/pkg/refresh"
)

// Defaults for zero-valued [Options] fields.
const (
	DefaultMemoryTTL      = 5 * time.Minute
	DefaultDistributedTTL = time.Hour
	DefaultBoundedWait    = 2 * time.Second
)

// State tells the caller what kind of answer it got.
type State string

const (
	StateFresh   State = "fresh"   // Within TTL
	StateStale   State = "stale"   // Past TTL, refresh under way
	StatePending State = "pending" // No value yet, fetch under way
)

// Result is the answer to a [Manager.Get]. Data and FetchedAt are zero, and
// left out of the JSON form, when State is [StatePending].
type Result[T any] struct {
	State     State     `json:"state"`
	Data      T         `json:"data,omitzero"`
	FetchedAt time.Time `json:"fetched_at,omitzero"`
}

// ErrClosed is returned by [Manager.Get] when a fetch would have to start
// after [Manager.Close].
var ErrClosed = errs.New(errs.ErrCodeInternal, "tiered cache is closed")

// Ready reports whether the result carries data.
func (r Result[T]) Ready() bool {
	return r.State != StatePending
}

// Fetcher loads a value from the upstream. It is called under the retry
// policy, with a per-attempt timeout in ctx.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Options configures a [Manager]. Zero values use the package defaults.
type Options struct {
	MemoryTTL      time.Duration // Default DefaultMemoryTTL
	DistributedTTL time.Duration // Default DefaultDistributedTTL
	Capacity       int           // Memory tier size, default cache.DefaultCapacity

	// BoundedWait is how long Get waits for a fetch before answering
	// pending. Zero uses DefaultBoundedWait; negative never waits.
	BoundedWait time.Duration

	Retry   httputil.Policy // Zero Attempts uses httputil.DefaultPolicy
	Refresh *refresh.Config // Nil uses refresh.DefaultConfig

	Distributed *cache.Distributed // Nil disables the distributed tier
	Logger      *log.Logger
	Clock       func() time.Time // For tests; default time.Now
}

// Manager is a tiered cache for values of type T. Create one per value type
// with [New]; all methods are safe for concurrent use.
type Manager[T any] struct {
	mem     *cache.Memory[T]
	dist    *cache.Distributed
	group   coalesce.Group[cache.Entry[T]]
	sched   *refresh.Scheduler
	policy  httputil.Policy
	memTTL  time.Duration
	distTTL time.Duration
	wait    time.Duration
	logger  *log.Logger
	now     func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex // guards closed and fetches.Add
	closed  bool
	fetches sync.WaitGroup
}

// New creates a Manager.
func New[T any](opts Options) *Manager[T] {
	if opts.MemoryTTL <= 0 {
		opts.MemoryTTL = DefaultMemoryTTL
	}
	if opts.DistributedTTL <= 0 {
		opts.DistributedTTL = DefaultDistributedTTL
	}
	switch {
	case opts.BoundedWait == 0:
		opts.BoundedWait = DefaultBoundedWait
	case opts.BoundedWait < 0:
		opts.BoundedWait = 0
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = httputil.DefaultPolicy()
	}
	rcfg := refresh.DefaultConfig()
	if opts.Refresh != nil {
		rcfg = *opts.Refresh
	}
	if opts.Distributed == nil {
		opts.Distributed = cache.NewDistributed(nil, 0, opts.Logger)
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	m := &Manager[T]{
		mem: cache.NewMemory[T](opts.Capacity,
			cache.WithClock(opts.Clock),
			cache.WithEvictCallback(func(key string) {
				opts.Logger.Debug("dropped from memory tier", "key", key)
			}),
		),
		dist:    opts.Distributed,
		policy:  opts.Retry,
		memTTL:  opts.MemoryTTL,
		distTTL: opts.DistributedTTL,
		wait:    opts.BoundedWait,
		logger:  opts.Logger,
		now:     opts.Clock,
	}
	m.sched = refresh.New(rcfg, m.group.InFlight, opts.Logger, refresh.WithClock(opts.Clock))
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Get returns the value for key, loading it with fetch when no tier has it.
// See the package documentation for the exact order of lookups.
//
// The returned error is always one of the codes in pkg/errors, typically
// NOT_FOUND, CLIENT_ERROR, TRANSIENT_ERROR (retries exhausted) or
// MALFORMED_RESPONSE, or ctx.Err() if the caller gave up first.
func (m *Manager[T]) Get(ctx context.Context, key string, fetch Fetcher[T]) (Result[T], error) {
	hooks := observability.Cache()

	if e, ok := m.mem.Peek(key); ok {
		m.sched.MaybeTrigger(key, e.ExpiresAt, m.memTTL, m.refresher(key, e.FetchedAt, fetch))
		if e.Fresh(m.now()) {
			hooks.OnCacheHit(ctx, observability.TierMemory)
			return Result[T]{State: StateFresh, Data: e.Value, FetchedAt: e.FetchedAt}, nil
		}
		hooks.OnCacheStale(ctx, observability.TierMemory)
		return Result[T]{State: StateStale, Data: e.Value, FetchedAt: e.FetchedAt}, nil
	}
	hooks.OnCacheMiss(ctx, observability.TierMemory)

	if call, ok := m.group.Join(key); ok {
		return m.await(ctx, call)
	}

	if e, ok := cache.GetEntry[T](ctx, m.dist, key); ok && e.Fresh(m.now()) {
		hooks.OnCacheHit(ctx, observability.TierDistributed)
		m.mem.SetEntry(key, m.memoryEntry(e))
		m.sched.MaybeTrigger(key, e.ExpiresAt, m.distTTL, m.refresher(key, e.FetchedAt, fetch))
		return Result[T]{State: StateFresh, Data: e.Value, FetchedAt: e.FetchedAt}, nil
	}
	hooks.OnCacheMiss(ctx, observability.TierDistributed)

	call, err := m.start(key, fetch)
	if err != nil {
		return Result[T]{}, err
	}
	return m.await(ctx, call)
}

// Settle blocks until the fetch in flight for key, if any, has finished or
// ctx ends. It is meant for one-shot callers such as the CLI that would
// rather wait than show a pending state.
func (m *Manager[T]) Settle(ctx context.Context, key string) error {
	call, ok := m.group.Join(key)
	if !ok {
		return nil
	}
	select {
	case <-call.Done():
		_, err := call.Result()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Invalidate removes key from both tiers. A fetch already in flight still
// stores its result when it finishes.
func (m *Manager[T]) Invalidate(ctx context.Context, key string) {
	m.mem.Delete(key)
	m.dist.Delete(ctx, key)
}

// Wait blocks until all fetches and background refreshes have finished.
func (m *Manager[T]) Wait() {
	m.sched.Wait()
	m.fetches.Wait()
}

// Close cancels fetches and refreshes still running and waits for them.
// The distributed tier is shared and is not closed.
func (m *Manager[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.cancel()
	m.mu.Unlock()

	m.sched.Close()
	m.fetches.Wait()
}

// start begins a coalesced fetch for key, or joins the one in flight.
// It fails with [ErrClosed] once Close has been called.
func (m *Manager[T]) start(key string, fetch Fetcher[T]) (*coalesce.Call[cache.Entry[T]], error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.fetches.Add(1)
	m.mu.Unlock()

	call, started := m.group.Run(key, func() (cache.Entry[T], error) {
		defer m.fetches.Done()
		return m.load(m.ctx, key, fetch)
	})
	if !started {
		m.fetches.Done()
	}
	return call, nil
}

// load runs fetch under the retry policy and writes the result through to
// both tiers before the coalesced call settles.
func (m *Manager[T]) load(ctx context.Context, key string, fetch Fetcher[T]) (cache.Entry[T], error) {
	policy := m.policy
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, err error, delay time.Duration) {
			m.logger.Info("retrying upstream fetch",
				"key", key,
				"attempt", attempt,
				"code", errs.GetCode(err),
				"delay", delay,
			)
		}
	}

	v, err := httputil.Do(ctx, policy, func(ctx context.Context) (T, error) {
		return fetch(ctx)
	})
	if err != nil {
		m.logger.Warn("upstream fetch failed", "key", key, "code", errs.GetCode(err), "err", err)
		return cache.Entry[T]{}, err
	}

	now := m.now()
	cache.SetEntry(ctx, m.dist, key, cache.Entry[T]{Value: v, FetchedAt: now, ExpiresAt: now.Add(m.distTTL)}, m.distTTL)
	return m.mem.Set(key, v, m.memTTL), nil
}

// refresher reloads key in the background. If another instance has already
// refreshed the distributed tier since seen, that copy is promoted instead of
// calling the upstream again.
func (m *Manager[T]) refresher(key string, seen time.Time, fetch Fetcher[T]) refresh.Refresher {
	return func(ctx context.Context) error {
		if e, ok := cache.GetEntry[T](ctx, m.dist, key); ok && e.FetchedAt.After(seen) && e.Fresh(m.now()) {
			m.mem.SetEntry(key, m.memoryEntry(e))
			return nil
		}
		call, err := m.start(key, fetch)
		if err != nil {
			return err
		}
		_, err = call.Result()
		return err
	}
}

func (m *Manager[T]) await(ctx context.Context, call *coalesce.Call[cache.Entry[T]]) (Result[T], error) {
	e, settled, err := call.Wait(ctx, m.wait)
	if !settled {
		if err != nil {
			return Result[T]{}, err
		}
		observability.Cache().OnCachePending(ctx)
		return Result[T]{State: StatePending}, nil
	}
	if err != nil {
		return Result[T]{}, err
	}
	return Result[T]{State: StateFresh, Data: e.Value, FetchedAt: e.FetchedAt}, nil
}

// memoryEntry caps a distributed entry's expiry at the memory TTL.
func (m *Manager[T]) memoryEntry(e cache.Entry[T]) cache.Entry[T] {
	e.ExpiresAt = minTime(e.ExpiresAt, m.now().Add(m.memTTL))
	return e
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
