// Package refresh schedules background revalidation of cached values.
//
// A [Scheduler] decides, on every cache read, whether the value is close
// enough to expiry to be refreshed, makes sure the same key is not refreshed
// more than once per interval, and runs the refresh on a bounded pool after
// a random jitter. Refresh failures are logged and never reach the reader,
// who already has a cached value.
package refresh

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	errs "github.com/matzehuels/shelfcache/pkg/errors"
	"github.com/matzehuels/shelfcache/pkg/observability"
)

// Skip reasons reported to [observability.RefreshHooks].
const (
	SkipInFlight = "in_flight"
	SkipNotDue   = "not_due"
	SkipInterval = "interval"
	SkipPoolFull = "pool_full"
	SkipClosed   = "closed"
)

// pruneAt is the number of tracked keys above which old timestamps are dropped.
const pruneAt = 4096

// Config controls when and how refreshes run.
type Config struct {
	// MinInterval is the minimum time between two triggers for one key.
	MinInterval time.Duration

	// Threshold is the fraction of the TTL below which a value is due.
	// With 0.25 a 1h entry is refreshed once less than 15m remain.
	// Zero refreshes only expired values.
	Threshold float64

	// MaxJitter bounds the random delay before each refresh. Zero disables it.
	MaxJitter time.Duration

	// Concurrency caps the number of refreshes running at once (min 1).
	Concurrency int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinInterval: 30 * time.Second,
		Threshold:   0.25,
		MaxJitter:   3 * time.Second,
		Concurrency: 8,
	}
}

// Refresher reloads one key. It runs detached from the request that
// triggered it; ctx is cancelled only by [Scheduler.Close].
type Refresher func(ctx context.Context) error

// Scheduler triggers background refreshes. All methods are safe for
// concurrent use.
type Scheduler struct {
	cfg      Config
	inFlight func(key string) bool
	logger   *log.Logger
	now      func() time.Time
	jitter   func() time.Duration

	mu     sync.Mutex
	last   map[string]time.Time
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	pool   errgroup.Group
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithClock replaces time.Now for the threshold and interval checks.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler. inFlight reports whether a fetch for a key is
// already running (usually the coalescing group's InFlight); nil means never.
func New(cfg Config, inFlight func(key string) bool, logger *log.Logger, opts ...Option) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if inFlight == nil {
		inFlight = func(string) bool { return false }
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Scheduler{
		cfg:      cfg,
		inFlight: inFlight,
		logger:   logger,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
	s.jitter = s.randomJitter
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.pool.SetLimit(cfg.Concurrency)
	return s
}

// MaybeTrigger starts a background refresh of key and reports whether it
// did. A refresh starts only when all of these hold:
//   - no fetch for key is in flight
//   - expiresAt is zero, or less than Threshold*ttl remains
//   - MinInterval has passed since the last trigger for key
//   - the pool has a free slot
//
// It never blocks on the refresh itself.
func (s *Scheduler) MaybeTrigger(key string, expiresAt time.Time, ttl time.Duration, refresh Refresher) bool {
	hooks := observability.Refresh()

	if s.inFlight(key) {
		hooks.OnRefreshSkipped(s.ctx, key, SkipInFlight)
		return false
	}
	now := s.now()
	if !expiresAt.IsZero() && ttl > 0 {
		if remaining := expiresAt.Sub(now); float64(remaining) >= s.cfg.Threshold*float64(ttl) {
			hooks.OnRefreshSkipped(s.ctx, key, SkipNotDue)
			return false
		}
	}

	prev, reason := s.claim(key, now)
	if reason != "" {
		hooks.OnRefreshSkipped(s.ctx, key, reason)
		return false
	}

	task := uuid.NewString()
	if !s.pool.TryGo(func() error {
		s.run(task, key, refresh)
		return nil
	}) {
		s.release(key, prev)
		hooks.OnRefreshSkipped(s.ctx, key, SkipPoolFull)
		s.logger.Debug("refresh pool full", "key", key)
		return false
	}
	return true
}

// Wait blocks until all running refreshes have finished.
func (s *Scheduler) Wait() {
	_ = s.pool.Wait()
}

// Close stops accepting triggers, cancels refreshes that are still in their
// jitter delay or running, and waits for them to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.Wait()
}

// claim records now as the last trigger for key unless the interval has not
// passed. It returns the previous timestamp so a failed launch can undo it.
func (s *Scheduler) claim(key string, now time.Time) (time.Time, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return time.Time{}, SkipClosed
	}
	prev, seen := s.last[key]
	if seen && now.Sub(prev) < s.cfg.MinInterval {
		return prev, SkipInterval
	}
	if len(s.last) >= pruneAt {
		for k, t := range s.last {
			if now.Sub(t) >= s.cfg.MinInterval {
				delete(s.last, k)
			}
		}
	}
	s.last[key] = now
	return prev, ""
}

func (s *Scheduler) release(key string, prev time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev.IsZero() {
		delete(s.last, key)
		return
	}
	s.last[key] = prev
}

func (s *Scheduler) run(task, key string, refresh Refresher) {
	logger := s.logger.With("task", task, "key", key)
	defer func() {
		if r := recover(); r != nil {
			err := errs.Wrap(errs.ErrCodeInternal, fmt.Errorf("%v", r), "refresh panicked")
			logger.Error("background refresh panicked", "err", err)
			observability.Refresh().OnRefreshComplete(s.ctx, key, 0, err)
		}
	}()

	if d := s.jitter(); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-s.ctx.Done():
			timer.Stop()
			return
		}
	}

	hooks := observability.Refresh()
	hooks.OnRefreshStart(s.ctx, key)
	start := time.Now()
	err := refresh(s.ctx)
	elapsed := time.Since(start)
	hooks.OnRefreshComplete(s.ctx, key, elapsed, err)

	if err != nil {
		logger.Warn("background refresh failed", "code", errs.GetCode(err), "err", err, "elapsed", elapsed)
		return
	}
	logger.Debug("background refresh complete", "elapsed", elapsed)
}

func (s *Scheduler) randomJitter() time.Duration {
	if s.cfg.MaxJitter <= 0 {
		return 0
	}
	return rand.N(s.cfg.MaxJitter)
}
