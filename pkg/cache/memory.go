package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the number of entries a [Memory] holds when none is given.
const DefaultCapacity = 1024

// Entry is a cached value with its provenance. Entries are never mutated
// after they are stored; a refresh stores a new Entry.
type Entry[V any] struct {
	Value     V         `json:"value"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Fresh reports whether the entry is still within its TTL at now.
func (e Entry[V]) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Remaining returns the time left until expiry at now (negative once stale).
func (e Entry[V]) Remaining(now time.Time) time.Duration {
	return e.ExpiresAt.Sub(now)
}

// Memory is a capacity-bounded LRU of typed entries.
//
// Expired entries stay in the LRU until evicted so that callers can serve
// them stale through [Memory.Peek]. All methods are safe for concurrent use.
type Memory[V any] struct {
	lru *lru.Cache[string, Entry[V]]
	now func() time.Time
}

// MemoryOption configures a [Memory].
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	now     func() time.Time
	onEvict func(key string)
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *memoryConfig) { c.now = now }
}

// WithEvictCallback registers fn to be called whenever an entry leaves the
// cache, by capacity eviction or Delete.
func WithEvictCallback(fn func(key string)) MemoryOption {
	return func(c *memoryConfig) { c.onEvict = fn }
}

// NewMemory creates a Memory that holds at most capacity entries.
// A capacity <= 0 uses [DefaultCapacity].
func NewMemory[V any](capacity int, opts ...MemoryOption) *Memory[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cfg := memoryConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	var onEvict func(string, Entry[V])
	if cfg.onEvict != nil {
		onEvict = func(key string, _ Entry[V]) { cfg.onEvict(key) }
	}
	// NewWithEvict only fails for a non-positive size.
	l, _ := lru.NewWithEvict[string, Entry[V]](capacity, onEvict)
	return &Memory[V]{lru: l, now: cfg.now}
}

// Get returns the entry for key only if it is still fresh.
func (m *Memory[V]) Get(key string) (Entry[V], bool) {
	e, ok := m.lru.Get(key)
	if !ok || !e.Fresh(m.now()) {
		return Entry[V]{}, false
	}
	return e, true
}

// Peek returns the entry for key whether fresh or stale.
func (m *Memory[V]) Peek(key string) (Entry[V], bool) {
	return m.lru.Get(key)
}

// Set stores v under key with the given ttl, stamped with the current time.
func (m *Memory[V]) Set(key string, v V, ttl time.Duration) Entry[V] {
	now := m.now()
	e := Entry[V]{Value: v, FetchedAt: now, ExpiresAt: now.Add(ttl)}
	m.lru.Add(key, e)
	return e
}

// SetEntry stores a prebuilt entry, e.g. one read from the distributed tier.
func (m *Memory[V]) SetEntry(key string, e Entry[V]) {
	m.lru.Add(key, e)
}

// Delete removes key.
func (m *Memory[V]) Delete(key string) {
	m.lru.Remove(key)
}

// Len returns the number of entries held, fresh or stale.
func (m *Memory[V]) Len() int {
	return m.lru.Len()
}
