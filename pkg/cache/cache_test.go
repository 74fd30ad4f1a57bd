package cache

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/charmbracelet/log"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	// Get always returns miss
	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit {
		t.Error("NullCache.Get should always return miss")
	}
	if data != nil {
		t.Error("NullCache.Get should return nil data")
	}

	// Set does nothing (no error)
	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}

	// Still a miss after Set
	_, hit, _ = c.Get(ctx, "key")
	if hit {
		t.Error("NullCache should not store data")
	}

	// Delete does nothing (no error)
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestDefaultKeyer(t *testing.T) {
	k := NewDefaultKeyer()

	if got := k.TrendingKey(20); got != "trending:books:20" {
		t.Errorf("TrendingKey = %q", got)
	}
	if got := k.AuthorKey("ursula-k-le-guin"); got != "author:ursula-k-le-guin" {
		t.Errorf("AuthorKey = %q", got)
	}
	if k.TrendingKey(10) == k.TrendingKey(20) {
		t.Error("Different limits should produce different keys")
	}
}

func TestScopedKeyer(t *testing.T) {
	scoped := NewScopedKeyer(NewDefaultKeyer(), "staging:")

	if got := scoped.TrendingKey(5); got != "staging:trending:books:5" {
		t.Errorf("ScopedKeyer TrendingKey unexpected: %s", got)
	}
	if got := scoped.AuthorKey("lem"); got != "staging:author:lem" {
		t.Errorf("ScopedKeyer AuthorKey unexpected: %s", got)
	}
}

func TestScopedKeyerNilInner(t *testing.T) {
	// Should use DefaultKeyer when inner is nil
	scoped := NewScopedKeyer(nil, "prefix:")
	if key := scoped.AuthorKey("x"); key != "prefix:author:x" {
		t.Errorf("Unexpected key with nil inner: %s", key)
	}
}

// =============================================================================
// Memory
// =============================================================================

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryTTL(t *testing.T) {
	clk := newClock()
	m := NewMemory[string](10, WithClock(clk.Now))

	e := m.Set("k", "v", time.Minute)
	if !e.FetchedAt.Equal(clk.Now()) || !e.ExpiresAt.Equal(clk.Now().Add(time.Minute)) {
		t.Errorf("entry times = %v..%v", e.FetchedAt, e.ExpiresAt)
	}

	// Fresh for every read before T
	for _, d := range []time.Duration{0, 30 * time.Second, 59 * time.Second} {
		clk.Advance(d - clk.Now().Sub(e.FetchedAt))
		if got, ok := m.Get("k"); !ok || got.Value != "v" {
			t.Errorf("at +%v: Get() = %v, %v; want fresh", d, got.Value, ok)
		}
	}

	// Stale at and after T
	clk.Advance(time.Second)
	if _, ok := m.Get("k"); ok {
		t.Error("Get() should miss once the TTL has elapsed")
	}
	got, ok := m.Peek("k")
	if !ok || got.Value != "v" {
		t.Errorf("Peek() = %v, %v; want stale value", got.Value, ok)
	}
	if got.Fresh(clk.Now()) {
		t.Error("peeked entry should report stale")
	}
	if got.Remaining(clk.Now()) > 0 {
		t.Errorf("Remaining = %v, want <= 0", got.Remaining(clk.Now()))
	}
}

func TestMemoryLRUEviction(t *testing.T) {
	var evicted []string
	m := NewMemory[int](2, WithEvictCallback(func(k string) { evicted = append(evicted, k) }))

	m.Set("a", 1, time.Hour)
	m.Set("b", 2, time.Hour)
	m.Get("a") // a becomes most recently used
	m.Set("c", 3, time.Hour)

	if _, ok := m.Peek("b"); ok {
		t.Error("least recently used entry should be evicted")
	}
	if _, ok := m.Peek("a"); !ok {
		t.Error("recently used entry should survive")
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Errorf("evicted = %v, want [b]", evicted)
	}
}

func TestMemorySetEntryAndDelete(t *testing.T) {
	clk := newClock()
	m := NewMemory[string](0, WithClock(clk.Now))

	m.SetEntry("k", Entry[string]{Value: "remote", FetchedAt: clk.Now(), ExpiresAt: clk.Now().Add(time.Second)})
	if got, ok := m.Get("k"); !ok || got.Value != "remote" {
		t.Errorf("Get() after SetEntry = %v, %v", got.Value, ok)
	}

	m.Delete("k")
	if _, ok := m.Peek("k"); ok {
		t.Error("Peek() should miss after Delete")
	}
	if m.Len() != 0 {
		t.Errorf("Len after Delete = %d", m.Len())
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	m := NewMemory[int](64)
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				key := string(rune('a' + (i+j)%26))
				m.Set(key, j, time.Minute)
				m.Get(key)
				m.Peek(key)
			}
		}()
	}
	wg.Wait()
	if m.Len() > 26 {
		t.Errorf("Len = %d, want <= 26", m.Len())
	}
}

// =============================================================================
// Distributed
// =============================================================================

type failingCache struct{ calls int }

var errDown = errors.New("connection refused")

func (f *failingCache) Get(context.Context, string) ([]byte, bool, error) {
	f.calls++
	return nil, false, errDown
}
func (f *failingCache) Set(context.Context, string, []byte, time.Duration) error {
	f.calls++
	return errDown
}
func (f *failingCache) Delete(context.Context, string) error {
	f.calls++
	return errDown
}
func (f *failingCache) Ping(context.Context) error { return errDown }
func (f *failingCache) Close() error               { return nil }

func testLogger() (*log.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return log.New(&buf), &buf
}

func TestDistributedDegradesFailures(t *testing.T) {
	ctx := context.Background()
	backend := &failingCache{}
	logger, buf := testLogger()
	d := NewDistributed(backend, 0, logger)

	if _, ok := d.Get(ctx, "k"); ok {
		t.Error("Get() on failing backend should miss")
	}
	d.SetWithExpiry(ctx, "k", []byte("v"), time.Minute)
	d.Delete(ctx, "k")

	if backend.calls != 3 {
		t.Errorf("backend calls = %d, want 3", backend.calls)
	}
	out := buf.String()
	if strings.Count(out, "distributed cache unavailable") != 3 {
		t.Errorf("expected 3 warnings, got:\n%s", out)
	}
	if !strings.Contains(out, "DISTRIBUTED_CACHE_ERROR") {
		t.Errorf("warnings should carry the error code, got:\n%s", out)
	}
	if err := d.Ping(ctx); err == nil {
		t.Error("Ping() should surface the backend error")
	}
}

func TestDistributedNilBackend(t *testing.T) {
	d := NewDistributed(nil, 0, nil)
	if _, ok := d.Get(context.Background(), "k"); ok {
		t.Error("nil backend should behave like NullCache")
	}
	if err := d.Ping(context.Background()); err != nil {
		t.Errorf("Ping() without Pinger = %v, want nil", err)
	}
}

func TestDistributedEntryRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	d := NewDistributed(NewRedis(RedisConfig{Addrs: []string{mr.Addr()}}), time.Second, nil)
	defer d.Close()

	type book struct {
		Title string `json:"title"`
	}
	now := time.Now().Truncate(time.Second)
	want := Entry[book]{Value: book{Title: "Solaris"}, FetchedAt: now, ExpiresAt: now.Add(time.Hour)}
	SetEntry(ctx, d, "book:1", want, time.Hour)

	got, ok := GetEntry[book](ctx, d, "book:1")
	if !ok {
		t.Fatal("GetEntry() missed after SetEntry")
	}
	if got.Value.Title != "Solaris" || !got.ExpiresAt.Equal(want.ExpiresAt) || !got.FetchedAt.Equal(want.FetchedAt) {
		t.Errorf("GetEntry() = %+v, want %+v", got, want)
	}

	if ttl := mr.TTL("book:1"); ttl <= 59*time.Minute || ttl > time.Hour {
		t.Errorf("redis TTL = %v, want about 1h", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if _, ok := GetEntry[book](ctx, d, "book:1"); ok {
		t.Error("entry should expire with its TTL")
	}
}

func TestDistributedSkipsNonPositiveTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	d := NewDistributed(NewRedis(RedisConfig{Addrs: []string{mr.Addr()}}), time.Second, nil)

	SetEntry(context.Background(), d, "old", Entry[int]{Value: 1}, 0)
	if mr.Exists("old") {
		t.Error("entry without TTL should not be written")
	}
}

func TestDistributedCorruptValueIsMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	logger, buf := testLogger()
	d := NewDistributed(NewRedis(RedisConfig{Addrs: []string{mr.Addr()}}), time.Second, logger)

	mr.Set("k", "{not json")
	if _, ok := GetEntry[string](context.Background(), d, "k"); ok {
		t.Error("corrupt value should be a miss")
	}
	if !strings.Contains(buf.String(), "decode") {
		t.Errorf("expected decode failure to be logged, got:\n%s", buf.String())
	}
}

func TestDistributedRedisErrorsDegrade(t *testing.T) {
	mr := miniredis.RunT(t)
	d := NewDistributed(NewRedis(RedisConfig{Addrs: []string{mr.Addr()}}), time.Second, nil)

	mr.SetError("LOADING Redis is loading the dataset in memory")
	if _, ok := d.Get(context.Background(), "k"); ok {
		t.Error("Get() should miss when redis errors")
	}
	d.SetWithExpiry(context.Background(), "k", []byte("v"), time.Minute)

	mr.SetError("")
	if mr.Exists("k") {
		t.Error("SetWithExpiry should not have written during the outage")
	}
}

// =============================================================================
// Backends
// =============================================================================

func TestRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	r := NewRedis(RedisConfig{Addrs: []string{mr.Addr()}, Timeout: time.Second})
	defer r.Close()

	if err := r.Ping(ctx); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}

	if _, ok, err := r.Get(ctx, "missing"); ok || err != nil {
		t.Errorf("Get(missing) = %v, %v; want miss without error", ok, err)
	}

	if err := r.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	data, ok, err := r.Get(ctx, "k")
	if err != nil || !ok || string(data) != "v" {
		t.Errorf("Get(k) = %q, %v, %v", data, ok, err)
	}

	if err := r.Set(ctx, "forever", []byte("v"), 0); err != nil {
		t.Fatalf("Set(ttl=0) error: %v", err)
	}
	if ttl := mr.TTL("forever"); ttl != 0 {
		t.Errorf("TTL(forever) = %v, want none", ttl)
	}

	if err := r.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if mr.Exists("k") {
		t.Error("key should be deleted")
	}
}

func TestPrefixed(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := NewPrefixed(NewRedis(RedisConfig{Addrs: []string{mr.Addr()}}), "shelfcache:")

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if !mr.Exists("shelfcache:k") {
		t.Error("key should be stored with prefix")
	}
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Error("Get() should find prefixed key")
	}
	if err := c.(Pinger).Ping(ctx); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
	c.Delete(ctx, "k")
	if mr.Exists("shelfcache:k") {
		t.Error("Delete() should remove prefixed key")
	}

	if inner := NewNullCache(); NewPrefixed(inner, "") != inner {
		t.Error("empty prefix should return inner cache")
	}
}

func TestMemcachedUnreachableDegrades(t *testing.T) {
	m := NewMemcached(50*time.Millisecond, "127.0.0.1:1")
	d := NewDistributed(m, time.Second, nil)

	if _, ok := d.Get(context.Background(), "k"); ok {
		t.Error("Get() on unreachable memcached should miss")
	}
	if err := d.Ping(context.Background()); err == nil {
		t.Error("Ping() on unreachable memcached should fail")
	}
}

func TestMemcachedContextChecked(t *testing.T) {
	m := NewMemcached(0, "127.0.0.1:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := m.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
	if err := m.Set(ctx, "k", nil, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("Set() error = %v, want context.Canceled", err)
	}
}

func TestMemcachedKey(t *testing.T) {
	if got := memcachedKey("author:lem"); got != "author:lem" {
		t.Errorf("legal key rewritten: %q", got)
	}
	long := strings.Repeat("x", 300)
	if got := memcachedKey(long); len(got) > maxMemcachedKey || !strings.HasPrefix(got, "h:") {
		t.Errorf("long key = %q", got)
	}
	if got := memcachedKey("has space"); !strings.HasPrefix(got, "h:") {
		t.Errorf("key with space = %q", got)
	}
	if a, b := memcachedKey(long), memcachedKey(long+"y"); a == b || len(a) != 66 {
		t.Errorf("hashed keys = %q, %q; want distinct h:+64 hex", a, b)
	}
}
