package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"

	errs "github.com/matzehuels/shelfcache/pkg/errors"
	"github.com/matzehuels/shelfcache/pkg/observability"
)

// DefaultOpTimeout bounds each distributed cache call.
const DefaultOpTimeout = 500 * time.Millisecond

// Distributed wraps a shared [Cache] so that it can never fail a request.
//
// Every backend error, including timeouts and undecodable values, is wrapped
// as DISTRIBUTED_CACHE_ERROR, logged at warn level, reported to the cache
// hooks, and turned into a miss (reads) or a no-op (writes).
type Distributed struct {
	backend Cache
	timeout time.Duration
	logger  *log.Logger
}

// NewDistributed wraps backend. A timeout <= 0 uses [DefaultOpTimeout];
// a nil backend behaves like [NullCache].
func NewDistributed(backend Cache, timeout time.Duration, logger *log.Logger) *Distributed {
	if backend == nil {
		backend = NewNullCache()
	}
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Distributed{backend: backend, timeout: timeout, logger: logger}
}

// Get returns the raw bytes for key, or false on a miss or any failure.
func (d *Distributed) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	data, ok, err := d.backend.Get(ctx, key)
	if err != nil {
		d.fail(ctx, "get", key, err)
		return nil, false
	}
	return data, ok
}

// SetWithExpiry stores data under key for ttl. Failures are logged only.
func (d *Distributed) SetWithExpiry(ctx context.Context, key string, data []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.backend.Set(ctx, key, data, ttl); err != nil {
		d.fail(ctx, "set", key, err)
		return
	}
	observability.Cache().OnCacheSet(ctx, observability.TierDistributed, len(data))
}

// Delete removes key. Failures are logged only.
func (d *Distributed) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.backend.Delete(ctx, key); err != nil {
		d.fail(ctx, "delete", key, err)
	}
}

// Ping checks backend connectivity. Unlike the other methods it returns the
// error, for health checks and the CLI. Backends without a ping always pass.
func (d *Distributed) Ping(ctx context.Context) error {
	p, ok := d.backend.(Pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return errs.Wrap(errs.ErrCodeDistributedCache, err, "ping distributed cache")
	}
	return nil
}

// Close closes the backend.
func (d *Distributed) Close() error {
	return d.backend.Close()
}

func (d *Distributed) fail(ctx context.Context, op, key string, err error) {
	err = errs.Wrap(errs.ErrCodeDistributedCache, err, "%s %s", op, key)
	d.logger.Warn("distributed cache unavailable, degrading to miss",
		"op", op,
		"key", key,
		"code", errs.ErrCodeDistributedCache,
		"err", err,
	)
	observability.Cache().OnCacheError(ctx, observability.TierDistributed, err)
}

// GetEntry reads a JSON-encoded [Entry] from d. A value that does not decode
// is reported like any other backend failure and treated as a miss.
func GetEntry[V any](ctx context.Context, d *Distributed, key string) (Entry[V], bool) {
	data, ok := d.Get(ctx, key)
	if !ok {
		return Entry[V]{}, false
	}
	var e Entry[V]
	if err := json.Unmarshal(data, &e); err != nil {
		d.fail(ctx, "decode", key, err)
		return Entry[V]{}, false
	}
	return e, true
}

// SetEntry writes e to d as JSON, expiring after ttl. Nothing is written
// for a ttl <= 0.
func SetEntry[V any](ctx context.Context, d *Distributed, key string, e Entry[V], ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		d.fail(ctx, "encode", key, err)
		return
	}
	d.SetWithExpiry(ctx, key, data, ttl)
}
