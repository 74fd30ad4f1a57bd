// Package cache provides the storage tiers behind the tiered cache.
//
// # Tiers
//
// Two tiers are provided:
//
//   - [Memory]: an in-process, capacity-bounded LRU of typed [Entry] values.
//     Fresh reads use [Memory.Get]; stale-while-revalidate reads use
//     [Memory.Peek], which returns expired entries as well.
//   - [Distributed]: a wrapper around a shared byte store ([Cache]) that
//     never fails. Every backend error is logged as DISTRIBUTED_CACHE_ERROR
//     and turned into a miss or a no-op.
//
// # Backends
//
// [Cache] is implemented by [Redis], [Memcached], and [NullCache]. Use
// [NewPrefixed] to namespace keys when several applications share a backend.
//
// # Keys
//
// [Keyer] builds the cache keys used by the books service. Use
// [NewScopedKeyer] for per-tenant namespaces.
package cache

import (
	"context"
	"time"
)

// Cache is a shared byte store with per-key expiry.
//
// Get reports a miss as (nil, false, nil); a non-nil error means the
// backend itself failed.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Pinger is implemented by backends that can check connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
