// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers register hooks at startup
// to receive events about cache tiers, background refreshes, and upstream calls.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// Hooks are registered by main, not by libraries, so the cache packages never
// import a metrics backend directly. [Metrics] is the bundled implementation,
// backed by VictoriaMetrics counters.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    m := observability.NewMetrics()
//	    observability.SetCacheHooks(m)
//	    observability.SetRefreshHooks(m)
//	    observability.SetHTTPHooks(m)
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Cache().OnCacheHit(ctx, observability.TierMemory)
package observability

import (
	"context"
	"sync"
	"time"
)

// Tier names passed to [CacheHooks].
const (
	TierMemory      = "memory"
	TierDistributed = "distributed"
)

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache tiers and the tiered facade.
type CacheHooks interface {
	// OnCacheHit records a fresh hit in tier.
	OnCacheHit(ctx context.Context, tier string)

	// OnCacheMiss records a miss in tier.
	OnCacheMiss(ctx context.Context, tier string)

	// OnCacheStale records a stale value served while it is revalidated.
	OnCacheStale(ctx context.Context, tier string)

	// OnCachePending records a caller that got a loading state instead of data.
	OnCachePending(ctx context.Context)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, tier string, size int)

	// OnCacheError records a tier failure that was degraded to a miss.
	OnCacheError(ctx context.Context, tier string, err error)
}

// =============================================================================
// Refresh Hooks
// =============================================================================

// RefreshHooks receives events from background revalidation.
type RefreshHooks interface {
	// OnRefreshStart records a refresh that passed all trigger checks.
	OnRefreshStart(ctx context.Context, key string)

	// OnRefreshComplete records the outcome of a background refresh.
	OnRefreshComplete(ctx context.Context, key string, duration time.Duration, err error)

	// OnRefreshSkipped records a trigger that was rejected, with the reason.
	OnRefreshSkipped(ctx context.Context, key, reason string)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from HTTP client operations.
type HTTPHooks interface {
	// OnRequest records an outgoing HTTP request.
	OnRequest(ctx context.Context, method, host, path string)

	// OnResponse records an HTTP response.
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records an HTTP error (network failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)          {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)         {}
func (NoopCacheHooks) OnCacheStale(context.Context, string)        {}
func (NoopCacheHooks) OnCachePending(context.Context)              {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int)     {}
func (NoopCacheHooks) OnCacheError(context.Context, string, error) {}

// NoopRefreshHooks is a no-op implementation of RefreshHooks.
type NoopRefreshHooks struct{}

func (NoopRefreshHooks) OnRefreshStart(context.Context, string)                          {}
func (NoopRefreshHooks) OnRefreshComplete(context.Context, string, time.Duration, error) {}
func (NoopRefreshHooks) OnRefreshSkipped(context.Context, string, string)                {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	cacheHooks   CacheHooks   = NoopCacheHooks{}
	refreshHooks RefreshHooks = NoopRefreshHooks{}
	httpHooks    HTTPHooks    = NoopHTTPHooks{}
	hooksMu      sync.RWMutex
)

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetRefreshHooks registers custom refresh hooks.
// This should be called once at application startup before any cache operations.
func SetRefreshHooks(h RefreshHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		refreshHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
// This should be called once at application startup before any HTTP operations.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Refresh returns the registered refresh hooks.
func Refresh() RefreshHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return refreshHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	cacheHooks = NoopCacheHooks{}
	refreshHooks = NoopRefreshHooks{}
	httpHooks = NoopHTTPHooks{}
}
