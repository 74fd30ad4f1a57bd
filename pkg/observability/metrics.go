package observability

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// Metrics implements every hook interface with VictoriaMetrics counters and
// histograms. Each Metrics owns its own set, so several instances can live in
// one process without clashing.
type Metrics struct {
	set *metrics.Set
}

var (
	_ CacheHooks   = (*Metrics)(nil)
	_ RefreshHooks = (*Metrics)(nil)
	_ HTTPHooks    = (*Metrics)(nil)
)

// NewMetrics creates an empty metrics set.
func NewMetrics() *Metrics {
	return &Metrics{set: metrics.NewSet()}
}

// WritePrometheus writes all metrics in Prometheus text format. Process
// metrics (memory, goroutines, fds) are appended when withProcess is true.
func (m *Metrics) WritePrometheus(w io.Writer, withProcess bool) {
	m.set.WritePrometheus(w)
	if withProcess {
		metrics.WriteProcessMetrics(w)
	}
}

func (m *Metrics) counter(format string, args ...any) *metrics.Counter {
	return m.set.GetOrCreateCounter(fmt.Sprintf(format, args...))
}

func (m *Metrics) OnCacheHit(_ context.Context, tier string) {
	m.counter(`shelfcache_cache_hits_total{tier=%q}`, tier).Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, tier string) {
	m.counter(`shelfcache_cache_misses_total{tier=%q}`, tier).Inc()
}

func (m *Metrics) OnCacheStale(_ context.Context, tier string) {
	m.counter(`shelfcache_cache_stale_total{tier=%q}`, tier).Inc()
}

func (m *Metrics) OnCachePending(context.Context) {
	m.counter(`shelfcache_cache_pending_total`).Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, tier string, size int) {
	m.counter(`shelfcache_cache_sets_total{tier=%q}`, tier).Inc()
	m.counter(`shelfcache_cache_set_bytes_total{tier=%q}`, tier).Add(size)
}

func (m *Metrics) OnCacheError(_ context.Context, tier string, _ error) {
	m.counter(`shelfcache_cache_errors_total{tier=%q}`, tier).Inc()
}

func (m *Metrics) OnRefreshStart(context.Context, string) {
	m.counter(`shelfcache_refresh_started_total`).Inc()
}

func (m *Metrics) OnRefreshComplete(_ context.Context, _ string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.counter(`shelfcache_refresh_completed_total{result=%q}`, result).Inc()
	m.set.GetOrCreateHistogram(`shelfcache_refresh_duration_seconds`).Update(d.Seconds())
}

func (m *Metrics) OnRefreshSkipped(_ context.Context, _ string, reason string) {
	m.counter(`shelfcache_refresh_skipped_total{reason=%q}`, reason).Inc()
}

func (m *Metrics) OnRequest(_ context.Context, method, host, _ string) {
	m.counter(`shelfcache_upstream_requests_total{method=%q,host=%q}`, method, host).Inc()
}

func (m *Metrics) OnResponse(_ context.Context, _, host, _ string, status int, d time.Duration) {
	m.counter(`shelfcache_upstream_responses_total{host=%q,status="%d"}`, host, status).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf(`shelfcache_upstream_duration_seconds{host=%q}`, host)).Update(d.Seconds())
}

func (m *Metrics) OnError(_ context.Context, _, host, _ string, _ error) {
	m.counter(`shelfcache_upstream_errors_total{host=%q}`, host).Inc()
}
