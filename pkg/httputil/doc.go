// Package httputil provides HTTP utilities for the upstream metadata clients.
//
// # Overview
//
// This package provides infrastructure used by every upstream client:
//
//   - [Policy]: retry with exponential backoff, jitter, and growing timeouts
//   - [ThrottledTransport]: client-side rate limiting in front of an upstream
//
// # Retry
//
// [Policy.Execute] retries only transient failures (see
// [errors.IsRetryable]):
//
//   - Network errors and per-attempt timeouts
//   - 5xx server errors
//   - 429 rate limit responses (honouring Retry-After)
//
// Client errors and malformed responses fail on the first attempt, since
// repeating a bad request or a broken contract rarely helps:
//
//	p := httputil.DefaultPolicy()
//	err := p.Execute(ctx, func(ctx context.Context) error {
//	    return client.Get(ctx, url, &out)
//	})
//
// Attempt i sleeps BaseDelay*2^i plus a random jitter in [0, BaseDelay),
// capped at MaxDelay, before the next attempt, and each attempt's timeout
// grows by 1.5x up to MaxTimeout. A Retry-After longer than MaxDelay ends the
// retries early.
//
// # Configuration
//
// Defaults (see [DefaultPolicy]):
//
//   - Attempts: 3
//   - Base backoff: 500ms
//   - First attempt timeout: 10s
//   - Timeout ceiling: 60s
//
// [errors.IsRetryable]: github.com/matzehuels/shelfcache/pkg/errors.IsRetryable
package httputil
