// Package integrations provides HTTP clients for book metadata APIs.
//
// # Overview
//
// This package contains low-level API clients for fetching book and author
// metadata. Each upstream has its own subpackage:
//
//   - [hardcover]: Hardcover GraphQL API (trending books, editions, covers)
//   - [openlibrary]: Open Library REST API (author details and photos)
//
// # Client Pattern
//
// All upstream clients embed [Client] and return plain structs:
//
//	client := hardcover.NewClient("", token, nil, logger)
//	books, err := client.TrendingBooks(ctx, 20)
//
// Clients do not retry and do not cache. Retries belong to
// [httputil.Policy]; caching belongs to the tiered cache in front of them.
//
// # Outcome Classification
//
// [Client.Do] maps every response onto one error code from [errors]:
//
//   - 2xx with a JSON body that decodes and validates: success
//   - 404: NOT_FOUND
//   - 429: TRANSIENT_ERROR carrying the Retry-After hint
//   - other 4xx: CLIENT_ERROR (never retried)
//   - 5xx, timeouts, connection failures: TRANSIENT_ERROR
//   - anything else (HTML error pages, truncated JSON, schema mismatch):
//     MALFORMED_RESPONSE, logged with a body snippet
//
// # Adding a New Upstream
//
//  1. Create a subpackage: pkg/integrations/<upstream>/
//  2. Define response structs matching the API schema, with a Validate method
//     for required fields
//  3. Embed [Client] and expose one method per logical query
//  4. Wire it into [books] behind a tiered cache
//
// [hardcover]: github.com/matzehuels/shelfcache/pkg/integrations/hardcover
// [openlibrary]: github.com/matzehuels/shelfcache/pkg/integrations/openlibrary
// [httputil.Policy]: github.com/matzehuels/shelfcache/pkg/httputil.Policy
// [errors]: github.com/matzehuels/shelfcache/pkg/errors
// [books]: github.com/matzehuels/shelfcache/pkg/books
package integrations
