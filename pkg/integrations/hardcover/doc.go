// Package hardcover provides a client for the Hardcover GraphQL API.
//
// # Overview
//
// Hardcover (https://hardcover.app) is the book catalog behind the trending
// books endpoint. The API is rate limited per token, so callers should pair
// this client with [httputil.NewThrottledClient] and put it behind the tiered
// cache rather than calling it on every request.
//
// # Usage
//
//	client := hardcover.NewClient("", os.Getenv("HARDCOVER_API_TOKEN"), nil, logger)
//	books, err := client.TrendingBooks(ctx, 20)
//
// # Error envelope
//
// GraphQL reports failures with HTTP 200 and a top-level "errors" array.
// Such a response is never treated as success: throttling messages become
// TRANSIENT_ERROR so the retry policy backs off, everything else is a
// CLIENT_ERROR.
//
// [httputil.NewThrottledClient]: github.com/matzehuels/shelfcache/pkg/httputil.NewThrottledClient
package hardcover
