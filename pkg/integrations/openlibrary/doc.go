// Package openlibrary provides an HTTP client for Open Library author metadata.
//
// # Overview
//
// This package resolves an author name to an Open Library record
// (https://openlibrary.org/dev/docs/api/authors) and returns biography,
// dates, and candidate photo URLs.
//
// # Usage
//
//	client := openlibrary.NewClient("", nil, logger)
//	author, err := client.FetchAuthor(ctx, "Ursula K. Le Guin")
//
// A 429 from Open Library is retryable; every other 4xx is final.
package openlibrary
