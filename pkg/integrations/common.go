package integrations

import (
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
)

const httpTimeout = 30 * time.Second

// NewHTTPClient creates an HTTP client with a safety-net timeout for upstream
// requests. Per-attempt timeouts set by the retry policy are normally shorter.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// NormalizeName converts a free-form name into a stable cache key segment.
// It lowercases, trims, collapses runs of whitespace and punctuation into a
// single hyphen, and drops leading/trailing hyphens.
func NormalizeName(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// URLEncode percent-encodes a string for use in URLs.
// This is a convenience wrapper around [url.QueryEscape].
func URLEncode(s string) string { return url.QueryEscape(s) }
