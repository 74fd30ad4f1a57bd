package errors

import (
	"strings"
	"unicode"
)

// maxKeyLength bounds cache keys; memcached rejects keys over 250 bytes and
// the distributed prefix needs room.
const maxKeyLength = 200

// ValidateKey validates a cache key before it reaches either tier.
//
// The validation rules:
//   - No empty keys
//   - No control characters or whitespace (memcached forbids both)
//   - Maximum length of 200 bytes
func ValidateKey(key string) error {
	if key == "" {
		return New(ErrCodeInvalidInput, "cache key cannot be empty")
	}
	if len(key) > maxKeyLength {
		return New(ErrCodeInvalidInput, "cache key too long (max %d bytes)", maxKeyLength)
	}
	for _, r := range key {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidInput, "cache key contains invalid characters: %q", key)
		}
	}
	return nil
}

// ValidateAuthorName validates a free-form author name taken from a request.
func ValidateAuthorName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return New(ErrCodeInvalidInput, "author name cannot be empty")
	}
	if len(name) > 120 {
		return New(ErrCodeInvalidInput, "author name too long (max 120 characters)")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "author name contains invalid control characters")
		}
	}
	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	// Simple scheme validation without full URL parsing
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}
