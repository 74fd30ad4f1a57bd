// Package errors provides structured error types for shelfcache.
//
// Every failure that leaves the upstream clients is classified with a [Code]
// so that callers can decide between retrying, showing a loading state, or
// telling the user the data is temporarily unavailable.
//
// # Error Codes
//
// The classification used by the fetch and retry layers:
//   - CLIENT_ERROR, NOT_FOUND: the upstream rejected the request; never retried
//   - TRANSIENT_ERROR: timeouts, network failures, 5xx, rate limits; retried
//   - MALFORMED_RESPONSE: wrong content type or unparsable body; never retried
//   - DISTRIBUTED_CACHE_ERROR: shared cache failure; always degraded to a miss
//
// # Usage
//
//	err := errors.New(errors.ErrCodeClient, "bad query: %s", msg)
//	if errors.IsRetryable(err) {
//	    // back off and try again
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeTransient, origErr, "fetch %s", url)
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Upstream classification
	ErrCodeClient    Code = "CLIENT_ERROR"
	ErrCodeNotFound  Code = "NOT_FOUND"
	ErrCodeTransient Code = "TRANSIENT_ERROR"
	ErrCodeMalformed Code = "MALFORMED_RESPONSE"

	// Rate limiting, carried inside a TRANSIENT_ERROR
	ErrCodeRateLimited Code = "RATE_LIMITED"

	// Shared cache failures. Never surfaced to callers.
	ErrCodeDistributedCache Code = "DISTRIBUTED_CACHE_ERROR"

	// Input validation errors
	ErrCodeInvalidInput Code = "INVALID_INPUT"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// Only the outermost *Error in the chain is consulted, so a TRANSIENT_ERROR
// wrapping a CLIENT_ERROR is transient.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether err should trigger another attempt.
// Transient errors are retryable, as is a bare context.DeadlineExceeded
// produced by a per-attempt timeout. Everything else is final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if code := GetCode(err); code != "" {
		return code == ErrCodeTransient
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsClient reports whether err is a client-class failure (including NOT_FOUND).
func IsClient(err error) bool {
	code := GetCode(err)
	return code == ErrCodeClient || code == ErrCodeNotFound
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch e.Code {
		case ErrCodeTransient, ErrCodeMalformed:
			return "upstream temporarily unavailable"
		}
		return e.Message
	}
	return err.Error()
}

// HTTPStatus maps an error to the status code a controller should respond with.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeClient, ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeTransient:
		return http.StatusServiceUnavailable
	case ErrCodeMalformed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// RateLimitedError provides additional information for rate-limited responses.
type RateLimitedError struct {
	RetryAfter int // Seconds to wait before retrying
	Message    string
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %d seconds", e.RetryAfter)
	}
	return "rate limited"
}

// Code returns the error code for this error type.
func (e *RateLimitedError) Code() Code {
	return ErrCodeRateLimited
}

// RetryAfter returns the server-requested delay carried by err, if any.
func RetryAfter(err error) int {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
