// Package registry provides a client for the national grants registry API.
// This package centralizes all registry interactions for the application.
package registry

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotPDF marks a document download whose body is not a PDF. Items hitting
// this are skipped rather than retried.
var ErrNotPDF = errors.New("document is not a PDF")

// APIError represents an error response from the registry API
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Retryable reports whether the error is worth retrying. Server-side errors
// are transient; client-side errors will not change on retry.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500
}

// RateLimitError is returned when the registry answers 429. RetryAfter is the
// server-advised wait, already capped at the configured maximum.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("registry rate limit exceeded, retry after %v", e.RetryAfter)
}

// IsRetryable reports whether err is a transient registry failure
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrNotPDF) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	// Rate limits and network-level failures (timeouts, resets) are transient
	return true
}
