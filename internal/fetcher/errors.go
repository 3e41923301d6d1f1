package fetcher

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind represents the category of failure that ended a fetch operation
type ErrorKind string

const (
	// KindBlocked indicates an anti-automation challenge page was served instead of the product page
	KindBlocked ErrorKind = "blocked"
	// KindNotFound indicates the page, or the price markup on it, does not exist
	KindNotFound ErrorKind = "not_found"
	// KindNetwork indicates a connectivity, timeout, or transient server failure
	KindNetwork ErrorKind = "network"
	// KindParseFailure indicates the price text was located but is not a valid amount
	KindParseFailure ErrorKind = "parse_failure"
)

// FetchError represents a structured error from a fetch operation
type FetchError struct {
	Kind       ErrorKind
	Retryable  bool
	StatusCode int
	Attempts   int
	Message    string
	Cause      error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Structural reports whether the failure means the page layout is no longer
// recognized. Operators should treat these as drift alerts.
func (e *FetchError) Structural() bool {
	return e.Kind == KindNotFound || e.Kind == KindParseFailure
}

// KindOf returns the failure kind carried by err, or "" when err is not a FetchError.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// NewBlockedError creates a blocked error
func NewBlockedError(statusCode int, message string) *FetchError {
	return &FetchError{
		Kind:       KindBlocked,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(statusCode int, message string) *FetchError {
	return &FetchError{
		Kind:       KindNotFound,
		Retryable:  false,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewNetworkError creates a network error
func NewNetworkError(cause error) *FetchError {
	return &FetchError{
		Kind:      KindNetwork,
		Retryable: true,
		Message:   "network request failed",
		Cause:     cause,
	}
}

// NewServerError creates a network-kind error for a transient server status
func NewServerError(statusCode int) *FetchError {
	return &FetchError{
		Kind:       KindNetwork,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    "server returned an error",
	}
}

// NewParseError creates a parse failure
func NewParseError(text string, cause error) *FetchError {
	return &FetchError{
		Kind:      KindParseFailure,
		Retryable: false,
		Message:   fmt.Sprintf("cannot parse price %q", text),
		Cause:     cause,
	}
}

// ClassifyHTTPStatus classifies a non-success HTTP status code into an appropriate FetchError
func ClassifyHTTPStatus(statusCode int) *FetchError {
	switch {
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return NewNotFoundError(statusCode, "page does not exist")
	case statusCode == http.StatusForbidden ||
		statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable:
		return NewBlockedError(statusCode, "request rejected by source")
	case statusCode >= 500:
		return NewServerError(statusCode)
	default:
		return NewNotFoundError(statusCode, fmt.Sprintf("unexpected status code: %d", statusCode))
	}
}
