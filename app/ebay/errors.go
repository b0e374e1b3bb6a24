package ebay

import (
	"errors"
	"fmt"
)

// ErrAuthentication is returned when the marketplace keeps rejecting a freshly
// issued token. It is not retried.
var ErrAuthentication = errors.New("marketplace authentication failed")

// APIError is a non-2xx response the caller did not declare as expected.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketplace %s %s returned %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// RejectionError explains why a raw item could not become a snapshot.
type RejectionError struct {
	Field  string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func reject(field, reason string) *RejectionError {
	return &RejectionError{Field: field, Reason: reason}
}
