package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized means the service rejected the API key
	ErrUnauthorized = errors.New("invalid or revoked API key")
	// ErrUnavailable means the service answered with a server-side failure
	ErrUnavailable = errors.New("scan service unavailable")
)

// APIError is a non-2xx answer from the scan service
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("scan service returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("scan service returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case e.StatusCode >= 500:
		return ErrUnavailable
	default:
		return nil
	}
}

func (e *APIError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}
