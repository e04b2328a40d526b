package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for remote operations.
var (
	// ErrJobNotFound indicates the server does not know the job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrUnauthorized indicates the session was rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrServiceUnavailable indicates the service answered with a 5xx.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// APIError wraps an unexpected HTTP response with context.
type APIError struct {
	// Op is the operation that failed (e.g., "GetStatus").
	Op string

	// StatusCode is the HTTP status the server answered with.
	StatusCode int

	// Body is a truncated copy of the response body, for diagnostics.
	Body string

	// Err is the classified underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: http %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusNotFound:
		return ErrJobNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code >= 500:
		return ErrServiceUnavailable
	}
	return nil
}

// IsNotFound returns true if the error indicates an unknown job id.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}

// IsUnauthorized returns true if the error indicates a rejected session.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsServiceUnavailable returns true if the error indicates a server-side failure.
func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}
