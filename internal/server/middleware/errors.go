// Package middleware provides the HTTP middleware stack for the local
// status server: request identification and panic recovery with a
// structured error envelope.
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/3leaps/gobeacon/internal/errors"
)

// ErrorResponse is the envelope emitted for middleware-level failures.
// It is the same shape handlers use, so clients parse one format.
type ErrorResponse = apperrors.HTTPErrorResponse

type ctxKey int

const requestIDKey ctxKey = 0

// RequestIDHeader is the inbound/outbound request correlation header.
const RequestIDHeader = "X-Request-ID"

// RequestID attaches a correlation id to each request's context. An
// inbound X-Request-ID is honored; otherwise one is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the correlation id from the request context, or
// empty when RequestID did not run.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Recovery converts handler panics into a 500 envelope instead of
// tearing down the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				writeErrorResponse(w, http.StatusInternalServerError, apperrors.HTTPError{
					Code:      apperrors.CodeInternalError,
					Message:   fmt.Sprintf("panic: %v", rec),
					RequestID: GetRequestID(r.Context()),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is an alias for Recovery kept for wiring symmetry.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

func writeErrorResponse(w http.ResponseWriter, status int, body apperrors.HTTPError) {
	apperrors.WriteHTTPError(w, status, body)
}
