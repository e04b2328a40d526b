// Package errors defines the HTTP error envelope shared by the local
// status server and its handlers.
package errors

import (
	"encoding/json"
	"net/http"

	"github.com/3leaps/gobeacon/pkg/remote"
)

// Stable machine-readable error codes.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// HTTPError is the body of one error envelope.
type HTTPError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse is the JSON envelope every error response carries.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// WriteHTTPError writes an error envelope with the given status.
func WriteHTTPError(w http.ResponseWriter, status int, body HTTPError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: body})
}

// NotFoundHandler is the router-level 404 handler.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteHTTPError(w, http.StatusNotFound, HTTPError{
		Code:    CodeNotFound,
		Message: "resource not found",
	})
}

// MethodNotAllowedHandler is the router-level 405 handler.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	WriteHTTPError(w, http.StatusMethodNotAllowed, HTTPError{
		Code:    CodeMethodNotAllowed,
		Message: "method not allowed",
	})
}

// RespondWithError maps an application error to an envelope and status.
// Remote-service errors keep their classification; everything else is a
// 500 with a generic message so internals never leak to clients.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case remote.IsNotFound(err):
		WriteHTTPError(w, http.StatusNotFound, HTTPError{
			Code:    CodeNotFound,
			Message: "resource not found",
		})
	case remote.IsServiceUnavailable(err):
		WriteHTTPError(w, http.StatusServiceUnavailable, HTTPError{
			Code:    CodeServiceUnavailable,
			Message: "upstream service unavailable",
		})
	case remote.IsUnauthorized(err):
		WriteHTTPError(w, http.StatusBadGateway, HTTPError{
			Code:    CodeServiceUnavailable,
			Message: "upstream rejected credentials",
		})
	default:
		WriteHTTPError(w, http.StatusInternalServerError, HTTPError{
			Code:    CodeInternalError,
			Message: "internal error",
		})
	}
}
