package httputil

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/getsentry/sentry-go"
)

// Error codes of the error envelope
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeInvalidViewport    = "INVALID_VIEWPORT"
	ErrCodeInvalidCursor      = "INVALID_CURSOR"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid       = "TOKEN_INVALID"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeSuperseded         = "SUPERSEDED"
	ErrCodeLoadInProgress     = "LOAD_IN_PROGRESS"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodePrimaryQueryFailed = "PRIMARY_QUERY_FAILED"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and message
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[HTTP] Failed to encode response: status=%d err=%v", status, err)
		}
	}
}

// WriteError writes an error response:
// {"error": {"code": "ERROR_CODE", "message": "Human readable message"}}
func WriteError(w http.ResponseWriter, status int, code string, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// WriteBadRequest writes a 400 Bad Request error
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// WriteBadRequestWithCode writes a 400 Bad Request error with a custom code
func WriteBadRequestWithCode(w http.ResponseWriter, code string, message string) {
	WriteError(w, http.StatusBadRequest, code, message)
}

// WriteUnauthorized writes a 401 Unauthorized error
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// WriteUnauthorizedWithCode writes a 401 Unauthorized error with a custom code
func WriteUnauthorizedWithCode(w http.ResponseWriter, code string, message string) {
	WriteError(w, http.StatusUnauthorized, code, message)
}

// WriteForbidden writes a 403 Forbidden error
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// WriteNotFound writes a 404 Not Found error
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// WriteConflictWithCode writes a 409 Conflict error with a custom code
func WriteConflictWithCode(w http.ResponseWriter, code string, message string) {
	WriteError(w, http.StatusConflict, code, message)
}

// WriteInternalError writes a 500 error and reports err to Sentry.
func WriteInternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	CaptureError(r, err)
	WriteError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// WritePrimaryQueryFailed writes a retryable 503 and reports err to Sentry.
func WritePrimaryQueryFailed(w http.ResponseWriter, r *http.Request, err error) {
	CaptureError(r, err)
	w.Header().Set("Retry-After", "1")
	WriteError(w, http.StatusServiceUnavailable, ErrCodePrimaryQueryFailed, "Feed is temporarily unavailable, retry")
}

// CaptureError sends err to the Sentry hub of the request, if any.
// The hub is only present when sentryhttp wraps the router.
func CaptureError(r *http.Request, err error) {
	if r == nil || err == nil {
		return
	}
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
	}
}
