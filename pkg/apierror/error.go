package apierror

import (
	"encoding/json"
	"net/http"
)

// Error is a structured API error rendered in the response envelope.
type Error struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// ToJSON renders the error envelope.
func (e *Error) ToJSON() []byte {
	data, _ := json.Marshal(struct {
		Success bool   `json:"success"`
		Error   *Error `json:"error"`
	}{Success: false, Error: e})
	return data
}

func newError(status int, code, message, fallback string) *Error {
	if message == "" {
		message = fallback
	}
	return &Error{StatusCode: status, Code: code, Message: message}
}

// Unauthorized creates a 401 error for a missing or unknown dashboard key.
func Unauthorized(message string) *Error {
	return newError(http.StatusUnauthorized, "UNAUTHORIZED", message, "Authentication required")
}

// NotFound creates a 404 error.
func NotFound(message string) *Error {
	return newError(http.StatusNotFound, "NOT_FOUND", message, "Resource not found")
}

// Conflict creates a 409 error for a request the scanner state forbids.
func Conflict(message string) *Error {
	return newError(http.StatusConflict, "CONFLICT", message, "Conflicting scanner state")
}

// BadGateway creates a 502 error for an upstream portal failure.
func BadGateway(message string) *Error {
	return newError(http.StatusBadGateway, "UPSTREAM_ERROR", message, "Upstream service failed")
}

// InternalError creates a 500 error.
func InternalError(message string) *Error {
	return newError(http.StatusInternalServerError, "INTERNAL_ERROR", message, "An unexpected error occurred")
}

// ServiceUnavailable creates a 503 error.
func ServiceUnavailable(message string) *Error {
	return newError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, "Service temporarily unavailable")
}
