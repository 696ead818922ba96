// Package apperror provides domain-specific error types for bizdir.
// These errors carry an HTTP status code and a user-safe message. The Echo
// error handler maps them to JSON responses automatically.
//
// NEVER return raw database or infrastructure errors to the client. Always
// wrap them in an apperror type or return a generic internal error.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error type classifiers. Callers branch on these instead of inspecting
// driver error strings.
const (
	TypeNotFound     = "not_found"
	TypeBadRequest   = "bad_request"
	TypeUnauthorized = "unauthorized"
	TypeForbidden    = "forbidden"
	TypeConflict     = "conflict"
	TypeLocked       = "locked"
	TypeValidation   = "validation_error"
	TypeInternal     = "internal_error"
)

// AppError is the base error type for all domain errors. It carries an
// HTTP status code, a machine-readable error type, and a human-readable
// message safe to show to the client.
type AppError struct {
	// Code is the HTTP status code (e.g., 404, 400, 500).
	Code int `json:"-"`

	// Type is a machine-readable error classifier (e.g., "not_found").
	Type string `json:"type"`

	// Message is a human-readable description safe for the client.
	Message string `json:"message"`

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// --- Constructors for common error types ---

// NewNotFound creates a 404 Not Found error.
func NewNotFound(message string) *AppError {
	return &AppError{Code: http.StatusNotFound, Type: TypeNotFound, Message: message}
}

// NewBadRequest creates a 400 Bad Request error.
func NewBadRequest(message string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Type: TypeBadRequest, Message: message}
}

// NewUnauthorized creates a 401 Unauthorized error.
func NewUnauthorized(message string) *AppError {
	return &AppError{Code: http.StatusUnauthorized, Type: TypeUnauthorized, Message: message}
}

// NewForbidden creates a 403 Forbidden error.
func NewForbidden(message string) *AppError {
	return &AppError{Code: http.StatusForbidden, Type: TypeForbidden, Message: message}
}

// NewConflict creates a 409 Conflict error.
func NewConflict(message string) *AppError {
	return &AppError{Code: http.StatusConflict, Type: TypeConflict, Message: message}
}

// NewLocked creates a 423 Locked error.
func NewLocked(message string) *AppError {
	return &AppError{Code: http.StatusLocked, Type: TypeLocked, Message: message}
}

// NewValidation creates a 422 Unprocessable Entity error for validation failures.
func NewValidation(message string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Type: TypeValidation, Message: message}
}

// NewInternal creates a 500 Internal Server Error. The real error is stored
// in Internal for logging but the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     TypeInternal,
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// Is reports whether err is (or wraps) an AppError of the given type.
func Is(err error, errType string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// IsNotFound reports whether err is a not_found AppError.
func IsNotFound(err error) bool {
	return Is(err, TypeNotFound)
}

// SafeMessage returns the client-safe error message from an error. If the
// error is an AppError, returns its Message field (which is safe to expose).
// For any other error type, returns a generic message to prevent leaking
// internal details like table names, query structure, or stack traces.
func SafeMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the HTTP status code from an AppError, or 500 for
// any other error type.
func SafeCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
