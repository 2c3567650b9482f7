package trellis

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is an error classified with the HTTP status it maps to.
// Classification happens where a failure is detected: parameter validators,
// the dispatch pipeline, and handlers all return *Error values carrying
// their own status, and the engine's error responder renders them.
type Error struct {
	code    string
	status  int
	message string
	cause   error
}

// NewError creates a classified error with a stable code and HTTP status.
func NewError(code string, status int, message string) *Error {
	return &Error{code: code, status: status, message: message}
}

// Error implements error.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Code returns the stable machine-readable code.
func (e *Error) Code() string {
	return e.code
}

// Status returns the HTTP status this error maps to.
func (e *Error) Status() int {
	return e.status
}

// Message returns the message without the cause chain.
func (e *Error) Message() string {
	return e.message
}

// WithMessage returns a copy with a formatted message.
// Catalog entries stay unchanged.
func (e *Error) WithMessage(format string, args ...any) *Error {
	c := *e
	c.message = fmt.Sprintf(format, args...)
	return &c
}

// WithCause returns a copy wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.cause = cause
	return &c
}

// Is matches errors by code, so errors.Is works across WithMessage and
// WithCause copies.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.code == t.code
	}
	return false
}

// Canonical errors. Derive request-specific copies with WithMessage and
// WithCause rather than mutating these.

// Client errors (4xx)
var (
	// ErrBadRequest indicates the request was invalid (400)
	ErrBadRequest = NewError("BAD_REQUEST", http.StatusBadRequest, "bad request")

	// ErrUnauthorized indicates missing or invalid authentication (401)
	ErrUnauthorized = NewError("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")

	// ErrForbidden indicates the request is not allowed (403)
	ErrForbidden = NewError("FORBIDDEN", http.StatusForbidden, "forbidden")

	// ErrNotFound indicates the resource was not found (404)
	ErrNotFound = NewError("NOT_FOUND", http.StatusNotFound, "not found")

	// ErrConflict indicates a conflict with existing data (409)
	ErrConflict = NewError("CONFLICT", http.StatusConflict, "conflict")

	// ErrUnprocessable indicates the request was well-formed but semantically invalid (422)
	ErrUnprocessable = NewError("UNPROCESSABLE", http.StatusUnprocessableEntity, "unprocessable entity")

	// ErrTooManyRequests indicates rate limiting (429)
	ErrTooManyRequests = NewError("TOO_MANY_REQUESTS", http.StatusTooManyRequests, "too many requests")
)

// Server errors (5xx)
var (
	// ErrInternal indicates an unexpected server error (500)
	ErrInternal = NewError("INTERNAL", http.StatusInternalServerError, "internal server error")

	// ErrContract indicates the handler violated its declared contract (500)
	ErrContract = NewError("CONTRACT_VIOLATION", http.StatusInternalServerError, "handler contract violation")

	// ErrNotImplemented indicates the functionality is not implemented (501)
	ErrNotImplemented = NewError("NOT_IMPLEMENTED", http.StatusNotImplemented, "not implemented")

	// ErrUnavailable indicates the service is temporarily unavailable (503)
	ErrUnavailable = NewError("UNAVAILABLE", http.StatusServiceUnavailable, "service unavailable")
)

// StatusOf returns the HTTP status for err: the classified status when err
// is or wraps an *Error, 500 otherwise.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.status
	}
	return http.StatusInternalServerError
}

// CodeOf returns the stable code for err, or the internal code for
// unclassified errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return ErrInternal.code
}

// WriteError renders err as the standard JSON error body. Messages of 5xx
// and unclassified errors are replaced with a generic one; the detail
// stays in emitted events.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	message := ErrInternal.message
	var e *Error
	if errors.As(err, &e) && status < http.StatusInternalServerError {
		message = e.message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	//nolint:errchkjson // Standard practice after WriteHeader
	json.NewEncoder(w).Encode(map[string]string{
		"code":    CodeOf(err),
		"message": message,
	})
}
