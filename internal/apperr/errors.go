// Package apperr defines the error kinds services return to the API boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the API boundary.
type Kind string

const (
	KindValidation      Kind = "VALIDATION_ERROR"
	KindConflict        Kind = "CONFLICT"
	KindUnauthorized    Kind = "UNAUTHORIZED"
	KindForbidden       Kind = "FORBIDDEN"
	KindNotFound        Kind = "NOT_FOUND"
	KindTooManyRequests Kind = "TOO_MANY_REQUESTS"
	KindInternal        Kind = "INTERNAL_ERROR"
)

// Error is a typed application error with a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Details any
	Err     error
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the kind to a response status code.
func (e *Error) HTTPStatus() int {
	return StatusOf(e.Kind)
}

// StatusOf maps an error kind to a response status code.
func StatusOf(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Validation creates a validation error with field details.
func Validation(message string, fields ...FieldError) *Error {
	e := &Error{Kind: KindValidation, Message: message}
	if len(fields) > 0 {
		e.Details = fields
	}
	return e
}

// Conflict creates a conflict error.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// VersionConflict creates a conflict error carrying both versions.
func VersionConflict(expected, current int64, err error) *Error {
	return &Error{
		Kind:    KindConflict,
		Message: fmt.Sprintf("version mismatch: expected %d, current is %d", expected, current),
		Details: map[string]int64{"expectedVersion": expected, "currentVersion": current},
		Err:     err,
	}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// Forbidden creates a forbidden error.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// TooManyRequests creates a rate limit error.
func TooManyRequests(message string) *Error {
	return &Error{Kind: KindTooManyRequests, Message: message}
}

// Internal creates an internal error wrapping err.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// From extracts an *Error from err, treating anything else as internal.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal server error", err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
