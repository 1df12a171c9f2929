// Package apperror is the error taxonomy shared by the engines and the HTTP layer.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindForbidden  Kind = "forbidden"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindStore      Kind = "store"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the error kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: message}
}

func Unauthorized() *Error {
	return &Error{Kind: KindAuth, Code: "UNAUTHORIZED", Message: "Unauthorized"}
}

func Unconfirmed() *Error {
	return &Error{Kind: KindAuth, Code: "EMAIL_NOT_CONFIRMED", Message: "Please confirm email"}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Code: "CONFLICT", Message: message}
}

// Store hides err from callers; the cause stays reachable through Unwrap for logging.
func Store(err error) *Error {
	return &Error{Kind: KindStore, Code: "SERVER_ERROR", Message: "Server error", Err: err}
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}
