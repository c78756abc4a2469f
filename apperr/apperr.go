// Package apperr carries the error kinds the catalog exposes to HTTP callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindProcessing Kind = "processing" // one file could not be turned into artifacts
	KindStorage    Kind = "storage"    // unexpected artifact I/O failure
	KindInternal   Kind = "internal"
)

// Error is the typed error returned by repositories and services. Message is
// safe to show to clients, Cause is for logs only.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus maps the kind onto a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindProcessing:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds "<resource> not found".
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Processing(msg string, cause error) *Error {
	return &Error{Kind: KindProcessing, Message: msg, Cause: cause}
}

func Storage(msg string, cause error) *Error {
	return &Error{Kind: KindStorage, Message: msg, Cause: cause}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "an unexpected error occurred", Cause: cause}
}

// As extracts the *Error from err's chain, or nil.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	e := As(err)
	return e != nil && e.Kind == kind
}

// From wraps any error that is not already typed as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if e := As(err); e != nil {
		return e
	}
	return Internal(err)
}
