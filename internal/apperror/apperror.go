// Package apperror defines the error taxonomy shared by every layer.
//
// Repositories and services return these errors; only the handler layer knows
// how to turn them into HTTP status codes. Every AppError wraps exactly one
// sentinel so callers can branch with errors.Is.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrStorage      = errors.New("storage error")
)

// Machine-readable kinds. These strings are part of the API contract and
// must never change.
const (
	KindNotFound     = "not_found"
	KindValidation   = "validation_error"
	KindConflict     = "conflict"
	KindForbidden    = "forbidden"
	KindUnauthorized = "unauthorized"
	KindStorage      = "storage_error"
	KindInternal     = "internal_error"
)

type AppError struct {
	Err     error  // sentinel, one of the Err* values above
	Message string // human-readable message, safe to show to the caller
	Field   string // optional: input field that failed validation
	Cause   error  // optional: underlying driver error, never shown to callers
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause, so errors.Is works for
// ErrStorage as well as for driver-level errors like context.Canceled.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is returned when an operation needs an identity and the
// request carried none.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Storage wraps a persistence failure. The message names the operation; the
// driver error is kept as Cause for logs only.
func Storage(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrStorage,
		Message: fmt.Sprintf("storage failure while %s", op),
		Cause:   cause,
	}
}

// Kind returns the stable machine-readable kind for err. Errors that are not
// AppErrors are reported as internal errors.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrStorage):
		return KindStorage
	default:
		return KindInternal
	}
}

// IsDomain reports whether err already carries a domain classification, i.e.
// it is (or wraps) an *AppError. Services use it to decide whether a
// repository error still needs to be wrapped as a storage failure.
func IsDomain(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}
