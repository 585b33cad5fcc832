// Package apperr carries the error taxonomy shared by the chat core:
// NotFound, Forbidden and ValidationFailed are deterministic and surfaced
// verbatim to callers; StorageFailure is opaque to callers and logged with
// its cause server-side.
package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

type Kind int

const (
	KindNotFound Kind = iota + 1
	KindForbidden
	KindValidation
	KindStorage
)

// Error is a classified application error. Code is the stable machine code
// exposed in responses; Err, when set, is the underlying cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode maps the kind to its HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return fiber.StatusNotFound
	case KindForbidden:
		return fiber.StatusForbidden
	case KindValidation:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: message}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_FAILED", Message: message}
}

// Storage wraps a persistence failure. The message is safe for logs; the
// HTTP layer replaces it with a generic one before responding.
func Storage(message string, cause error) *Error {
	return &Error{Kind: KindStorage, Code: "DB_OPERATION_FAILED", Message: message, Err: cause}
}

// From classifies err. Unclassified errors become storage failures so a raw
// cause never leaks to a caller.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Storage("unexpected error", err)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}
