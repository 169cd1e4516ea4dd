package api

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a caller-facing failure.
type ErrorCode string

const (
	// ErrCodeValidation indicates a malformed query, filter or payload.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// ErrCodeUnsupportedOperator indicates a filter criterion with an
	// operator no component recognizes.
	ErrCodeUnsupportedOperator ErrorCode = "UNSUPPORTED_OPERATOR"

	// ErrCodeDriverUnsupported indicates the selected backend lacks a
	// capability the request requires.
	ErrCodeDriverUnsupported ErrorCode = "DRIVER_UNSUPPORTED_OPERATION"

	// ErrCodePermissionDenied indicates permission resolution denied the
	// request, or the requested action is outside the allowed set.
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// ErrCodeNotFound indicates a record was absent after a permitted,
	// filtered lookup.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeDuplicateRecord indicates an identifier collision on create.
	ErrCodeDuplicateRecord ErrorCode = "DUPLICATE_RECORD"

	// ErrCodeDriver wraps an opaque backend failure with entity and
	// operation context.
	ErrCodeDriver ErrorCode = "DRIVER_ERROR"
)

// Error is the caller-facing error shape. It carries a stable code plus
// the entity and operation it occurred on.
type Error struct {
	Code    ErrorCode
	Entity  string
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Entity != "" && e.Op != "":
		return fmt.Sprintf("%s: %s %s: %s", e.Code, e.Op, e.Entity, msg)
	case e.Entity != "":
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Entity, msg)
	default:
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a coded error with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithContext returns a copy of the error annotated with entity and
// operation context. The code and cause are preserved.
func (e *Error) WithContext(entity, op string) *Error {
	out := *e
	if out.Entity == "" {
		out.Entity = entity
	}
	if out.Op == "" {
		out.Op = op
	}
	return &out
}

// WrapDriver wraps an opaque backend failure as a DRIVER_ERROR, keeping
// the original error reachable through Unwrap.
func WrapDriver(entity, op string, err error) *Error {
	return &Error{Code: ErrCodeDriver, Entity: entity, Op: op, Err: err}
}

// CodeOf extracts the error code from err, or "" if err carries none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
