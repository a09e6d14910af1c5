package api

import (
	"errors"
	"fmt"
)

// ErrorCode classifies errors produced through an ErrorFactory.
type ErrorCode string

const (
	// CodeValidation covers malformed helpers, kind mismatches, duplicate
	// overrides, unresolved dependencies and failed commits.
	CodeValidation ErrorCode = "ValidationError"
)

// ErrorFactory builds the errors the engine raises. The engine never
// constructs a concrete error type on its own; hosts can plug in theirs.
type ErrorFactory func(code ErrorCode, message string) error

// Error is the default error produced by NewError.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError is the default ErrorFactory.
func NewError(code ErrorCode, message string) error {
	return &Error{Code: code, Message: message}
}

// CodeOf returns the code carried by err, if any error in its chain exposes one.
func CodeOf(err error) (ErrorCode, bool) {
	var coded interface{ ErrorCode() ErrorCode }
	if errors.As(err, &coded) {
		return coded.ErrorCode(), true
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// IsValidation reports whether err carries CodeValidation.
func IsValidation(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == CodeValidation
}
