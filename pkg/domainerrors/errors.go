// Package domainerrors provides code-tagged errors shared across the engine.
// Codes classify failures at the boundary (HTTP status mapping, CLI exit
// codes) while the wrapped error preserves the original cause chain.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for boundary handling.
type Code string

const (
	CodeNotFound         Code = "not_found"
	CodeInvalidInput     Code = "invalid_input"
	CodeValidation       Code = "validation"
	CodeBadRequest       Code = "bad_request"
	CodeUnavailable      Code = "unavailable"
	CodeInsufficientData Code = "insufficient_data"
	CodeInternal         Code = "internal"
)

// Error carries a classification code alongside a human-readable message and
// an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two domain errors by code so errors.Is works across wrap layers.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an existing error. Returns nil when err
// is nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// GetCode extracts the code from an error chain, defaulting to CodeInternal
// for unclassified errors.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
