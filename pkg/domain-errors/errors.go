// Package domainerrors carries coded errors across layers. Domain code picks
// a Code describing what went wrong; transports map codes to their own
// status vocabulary without inspecting messages.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure. Codes are stable strings so they can be logged
// and serialised as-is.
type Code string

const (
	// Input failures: malformed values rejected at construction.
	CodeValidation   Code = "validation_error"
	CodeInvalidInput Code = "invalid_input"
	CodeBadRequest   Code = "bad_request"

	// Business-rule failures: well-formed requests the domain refuses.
	CodeBusinessRule      Code = "business_rule_violation"
	CodeInvalidTransition Code = "invalid_transition"
	CodeNotFound          Code = "not_found"
	CodeConflict          Code = "conflict"
	CodeForbidden         Code = "forbidden"
	CodeUnauthorized      Code = "unauthorized"

	// Broken invariants and infrastructure.
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
	CodeTimeout            Code = "timeout"
)

// Error is a coded domain error. Message is safe to show to end users unless
// the code is CodeInternal.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. Wrapping nil
// returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost coded error in the chain, or
// CodeInternal when the chain carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether any coded error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is reports whether the outermost coded error carries code.
func Is(err error, code Code) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == code
}

// MessageOf returns the user-facing message of the outermost coded error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
