// Package errors provides coded domain errors shared across services and
// transports. Codes are stable machine-readable identifiers; messages are for
// humans and may change.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies an error class across package boundaries.
type Code string

const (
	CodeBadRequest Code = "bad_request"
	CodeNotFound   Code = "not_found"
	CodeInternal   Code = "internal"

	// Guard rejections surfaced synchronously to callers. None of these
	// mutate the action log.
	CodeAlreadyRegistered Code = "already_registered"
	CodeNotOwned          Code = "not_owned"
	CodeNotOwner          Code = "not_owner"
	CodeNotAdmin          Code = "not_admin"
	CodePaused            Code = "paused"

	// CodeEncoding covers packed-key encoding failures (bad input, local to
	// the call).
	CodeEncoding Code = "encoding"

	// Settlement-time errors. All of them leave the action log and the last
	// settled commitment untouched.
	CodePreconditionViolated Code = "precondition_violated"
	CodeProofGeneration      Code = "proof_generation"
	CodeStaleCommitment      Code = "stale_commitment"
)

// Error carries a code alongside the message so transports can map errors
// without string matching.
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

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so sentinel-style checks via
// errors.Is work across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New builds a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
