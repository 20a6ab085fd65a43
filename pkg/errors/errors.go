// Package errors provides structured error types for nlink.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI, the job manager and the engines
//   - Machine-readable error codes for programmatic handling
//   - A clear split between fatal job errors and recoverable ones
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures (malformed page store, bad rule index)
//   - *_NOT_FOUND: Resource not found
//   - INTEGRITY_VIOLATION: The functional-edge invariant does not hold
//   - RESOURCE_EXCEEDED / CANCELLED: Budget and lifecycle outcomes
//   - INTERNAL_*: Unexpected internal errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidRule, "rule index must be >= 1, got %d", n)
//	if errors.Is(err, errors.ErrCodeInvalidRule) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeInvalidInput, origErr, "read %s", path)
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidRule     Code = "INVALID_RULE"
	ErrCodeInvalidTerminal Code = "INVALID_TERMINAL"
	ErrCodeInvalidPath     Code = "INVALID_PATH"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"

	// Resource not found errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodePageNotFound Code = "PAGE_NOT_FOUND"
	ErrCodeJobNotFound  Code = "JOB_NOT_FOUND"

	// Data integrity errors
	ErrCodeIntegrity Code = "INTEGRITY_VIOLATION"

	// Lifecycle errors
	ErrCodeResourceExceeded Code = "RESOURCE_EXCEEDED"
	ErrCodeCancelled        Code = "CANCELLED"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Cancelled wraps a context error as ErrCodeCancelled. The context error stays
// in the chain, so errors.Is(err, context.Canceled) keeps working.
// Returns nil when ctxErr is nil.
func Cancelled(ctxErr error, stage string) error {
	if ctxErr == nil {
		return nil
	}
	return Wrap(ErrCodeCancelled, ctxErr, "%s cancelled", stage)
}

// IsCancelled reports whether err is a cancellation, coded or raw.
func IsCancelled(err error) bool {
	return Is(err, ErrCodeCancelled) || errors.Is(err, context.Canceled)
}

// IsFatal reports whether err must fail the whole job. Input, integrity and
// internal errors are fatal: no meaningful partial result exists for them.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch GetCode(err) {
	case ErrCodeInvalidInput, ErrCodeInvalidRule, ErrCodeInvalidTerminal,
		ErrCodeInvalidPath, ErrCodeInvalidConfig, ErrCodePageNotFound,
		ErrCodeIntegrity, ErrCodeInternal:
		return true
	}
	return false
}
