// Package errors provides structured error types for the LayerForge engine.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across CLI and API
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Configuration validation failures, detected before solving
//   - SOLVER_*: Constraint-solving failures during a generation run
//   - WORKER_*: Compositing worker faults
//   - INTERNAL_*: Unexpected internal errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidRule, "rule on trait %q lists %q as both allowed and forbidden", ruler, trait)
//	if errors.Is(err, errors.ErrCodeInvalidRule) {
//	    // Handle configuration error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeWorkerFault, origErr, "compositing item %d failed", index)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Configuration errors, detected before any item is generated
	ErrCodeInvalidConfig      Code = "INVALID_CONFIG"
	ErrCodeInvalidLayer       Code = "INVALID_LAYER"
	ErrCodeInvalidTrait       Code = "INVALID_TRAIT"
	ErrCodeInvalidRule        Code = "INVALID_RULE"
	ErrCodeInvalidCombination Code = "INVALID_COMBINATION"
	ErrCodeInvalidManifest    Code = "INVALID_MANIFEST"
	ErrCodeCapacityExceeded   Code = "CAPACITY_EXCEEDED"

	// Solver errors during a run
	ErrCodeSolverExhausted Code = "SOLVER_EXHAUSTED"
	ErrCodeSessionStalled  Code = "SESSION_STALLED"

	// Worker pool errors
	ErrCodeWorkerFault     Code = "WORKER_FAULT"
	ErrCodeWorkerUnhealthy Code = "WORKER_UNHEALTHY"

	// Terminal states and misc
	ErrCodeCancelled Code = "CANCELLED"
	ErrCodeNotFound  Code = "NOT_FOUND"
	ErrCodeInternal  Code = "INTERNAL_ERROR"
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

// IsConfig reports whether err is a configuration error, i.e. one that is
// detected before solving starts and is fatal for the session.
func IsConfig(err error) bool {
	switch GetCode(err) {
	case ErrCodeInvalidConfig, ErrCodeInvalidLayer, ErrCodeInvalidTrait,
		ErrCodeInvalidRule, ErrCodeInvalidCombination, ErrCodeInvalidManifest,
		ErrCodeCapacityExceeded:
		return true
	}
	return false
}
