// Package errors defines the application error type the progress engine's
// fatal assertions are built on.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown = "UNKNOWN_ERROR"

	// CodeMalformedGraph marks a construction-time error: an edge naming a
	// nonexistent scope/port, a GraphInput declared as a target, or a
	// GraphOutput declared as a source.
	CodeMalformedGraph = "MALFORMED_GRAPH"
	// CodeInvariantViolation marks a runtime protocol violation by a
	// child scope, such as a persistent negative aggregate count.
	CodeInvariantViolation = "INVARIANT_VIOLATION"
	// CodeNonTermination marks the reachability saturation loop exceeding
	// its iteration bound, the bounded-iteration guard of last resort.
	CodeNonTermination = "NON_TERMINATION"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error instances.
var (
	ErrMalformedGraph     = New(CodeMalformedGraph, "malformed graph")
	ErrInvariantViolation = New(CodeInvariantViolation, "invariant violation")
	ErrNonTermination     = New(CodeNonTermination, "reachability computation did not terminate")
)

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
