package eventbus

import (
	"fmt"
)

// ErrorCode represents specific error types in the eventbus package.
type ErrorCode string

// ErrorCode constants for bus errors.
const (
	CodeOutOfMemory      ErrorCode = "OUT_OF_MEMORY"
	CodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"
	CodeNotPlainData     ErrorCode = "NOT_PLAIN_DATA"
	CodeInvalidCallback  ErrorCode = "INVALID_CALLBACK"
	CodePendingRecords   ErrorCode = "PENDING_RECORDS"
	CodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	CodeClosed           ErrorCode = "CLOSED"
)

// Sentinels for errors.Is. Any *Error with the same code matches.
var (
	ErrOutOfMemory      = &Error{Code: CodeOutOfMemory, Message: "arena exhausted"}
	ErrCapacityExceeded = &Error{Code: CodeCapacityExceeded, Message: "channel table full"}
	ErrNotPlainData     = &Error{Code: CodeNotPlainData, Message: "event type is not plain data"}
	ErrInvalidCallback  = &Error{Code: CodeInvalidCallback, Message: "callback is not set"}
	ErrPendingRecords   = &Error{Code: CodePendingRecords, Message: "records are still buffered"}
	ErrInvalidConfig    = &Error{Code: CodeInvalidConfig, Message: "invalid configuration"}
	ErrClosed           = &Error{Code: CodeClosed, Message: "bus is torn down"}
)

// Error represents an error in the eventbus package.
type Error struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
	Cause   error          `json:"cause,omitempty"`
}

// NewError creates a new bus error.
func NewError(code ErrorCode, message string, context map[string]any) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: context,
	}
}

// NewErrorWithCause creates a new bus error with a cause.
func NewErrorWithCause(code ErrorCode, message string, cause error, context map[string]any) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: context,
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// HasCode checks if the error matches a specific code.
func (e *Error) HasCode(code ErrorCode) bool {
	return e.Code == code
}
