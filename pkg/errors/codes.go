package errors

import "fmt"

// ErrorCode represents a unique identifier for specific error conditions in Custodia.
type ErrorCode int

const (
	ErrCodeUnknown       ErrorCode = 1000
	ErrCodeConfigInvalid ErrorCode = 1001

	// Launch phase
	ErrCodeLaunchFailed ErrorCode = 2001

	// Monitor phase
	ErrCodeTimeoutExceeded ErrorCode = 3001

	// Termination escalation
	ErrCodeSignalDelivery ErrorCode = 3002

	// Recovery dispatch
	ErrCodeRecoveryFailed ErrorCode = 4001
)

// CustodiaError is a custom error type that provides structured error information,
// including an error code, the operation being performed, and the underlying cause.
type CustodiaError struct {
	// Code is the specific error code.
	Code ErrorCode
	// Msg is a human-readable description of the error.
	Msg string
	// Operation describes the action being performed when the error occurred.
	Operation string
	// Err is the underlying error that caused this error, if any.
	Err error
}

// Error returns a formatted string representation of the error.
func (e *CustodiaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %s (cause: %v)", e.Code, e.Operation, e.Msg, e.Err)
	}
	return fmt.Sprintf("[%d] %s: %s", e.Code, e.Operation, e.Msg)
}

// Unwrap returns the underlying error.
func (e *CustodiaError) Unwrap() error {
	return e.Err
}

// New creates a new CustodiaError with the specified code, operation, message, and underlying error.
func New(code ErrorCode, op, msg string, err error) error {
	return &CustodiaError{
		Code:      code,
		Msg:       msg,
		Operation: op,
		Err:       err,
	}
}

// CodeOf extracts the ErrorCode from err, or ErrCodeUnknown when err is not
// a CustodiaError.
func CodeOf(err error) ErrorCode {
	if ce, ok := err.(*CustodiaError); ok {
		return ce.Code
	}
	return ErrCodeUnknown
}
