package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Common sentinel errors for quick checks
var (
	// ErrNoExecutionContext is returned when no signing-capable execution
	// context is available.
	ErrNoExecutionContext = errors.New("no compatible execution context")

	// ErrRegistryUnavailable is returned when no registry contract is
	// deployed on the connected network.
	ErrRegistryUnavailable = errors.New("registry not deployed to this network")

	// ErrNoStagedPayload is returned when publish is requested with an empty
	// staging buffer.
	ErrNoStagedPayload = errors.New("no payload staged for publish")

	// ErrInvalidInput is returned when request input is invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// Error is the base interface for all typed errors in the client.
type Error interface {
	error
	// Code returns the error code
	Code() string
	// Message returns the human-readable error message
	Message() string
	// Unwrap returns the underlying cause
	Unwrap() error
}

// BaseError provides a foundation for all typed errors.
type BaseError struct {
	code    string
	message string
	cause   error
	stack   []uintptr
}

// Error implements the error interface.
func (e *BaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *BaseError) Code() string {
	return e.code
}

// Message returns the error message.
func (e *BaseError) Message() string {
	return e.message
}

// Unwrap returns the underlying cause.
func (e *BaseError) Unwrap() error {
	return e.cause
}

// captureStack captures the current stack trace.
func captureStack(skip int) []uintptr {
	const maxDepth = 32
	stack := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, stack)
	return stack[:n]
}

// StackTrace returns a formatted stack trace string.
func (e *BaseError) StackTrace() string {
	if len(e.stack) == 0 {
		return ""
	}

	var buf strings.Builder
	frames := runtime.CallersFrames(e.stack)
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			fmt.Fprintf(&buf, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return buf.String()
}

// ContextUnavailableError reports that no signing-capable execution context
// could be bound at startup. Non-fatal; ledger features stay disabled.
type ContextUnavailableError struct {
	*BaseError
}

// NewContextUnavailableError creates a new context-unavailable error.
func NewContextUnavailableError(cause error) *ContextUnavailableError {
	return &ContextUnavailableError{
		BaseError: &BaseError{
			code:    CodeContextUnavailable,
			message: "no compatible execution context",
			cause:   cause,
			stack:   captureStack(1),
		},
	}
}

// NetworkUnsupportedError reports that the registry contract has no
// deployment on the connected network. Non-fatal, first-class outcome.
type NetworkUnsupportedError struct {
	*BaseError
	Network string
}

// NewNetworkUnsupportedError creates a new network-unsupported error.
func NewNetworkUnsupportedError(network string) *NetworkUnsupportedError {
	return &NetworkUnsupportedError{
		BaseError: &BaseError{
			code:    CodeNetworkUnsupported,
			message: fmt.Sprintf("registry not deployed to network %s", network),
			stack:   captureStack(1),
		},
		Network: network,
	}
}

// FetchError reports a failed count or per-entry query during catalog load.
type FetchError struct {
	*BaseError
	EntryID uint64 // 0 for the count query
}

// NewFetchError creates a new fetch error for the given entry id.
func NewFetchError(entryID uint64, cause error) *FetchError {
	message := "entry fetch failed"
	if entryID == 0 {
		message = "entry count query failed"
	}
	return &FetchError{
		BaseError: &BaseError{
			code:    CodeFetchFailure,
			message: message,
			cause:   cause,
			stack:   captureStack(1),
		},
		EntryID: entryID,
	}
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.EntryID > 0 {
		return fmt.Sprintf("fetch entry %d: %v", e.EntryID, e.cause)
	}
	return fmt.Sprintf("%s: %v", e.message, e.cause)
}

// StorageError reports a failed upload to the storage network.
type StorageError struct {
	*BaseError
}

// NewStorageError creates a new storage error.
func NewStorageError(cause error) *StorageError {
	return &StorageError{
		BaseError: &BaseError{
			code:    CodeStorageFailure,
			message: "storage upload failed",
			cause:   cause,
			stack:   captureStack(1),
		},
	}
}

// TxRejectedError reports a contract call rejected before acceptance.
type TxRejectedError struct {
	*BaseError
	Operation string // "register" or "tip"
}

// NewTxRejectedError creates a new transaction-rejected error.
func NewTxRejectedError(operation string, cause error) *TxRejectedError {
	return &TxRejectedError{
		BaseError: &BaseError{
			code:    CodeTxRejected,
			message: fmt.Sprintf("%s transaction rejected", operation),
			cause:   cause,
			stack:   captureStack(1),
		},
		Operation: operation,
	}
}

// ValidationError represents an input validation error.
type ValidationError struct {
	*BaseError
	Field string
	Value interface{}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		BaseError: &BaseError{
			code:    CodeValidation,
			message: message,
			stack:   captureStack(1),
		},
		Field: field,
		Value: value,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.message)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

// Wrap wraps an error with additional context. If a typed error is anywhere
// in the chain, its code is preserved; otherwise an internal error is
// created.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	code := CodeInternal
	var e Error
	if errors.As(err, &e) {
		code = e.Code()
	}

	return &BaseError{
		code:    code,
		message: message,
		cause:   err,
		stack:   captureStack(1),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// New creates a new error with a message.
func New(message string) error {
	return &BaseError{
		code:    CodeInternal,
		message: message,
		stack:   captureStack(1),
	}
}

// Newf creates a new error with a formatted message.
func Newf(format string, args ...interface{}) error {
	return New(fmt.Sprintf(format, args...))
}

// CodeOf extracts the error code from err, walking the cause chain.
// Returns CodeInternal for plain errors and "" for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var e Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return CodeInternal
}
