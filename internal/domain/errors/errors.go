// Package errors provides domain-specific errors for the offline sync core.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common domain error conditions.
var (
	ErrActionNotFound    = errors.New("queued action not found")
	ErrActionTypeMissing = errors.New("action type required")
	ErrInvalidAction     = errors.New("invalid queued action")
	ErrInvalidPayload    = errors.New("payload is not valid JSON")
	ErrStoreUnavailable  = errors.New("action store unavailable")
	ErrOffline           = errors.New("device is offline")
	ErrUnknownMessage    = errors.New("unknown background sync message")
	ErrBackendNotFound   = errors.New("remote backend not found")
)

// ErrorCode categorizes errors for handling and reporting.
type ErrorCode string

const (
	CodeValidation    ErrorCode = "VALIDATION"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeStorage       ErrorCode = "STORAGE"
	CodeRemote        ErrorCode = "REMOTE"
	CodeConfiguration ErrorCode = "CONFIG"
)

// SyncError wraps errors with additional context for debugging and handling.
type SyncError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error returns a formatted error string including the code, message, and cause if present.
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for use with errors.Is and errors.As.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// NewError creates a new SyncError with the given code, message, and optional cause.
func NewError(code ErrorCode, message string, cause error) *SyncError {
	return &SyncError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Storage wraps a storage-layer failure. The result always matches ErrStoreUnavailable.
func Storage(op string, cause error) *SyncError {
	if cause == nil {
		cause = ErrStoreUnavailable
	} else if !errors.Is(cause, ErrStoreUnavailable) {
		cause = fmt.Errorf("%w: %w", ErrStoreUnavailable, cause)
	}
	return NewError(CodeStorage, op, cause)
}

// WithContext adds a key-value pair to the error's context and returns the error.
func WithContext(err *SyncError, key string, value interface{}) *SyncError {
	if err.Context == nil {
		err.Context = make(map[string]interface{})
	}
	err.Context[key] = value
	return err
}

// CodeOf returns the code of the first SyncError in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsStorage reports whether err originated in the durable action store.
func IsStorage(err error) bool {
	return CodeOf(err) == CodeStorage || errors.Is(err, ErrStoreUnavailable)
}

// Is reports whether err matches target using errors.Is semantics.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
