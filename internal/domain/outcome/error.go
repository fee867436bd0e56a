package outcome

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a stage, provider call or file mutation failed.
type ErrorKind string

const (
	// ErrorNone is the zero kind carried by non-failure outcomes
	ErrorNone ErrorKind = ""

	// InvalidInput means the request had the wrong shape; nothing was done and retrying cannot help
	InvalidInput ErrorKind = "InvalidInput"

	// BackendUnavailable means a backend is missing credentials or configuration
	BackendUnavailable ErrorKind = "BackendUnavailable"

	// TransientFailure covers network errors, timeouts and other retryable failures
	TransientFailure ErrorKind = "TransientFailure"

	// MergeFailed means the content producer failed and the file was rolled back
	MergeFailed ErrorKind = "MergeFailed"

	// ValidationFailed means the validate stage ran and reported failing checks
	ValidationFailed ErrorKind = "ValidationFailed"
)

// String returns the string representation of the kind
func (k ErrorKind) String() string {
	return string(k)
}

// IsValid returns true for the known failure kinds
func (k ErrorKind) IsValid() bool {
	switch k {
	case InvalidInput, BackendUnavailable, TransientFailure, MergeFailed, ValidationFailed:
		return true
	default:
		return false
	}
}

// Retryable reports whether a failure of this kind may succeed on another attempt
// against the same backend.
func (k ErrorKind) Retryable() bool {
	return k == TransientFailure
}

// Error is a classified error. Gateways and the mutator return it so callers
// can decide between retry, skip and abort without string matching.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an existing error. A nil err yields nil.
func Wrap(kind ErrorKind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Errorf creates a classified error with a formatted message
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified non-nil errors are treated as transient.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorNone
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return TransientFailure
}

// IsInvalidInput checks if the error is an invalid input error
func IsInvalidInput(err error) bool {
	return err != nil && KindOf(err) == InvalidInput
}

// IsBackendUnavailable checks if the error is a backend unavailable error
func IsBackendUnavailable(err error) bool {
	return err != nil && KindOf(err) == BackendUnavailable
}

// IsMergeFailed checks if the error is a merge failure
func IsMergeFailed(err error) bool {
	return err != nil && KindOf(err) == MergeFailed
}
