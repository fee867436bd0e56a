// Package outcome defines the result type returned by every stage executor,
// provider chain call and file mutation.
//
// An Outcome is a closed variant: success with a payload, failure with a
// classified reason, or one of the three solution sentinels. There is no way
// to express a partial result.
package outcome

import "fmt"

// Kind identifies which case of the variant an Outcome holds.
type Kind string

const (
	KindSuccess            Kind = "success"
	KindFailure            Kind = "failure"
	KindNeedsClarification Kind = "needs_clarification" // solution stage only
	KindNeedsMoreInfo      Kind = "needs_more_info"     // solution stage only
	KindNoChanges          Kind = "no_changes"          // solution stage only
)

// String returns the string representation of the kind
func (k Kind) String() string {
	return string(k)
}

// IsSentinel returns true for the non-error solution outcomes
func (k Kind) IsSentinel() bool {
	return k == KindNeedsClarification || k == KindNeedsMoreInfo || k == KindNoChanges
}

// Outcome is the tagged result of an executor call.
type Outcome[T any] struct {
	kind      Kind
	payload   T
	errorKind ErrorKind
	message   string
}

// Success creates a successful outcome carrying payload
func Success[T any](payload T) Outcome[T] {
	return Outcome[T]{kind: KindSuccess, payload: payload}
}

// Failure creates a failed outcome. An invalid kind is coerced to TransientFailure.
func Failure[T any](kind ErrorKind, message string) Outcome[T] {
	if !kind.IsValid() {
		kind = TransientFailure
	}
	return Outcome[T]{kind: KindFailure, errorKind: kind, message: message}
}

// FailureFrom creates a failed outcome from a (possibly classified) error
func FailureFrom[T any](err error) Outcome[T] {
	if err == nil {
		return Failure[T](TransientFailure, "unknown error")
	}
	return Failure[T](KindOf(err), err.Error())
}

// NeedsClarification signals that the intent is ambiguous; message is the question to ask
func NeedsClarification[T any](message string) Outcome[T] {
	return Outcome[T]{kind: KindNeedsClarification, message: message}
}

// NeedsMoreInfo signals that the solution designer lacks information about the project
func NeedsMoreInfo[T any](message string) Outcome[T] {
	return Outcome[T]{kind: KindNeedsMoreInfo, message: message}
}

// NoChanges signals that the intent is already satisfied
func NoChanges[T any](message string) Outcome[T] {
	return Outcome[T]{kind: KindNoChanges, message: message}
}

// Kind returns which case the outcome holds
func (o Outcome[T]) Kind() Kind {
	if o.kind == "" {
		return KindFailure
	}
	return o.kind
}

// IsSuccess returns true for successful outcomes
func (o Outcome[T]) IsSuccess() bool {
	return o.kind == KindSuccess
}

// IsFailure returns true for failed outcomes, including the zero value
func (o Outcome[T]) IsFailure() bool {
	return o.Kind() == KindFailure
}

// Payload returns the success payload, or the zero value for any other case
func (o Outcome[T]) Payload() T {
	return o.payload
}

// ErrorKind returns the failure classification; ErrorNone unless IsFailure
func (o Outcome[T]) ErrorKind() ErrorKind {
	if o.kind == "" {
		return TransientFailure
	}
	return o.errorKind
}

// Message returns the failure message or the sentinel's reason
func (o Outcome[T]) Message() string {
	if o.kind == "" && o.message == "" {
		return "empty outcome"
	}
	return o.message
}

// Err converts a failure into a classified error. Returns nil for any other case.
func (o Outcome[T]) Err() error {
	if !o.IsFailure() {
		return nil
	}
	return &Error{Kind: o.ErrorKind(), Message: o.Message()}
}

// String renders the outcome for logs
func (o Outcome[T]) String() string {
	switch o.Kind() {
	case KindSuccess:
		return "success"
	case KindFailure:
		return fmt.Sprintf("failure[%s]: %s", o.ErrorKind(), o.Message())
	default:
		return fmt.Sprintf("%s: %s", o.kind, o.message)
	}
}

// Map converts a successful payload, passing every other case through unchanged.
func Map[T, U any](o Outcome[T], fn func(T) U) Outcome[U] {
	if o.IsSuccess() {
		return Success(fn(o.payload))
	}
	return Outcome[U]{kind: o.Kind(), errorKind: o.ErrorKind(), message: o.Message()}
}
