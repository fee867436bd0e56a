package execution

import (
	"errors"
	"fmt"
)

// WorkflowError represents domain-specific errors for workflow runs
type WorkflowError struct {
	Code    string
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (e WorkflowError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s %v", e.Code, e.Message, e.Details)
}

// Is matches on the error code so errors.Is works with WithDetails copies
func (e WorkflowError) Is(target error) bool {
	t, ok := target.(WorkflowError)
	return ok && t.Code == e.Code
}

// Common workflow errors
var (
	// ErrRunNotFound indicates the run was not found in the state repository
	ErrRunNotFound = WorkflowError{
		Code:    "RUN_NOT_FOUND",
		Message: "Workflow run not found",
	}

	// ErrInvalidTransition indicates an invalid stage or run status transition
	ErrInvalidTransition = WorkflowError{
		Code:    "RUN_INVALID_TRANSITION",
		Message: "Invalid state transition",
	}

	// ErrAlreadyTerminal indicates an operation on a run that already finished
	ErrAlreadyTerminal = WorkflowError{
		Code:    "RUN_ALREADY_TERMINAL",
		Message: "Workflow run already reached a terminal status",
	}

	// ErrIterationsExhausted indicates no iteration budget remains
	ErrIterationsExhausted = WorkflowError{
		Code:    "RUN_ITERATIONS_EXHAUSTED",
		Message: "No iterations remaining",
	}

	// ErrStageOutOfOrder indicates a stage was started before its predecessor completed
	ErrStageOutOfOrder = WorkflowError{
		Code:    "RUN_STAGE_OUT_OF_ORDER",
		Message: "Stage started before its predecessor completed",
	}

	// ErrInvalidRun indicates the run inputs are malformed
	ErrInvalidRun = WorkflowError{
		Code:    "RUN_INVALID",
		Message: "Invalid workflow run",
	}
)

// WithDetails adds details to an existing error
func (e WorkflowError) WithDetails(details map[string]interface{}) WorkflowError {
	e.Details = details
	return e
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsInvalidTransition checks if the error is an invalid transition error
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsAlreadyTerminal checks if the error is an already terminal error
func IsAlreadyTerminal(err error) bool {
	return errors.Is(err, ErrAlreadyTerminal)
}

// IsStageOutOfOrder checks if the error is a stage ordering error
func IsStageOutOfOrder(err error) bool {
	return errors.Is(err, ErrStageOutOfOrder)
}
