package common

import (
	"errors"
	"fmt"
)

// Process exit codes
const (
	ExitOK          = 0
	ExitFailed      = 1
	ExitUsage       = 2
	ExitInterrupted = 130
)

// ExitError carries the process exit code of a command failure
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// UsageError marks err as a usage or configuration problem
func UsageError(err error) error {
	return &ExitError{Code: ExitUsage, Err: err}
}

// Failed marks err as a failed run
func Failed(err error) error {
	return &ExitError{Code: ExitFailed, Err: err}
}

// Interrupted marks err as a run cancelled by a signal
func Interrupted(err error) error {
	return &ExitError{Code: ExitInterrupted, Err: err}
}

// ExitCode maps a command error to a process exit code. Errors without an
// explicit code are failures.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailed
}
