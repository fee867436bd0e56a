package output

import (
	"context"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/execution"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/outcome"
)

// DiscoveryInput is the discovery stage input
type DiscoveryInput struct {
	ProjectPath string
}

// SolutionInput is the solution stage input
type SolutionInput struct {
	Intent    string
	Discovery execution.DiscoveryPayload
	Feedback  string // Diagnostics of the previous iteration's failed validation, if any
}

// EditInput is the edit stage input: exactly one proposed change
type EditInput struct {
	ProjectPath string
	Change      execution.Change
}

// ValidateInput is the validate stage input
type ValidateInput struct {
	ProjectPath string
	Applied     []execution.FileResult
}

// Every executor validates its input before doing any work and returns
// Failure{InvalidInput} without side effects when the shape is wrong.

// DiscoveryExecutor scans the project
type DiscoveryExecutor interface {
	Execute(ctx context.Context, in DiscoveryInput) outcome.Outcome[execution.DiscoveryPayload]
}

// SolutionExecutor designs the change set. It is the only executor that may
// return the NeedsClarification, NeedsMoreInfo and NoChanges sentinels.
type SolutionExecutor interface {
	Execute(ctx context.Context, in SolutionInput) outcome.Outcome[[]execution.Change]
}

// EditExecutor applies one change through the transactional mutator
type EditExecutor interface {
	Execute(ctx context.Context, in EditInput) outcome.Outcome[execution.FileResult]
}

// ValidateExecutor runs checks against the applied changes. Success means the
// checks ran; the report's Passed flag says whether they passed.
type ValidateExecutor interface {
	Execute(ctx context.Context, in ValidateInput) outcome.Outcome[execution.ValidationReport]
}
