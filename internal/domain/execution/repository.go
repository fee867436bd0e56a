package execution

import "context"

// StateRepository defines the interface for workflow state persistence
type StateRepository interface {
	// Save inserts or replaces the durable record of a run
	Save(ctx context.Context, state *WorkflowState) error

	// FindByID retrieves a run by its ID. Returns ErrRunNotFound when absent.
	FindByID(ctx context.Context, id RunID) (*WorkflowState, error)

	// FindRecent retrieves up to limit runs, most recently updated first
	FindRecent(ctx context.Context, limit int) ([]*WorkflowState, error)
}
