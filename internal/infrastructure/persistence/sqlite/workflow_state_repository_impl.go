package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/execution"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infrastructure/transaction"
)

// WorkflowStateRepositoryImpl implements execution.StateRepository with SQLite
type WorkflowStateRepositoryImpl struct {
	db *sql.DB
}

// NewWorkflowStateRepository creates a new SQLite-based workflow state repository
func NewWorkflowStateRepository(db *sql.DB) execution.StateRepository {
	return &WorkflowStateRepositoryImpl{db: db}
}

func (r *WorkflowStateRepositoryImpl) getDB(ctx context.Context) dbExecutor {
	if tx, ok := transaction.GetTxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// Save inserts or replaces the durable record of a run
func (r *WorkflowStateRepositoryImpl) Save(ctx context.Context, state *execution.WorkflowState) error {
	if state == nil || state.ID == "" {
		return execution.ErrInvalidRun.WithDetails(map[string]interface{}{"reason": "state has no id"})
	}

	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal workflow state: %w", err)
	}

	query := `
		INSERT INTO workflow_runs (
			id, project_path, intent, status, iteration, max_iterations,
			error, state_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			iteration = excluded.iteration,
			max_iterations = excluded.max_iterations,
			error = excluded.error,
			state_json = excluded.state_json,
			updated_at = excluded.updated_at
	`

	_, err = r.getDB(ctx).ExecContext(ctx, query,
		state.ID.String(),
		state.ProjectPath,
		state.Intent,
		string(state.Status),
		state.Iteration,
		state.MaxIterations,
		sql.NullString{String: state.Error, Valid: state.Error != ""},
		string(doc),
		formatTime(state.CreatedAt),
		formatTime(state.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save workflow run %s: %w", state.ID, err)
	}
	return nil
}

// FindByID retrieves a run by its ID
func (r *WorkflowStateRepositoryImpl) FindByID(ctx context.Context, id execution.RunID) (*execution.WorkflowState, error) {
	var doc string
	err := r.getDB(ctx).QueryRowContext(ctx,
		`SELECT state_json FROM workflow_runs WHERE id = ?`, id.String(),
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, execution.ErrRunNotFound.WithDetails(map[string]interface{}{"id": id.String()})
	}
	if err != nil {
		return nil, fmt.Errorf("query workflow run %s: %w", id, err)
	}
	return decodeState(doc)
}

// FindRecent retrieves up to limit runs, most recently updated first.
// A non-positive limit returns every run.
func (r *WorkflowStateRepositoryImpl) FindRecent(ctx context.Context, limit int) ([]*execution.WorkflowState, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.getDB(ctx).QueryContext(ctx,
		`SELECT state_json FROM workflow_runs ORDER BY updated_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query workflow runs: %w", err)
	}
	defer rows.Close()

	var states []*execution.WorkflowState
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan workflow run: %w", err)
		}
		state, err := decodeState(doc)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow runs: %w", err)
	}
	return states, nil
}

func decodeState(doc string) (*execution.WorkflowState, error) {
	var state execution.WorkflowState
	if err := json.Unmarshal([]byte(doc), &state); err != nil {
		return nil, fmt.Errorf("unmarshal workflow state: %w", err)
	}
	if state.Stages == nil {
		state.Stages = make(map[execution.Stage]*execution.StageRecord)
	}
	return &state, nil
}
