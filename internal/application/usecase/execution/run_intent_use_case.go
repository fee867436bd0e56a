package execution

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/app"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/app/health"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/dto"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/workflow"
	domain "github.com/foolishimp/c4h-intent-system-sub000/internal/domain/execution"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/model/lock"
)

// WorkflowRunner is satisfied by *workflow.Orchestrator
type WorkflowRunner interface {
	Run(ctx context.Context, req workflow.RunRequest) (*domain.WorkflowState, error)
}

// RunLocker is the subset of the lock service a run needs
type RunLocker interface {
	CleanupExpired(ctx context.Context) (int, error)
	AcquireRunLock(ctx context.Context, lockID lock.LockID, runID string) (*lock.RunLock, error)
	ReleaseRunLock(ctx context.Context, lockID lock.LockID, runID string) error
}

// RunIntentUseCase runs one intent against one project under the project run lock
type RunIntentUseCase struct {
	runner     WorkflowRunner
	locker     RunLocker // nil disables locking
	fs         afero.Fs
	healthPath string // empty disables health.json
	logger     app.Logger
}

// NewRunIntentUseCase creates a new RunIntentUseCase
func NewRunIntentUseCase(runner WorkflowRunner, locker RunLocker, fs afero.Fs, healthPath string, logger app.Logger) *RunIntentUseCase {
	if logger == nil {
		logger = app.NopLogger()
	}
	return &RunIntentUseCase{
		runner:     runner,
		locker:     locker,
		fs:         fs,
		healthPath: healthPath,
		logger:     logger,
	}
}

// Execute runs the intent to a terminal status. A returned error means the run
// never started: bad input or the project lock is held (lock.ErrLockHeld).
func (uc *RunIntentUseCase) Execute(ctx context.Context, input dto.RunIntentInput) (*dto.RunIntentOutput, error) {
	startTime := time.Now()

	project, err := filepath.Abs(input.ProjectPath)
	if err != nil {
		return nil, fmt.Errorf("resolve project path: %w", err)
	}
	info, err := uc.fs.Stat(project)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrInvalidRun.WithDetails(map[string]interface{}{"reason": "project path does not exist", "path": project})
		}
		return nil, fmt.Errorf("stat project: %w", err)
	}
	if !info.IsDir() {
		return nil, domain.ErrInvalidRun.WithDetails(map[string]interface{}{"reason": "project path is not a directory", "path": project})
	}

	runID := domain.NewRunID()

	if uc.locker != nil {
		lockID, err := lock.NewLockID(project)
		if err != nil {
			return nil, fmt.Errorf("failed to create lock ID: %w", err)
		}
		if _, err := uc.locker.CleanupExpired(ctx); err != nil {
			uc.logger.Warn("failed to clean up expired run locks: %v", err)
		}
		if _, err := uc.locker.AcquireRunLock(ctx, lockID, runID.String()); err != nil {
			return nil, err
		}
		defer func() {
			if err := uc.locker.ReleaseRunLock(context.WithoutCancel(ctx), lockID, runID.String()); err != nil {
				uc.logger.Warn("failed to release run lock for %s: %v", project, err)
			}
		}()
	}

	state, err := uc.runner.Run(ctx, workflow.RunRequest{
		RunID:         runID,
		ProjectPath:   project,
		Intent:        input.Intent,
		MaxIterations: input.MaxIterations,
	})
	if err != nil {
		return nil, err
	}

	uc.writeHealth(state)

	out := &dto.RunIntentOutput{
		RunID:      state.ID.String(),
		Status:     state.Status.String(),
		Iterations: state.Iteration,
		Error:      state.Error,
		Changed:    appliedPaths(state),
		ElapsedMs:  time.Since(startTime).Milliseconds(),
		FinishedAt: time.Now().UTC(),
		State:      state,
	}
	if state.FinishedAt != nil {
		out.FinishedAt = *state.FinishedAt
	}
	return out, nil
}

func (uc *RunIntentUseCase) writeHealth(state *domain.WorkflowState) {
	if uc.healthPath == "" {
		return
	}
	if err := health.WriteHealthAtomic(uc.fs, health.FromState(state), uc.healthPath); err != nil {
		uc.logger.Warn("failed to write %s: %v", uc.healthPath, err)
	}
}

func appliedPaths(state *domain.WorkflowState) []string {
	rec := state.Record(domain.StageEdit)
	if rec == nil || len(rec.Output) == 0 {
		return nil
	}
	var results []domain.FileResult
	if err := rec.DecodeOutput(&results); err != nil {
		return nil
	}
	var paths []string
	for _, r := range results {
		if r.IsApplied() {
			paths = append(paths, r.Path)
		}
	}
	return paths
}
