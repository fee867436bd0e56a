package dto

import (
	"time"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/execution"
)

// RunIntentInput represents input for running one intent against a project
type RunIntentInput struct {
	ProjectPath   string `json:"project_path"`
	Intent        string `json:"intent"`
	MaxIterations int    `json:"max_iterations,omitempty"` // <= 0 uses the configured default
}

// RunIntentOutput represents the result of one run
type RunIntentOutput struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	Iterations int       `json:"iterations"`
	Error      string    `json:"error,omitempty"`
	Changed    []string  `json:"changed,omitempty"` // Paths applied in the last edit stage
	ElapsedMs  int64     `json:"elapsed_ms"`
	FinishedAt time.Time `json:"finished_at"`

	State *execution.WorkflowState `json:"-"`
}

// Succeeded reports whether the run reached the succeeded status
func (o *RunIntentOutput) Succeeded() bool {
	return o.Status == execution.RunSucceeded.String()
}

// RunSummaryDTO is one row of the run listing
type RunSummaryDTO struct {
	RunID       string    `json:"run_id"`
	ProjectPath string    `json:"project_path"`
	Intent      string    `json:"intent"`
	Status      string    `json:"status"`
	Iteration   int       `json:"iteration"`
	Error       string    `json:"error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StageDTO is one stage record of a run
type StageDTO struct {
	Stage     string `json:"stage"`
	Iteration int    `json:"iteration"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// RunDetailDTO is a single run with its stage history
type RunDetailDTO struct {
	RunSummaryDTO
	MaxIterations int        `json:"max_iterations"`
	Stages        []StageDTO `json:"stages"`
}

// NewRunSummaryDTO converts a workflow state to its listing row
func NewRunSummaryDTO(s *execution.WorkflowState) RunSummaryDTO {
	return RunSummaryDTO{
		RunID:       s.ID.String(),
		ProjectPath: s.ProjectPath,
		Intent:      s.Intent,
		Status:      s.Status.String(),
		Iteration:   s.Iteration,
		Error:       s.Error,
		UpdatedAt:   s.UpdatedAt,
	}
}

// NewRunDetailDTO converts a workflow state including every stage record
func NewRunDetailDTO(s *execution.WorkflowState) RunDetailDTO {
	records := s.AllRecords()
	stages := make([]StageDTO, 0, len(records))
	for _, r := range records {
		stages = append(stages, StageDTO{
			Stage:     r.Stage.String(),
			Iteration: r.Iteration,
			Status:    r.Status.String(),
			Error:     r.Error,
		})
	}
	return RunDetailDTO{
		RunSummaryDTO: NewRunSummaryDTO(s),
		MaxIterations: s.MaxIterations,
		Stages:        stages,
	}
}
