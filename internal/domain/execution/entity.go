package execution

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultMaxIterations bounds a run when the caller does not choose a limit
const DefaultMaxIterations = 3

// MaxIterationsReached is the terminal error of a run whose validate stage never passed
const MaxIterationsReached = "Maximum iterations reached"

// RunID is a value object for the workflow run identifier
type RunID string

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRunID generates a new, never reused run ID (ULID)
func NewRunID() RunID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return RunID(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

// String returns the string representation of the run ID
func (id RunID) String() string {
	return string(id)
}

// StageRecord is the record of one stage within one iteration
type StageRecord struct {
	Stage      Stage           `json:"stage"`
	Iteration  int             `json:"iteration"`
	Status     StageStatus     `json:"status"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// WorkflowState is the mutable record of one workflow run
type WorkflowState struct {
	ID            RunID                  `json:"id"`
	ProjectPath   string                 `json:"project_path"`
	Intent        string                 `json:"intent"`
	Iteration     int                    `json:"iteration"`
	MaxIterations int                    `json:"max_iterations"`
	Status        RunStatus              `json:"status"`
	Error         string                 `json:"error,omitempty"`
	Stages        map[Stage]*StageRecord `json:"stages"`
	History       []StageRecord          `json:"history,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	FinishedAt    *time.Time             `json:"finished_at,omitempty"`
}

// NewWorkflowState creates a running workflow state. maxIterations <= 0 selects the default.
func NewWorkflowState(projectPath, intent string, maxIterations int) (*WorkflowState, error) {
	if strings.TrimSpace(projectPath) == "" {
		return nil, ErrInvalidRun.WithDetails(map[string]interface{}{"reason": "project path is empty"})
	}
	if strings.TrimSpace(intent) == "" {
		return nil, ErrInvalidRun.WithDetails(map[string]interface{}{"reason": "intent is empty"})
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	now := time.Now().UTC()
	s := &WorkflowState{
		ID:            NewRunID(),
		ProjectPath:   projectPath,
		Intent:        intent,
		MaxIterations: maxIterations,
		Status:        RunRunning,
		Stages:        make(map[Stage]*StageRecord, len(Stages)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.resetStages()
	return s, nil
}

func (s *WorkflowState) resetStages() {
	for _, st := range Stages {
		s.Stages[st] = &StageRecord{Stage: st, Iteration: s.Iteration, Status: StagePending}
	}
}

// IsTerminal returns true once the run has succeeded or failed
func (s *WorkflowState) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// IterationsExhausted returns true when no further iteration may begin
func (s *WorkflowState) IterationsExhausted() bool {
	return s.Iteration >= s.MaxIterations
}

// BeginIteration archives the current stage records and starts the next iteration
func (s *WorkflowState) BeginIteration() error {
	if s.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if s.IterationsExhausted() {
		return ErrIterationsExhausted.WithDetails(map[string]interface{}{
			"iteration": s.Iteration, "max_iterations": s.MaxIterations,
		})
	}

	if s.Iteration > 0 {
		for _, st := range Stages {
			if rec := s.Stages[st]; rec != nil {
				s.History = append(s.History, *rec)
			}
		}
	}

	s.Iteration++
	s.resetStages()
	s.touch()
	return nil
}

// Record returns the current iteration's record for stage
func (s *WorkflowState) Record(stage Stage) *StageRecord {
	return s.Stages[stage]
}

// StartStage marks stage as running. The previous stage of the same iteration
// must already be completed.
func (s *WorkflowState) StartStage(stage Stage) error {
	rec, err := s.transition(stage, StageRunning)
	if err != nil {
		return err
	}

	if prev, ok := stage.Previous(); ok {
		if p := s.Stages[prev]; p == nil || p.Status != StageCompleted {
			return ErrStageOutOfOrder.WithDetails(map[string]interface{}{
				"stage": stage, "previous": prev, "iteration": s.Iteration,
			})
		}
	}

	now := time.Now().UTC()
	rec.Status = StageRunning
	rec.StartedAt = &now
	s.touch()
	return nil
}

// CompleteStage marks stage as completed with output serialized into the record
func (s *WorkflowState) CompleteStage(stage Stage, output interface{}) error {
	rec, err := s.transition(stage, StageCompleted)
	if err != nil {
		return err
	}
	if err := rec.setOutput(output); err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.Status = StageCompleted
	rec.FinishedAt = &now
	s.touch()
	return nil
}

// FailStage marks stage as failed. output may be nil; when present it is kept for diagnostics.
func (s *WorkflowState) FailStage(stage Stage, message string, output interface{}) error {
	rec, err := s.transition(stage, StageFailed)
	if err != nil {
		return err
	}
	if err := rec.setOutput(output); err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.Status = StageFailed
	rec.Error = message
	rec.FinishedAt = &now
	s.touch()
	return nil
}

// Succeed moves the run to succeeded. Allowed exactly once.
func (s *WorkflowState) Succeed() error {
	return s.finish(RunSucceeded, "")
}

// Fail moves the run to failed with message as the terminal error. Allowed exactly once.
func (s *WorkflowState) Fail(message string) error {
	return s.finish(RunFailed, message)
}

// OrderedStages returns the current iteration's records in execution order
func (s *WorkflowState) OrderedStages() []StageRecord {
	records := make([]StageRecord, 0, len(Stages))
	for _, st := range Stages {
		if rec := s.Stages[st]; rec != nil {
			records = append(records, *rec)
		}
	}
	return records
}

// AllRecords returns archived and current records, oldest first
func (s *WorkflowState) AllRecords() []StageRecord {
	all := make([]StageRecord, 0, len(s.History)+len(Stages))
	all = append(all, s.History...)
	return append(all, s.OrderedStages()...)
}

// Snapshot returns a deep copy safe to hand to persistence while the run continues
func (s *WorkflowState) Snapshot() *WorkflowState {
	cp := *s
	cp.Stages = make(map[Stage]*StageRecord, len(s.Stages))
	for k, v := range s.Stages {
		rec := *v
		rec.Output = append(json.RawMessage(nil), v.Output...)
		cp.Stages[k] = &rec
	}
	cp.History = append([]StageRecord(nil), s.History...)
	return &cp
}

func (s *WorkflowState) transition(stage Stage, next StageStatus) (*StageRecord, error) {
	if s.IsTerminal() {
		return nil, ErrAlreadyTerminal
	}
	rec := s.Stages[stage]
	if rec == nil || s.Iteration == 0 {
		return nil, ErrInvalidTransition.WithDetails(map[string]interface{}{
			"stage": stage, "reason": "no active iteration",
		})
	}
	if !rec.Status.CanTransitionTo(next) {
		return nil, ErrInvalidTransition.WithDetails(map[string]interface{}{
			"stage": stage, "from": rec.Status, "to": next,
		})
	}
	return rec, nil
}

func (s *WorkflowState) finish(status RunStatus, message string) error {
	if !s.Status.CanTransitionTo(status) {
		return ErrAlreadyTerminal.WithDetails(map[string]interface{}{
			"from": s.Status, "to": status,
		})
	}
	now := time.Now().UTC()
	s.Status = status
	s.Error = message
	s.FinishedAt = &now
	s.touch()
	return nil
}

func (s *WorkflowState) touch() {
	s.UpdatedAt = time.Now().UTC()
}

func (r *StageRecord) setOutput(output interface{}) error {
	if output == nil {
		return nil
	}
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal %s output: %w", r.Stage, err)
	}
	r.Output = data
	return nil
}

// DecodeOutput unmarshals the record output into v
func (r StageRecord) DecodeOutput(v interface{}) error {
	if len(r.Output) == 0 {
		return fmt.Errorf("stage %s has no output", r.Stage)
	}
	return json.Unmarshal(r.Output, v)
}
