// Package workflow drives one run through discovery, solution, edit and
// validate until validation passes, the iteration budget is spent, or a stage
// fails in a way re-iterating cannot fix.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/app"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/execution"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/outcome"
)

// stage results reported to metrics
const (
	resultCompleted = "completed"
	resultFailed    = "failed"
)

// Orchestrator runs workflows. It holds no per-run state, so one instance
// may drive several runs concurrently against different projects.
type Orchestrator struct {
	exec                 Executors
	repo                 execution.StateRepository
	archive              output.StorageGateway
	journal              output.RunJournal
	logger               app.Logger
	metrics              output.MetricsRecorder
	defaultMaxIterations int
}

// NewOrchestrator creates an orchestrator. Every executor is required.
func NewOrchestrator(exec Executors, opts ...Option) (*Orchestrator, error) {
	if exec.Discovery == nil || exec.Solution == nil || exec.Edit == nil || exec.Validate == nil {
		return nil, errors.New("all four stage executors are required")
	}
	o := &Orchestrator{
		exec:                 exec,
		logger:               app.NopLogger(),
		metrics:              output.NopMetrics{},
		defaultMaxIterations: execution.DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run drives one workflow to a terminal status. The returned error is only
// set when the request itself is malformed; every run outcome, including
// cancellation, is reported through the returned state.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*execution.WorkflowState, error) {
	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = o.defaultMaxIterations
	}
	state, err := execution.NewWorkflowState(req.ProjectPath, req.Intent, maxIterations)
	if err != nil {
		return nil, err
	}
	if req.RunID != "" {
		state.ID = req.RunID
	}

	o.logger.Info("run %s started: project=%s max_iterations=%d", state.ID, state.ProjectPath, state.MaxIterations)
	o.persist(ctx, state)

	o.drive(ctx, state)

	o.persist(ctx, state)
	o.archiveState(ctx, state)
	o.journalRun(state)
	o.metrics.RunFinished(state.Status.String(), state.Iteration)
	if state.Status == execution.RunSucceeded {
		o.logger.Info("run %s succeeded after %d iteration(s)", state.ID, state.Iteration)
	} else {
		o.logger.Warn("run %s failed after %d iteration(s): %s", state.ID, state.Iteration, state.Error)
	}
	return state, nil
}

func (o *Orchestrator) drive(ctx context.Context, state *execution.WorkflowState) {
	feedback := ""
	for {
		if err := ctx.Err(); err != nil {
			o.fail(state, cancelledMessage(err))
			return
		}
		if err := state.BeginIteration(); err != nil {
			o.fail(state, execution.MaxIterationsReached)
			return
		}
		o.logger.Info("run %s: iteration %d/%d", state.ID, state.Iteration, state.MaxIterations)
		o.persist(ctx, state)

		report, done := o.iterate(ctx, state, feedback)
		if done {
			return
		}
		if state.IterationsExhausted() {
			o.fail(state, execution.MaxIterationsReached)
			return
		}
		feedback = report.Diagnostics
		o.logger.Info("run %s: validation failed (%s), starting another iteration",
			state.ID, strings.Join(report.FailedChecks(), ", "))
	}
}

// iterate runs one pass through the four stages. done is false only when
// validation ran and reported failure, which is the one case that re-iterates.
func (o *Orchestrator) iterate(ctx context.Context, state *execution.WorkflowState, feedback string) (report execution.ValidationReport, done bool) {
	// discovery
	if !o.start(ctx, state, execution.StageDiscovery) {
		return report, true
	}
	began := time.Now()
	disc := o.exec.Discovery.Execute(ctx, output.DiscoveryInput{ProjectPath: state.ProjectPath})
	if !disc.IsSuccess() {
		o.stageFailed(ctx, state, execution.StageDiscovery, began, disc.Message(), nil)
		return report, true
	}
	if len(disc.Payload().Files) == 0 {
		o.stageFailed(ctx, state, execution.StageDiscovery, began, "no files discovered", nil)
		return report, true
	}
	if !o.stageCompleted(ctx, state, execution.StageDiscovery, began, disc.Payload()) {
		return report, true
	}

	// solution
	if !o.start(ctx, state, execution.StageSolution) {
		return report, true
	}
	began = time.Now()
	sol := o.exec.Solution.Execute(ctx, output.SolutionInput{
		Intent:    state.Intent,
		Discovery: disc.Payload(),
		Feedback:  feedback,
	})
	switch sol.Kind() {
	case outcome.KindSuccess:
	case outcome.KindNoChanges:
		if o.stageCompleted(ctx, state, execution.StageSolution, began, []execution.Change{}) {
			o.logger.Info("run %s: no changes needed: %s", state.ID, sol.Message())
			o.succeed(state)
		}
		return report, true
	case outcome.KindNeedsClarification:
		o.stageFailed(ctx, state, execution.StageSolution, began, "needs clarification: "+sol.Message(), nil)
		return report, true
	case outcome.KindNeedsMoreInfo:
		o.stageFailed(ctx, state, execution.StageSolution, began, "needs more information: "+sol.Message(), nil)
		return report, true
	default:
		o.stageFailed(ctx, state, execution.StageSolution, began, sol.Message(), nil)
		return report, true
	}
	changes := sol.Payload()
	if !o.stageCompleted(ctx, state, execution.StageSolution, began, changes) {
		return report, true
	}
	if len(changes) == 0 {
		o.logger.Info("run %s: solution proposed no changes", state.ID)
		o.succeed(state)
		return report, true
	}

	// edit
	applied, ok := o.edit(ctx, state, changes)
	if !ok {
		return report, true
	}

	if err := ctx.Err(); err != nil {
		o.fail(state, cancelledMessage(err))
		return report, true
	}

	// validate
	if !o.start(ctx, state, execution.StageValidate) {
		return report, true
	}
	began = time.Now()
	val := o.exec.Validate.Execute(ctx, output.ValidateInput{ProjectPath: state.ProjectPath, Applied: applied})
	if !val.IsSuccess() {
		o.stageFailed(ctx, state, execution.StageValidate, began, val.Message(), nil)
		return report, true
	}
	report = val.Payload()
	if report.Passed {
		if o.stageCompleted(ctx, state, execution.StageValidate, began, report) {
			o.succeed(state)
		}
		return report, true
	}

	msg := fmt.Sprintf("[%s] checks failed: %s", outcome.ValidationFailed, strings.Join(report.FailedChecks(), ", "))
	o.recordStage(ctx, state, execution.StageValidate, began, output.DecisionNeedsChanges, state.FailStage(execution.StageValidate, msg, report))
	return report, false
}

// edit applies every proposed change independently. ok is false when the run
// has reached a terminal status.
func (o *Orchestrator) edit(ctx context.Context, state *execution.WorkflowState, changes []execution.Change) (results []execution.FileResult, ok bool) {
	if !o.start(ctx, state, execution.StageEdit) {
		return nil, false
	}
	began := time.Now()
	results = make([]execution.FileResult, 0, len(changes))
	applied := 0
	var firstErr string

	for _, c := range changes {
		if err := ctx.Err(); err != nil {
			msg := cancelledMessage(err)
			o.recordStage(ctx, state, execution.StageEdit, began, output.DecisionFailed, state.FailStage(execution.StageEdit, msg, results))
			o.fail(state, msg)
			return nil, false
		}

		out := o.exec.Edit.Execute(ctx, output.EditInput{ProjectPath: state.ProjectPath, Change: c})
		if out.IsSuccess() {
			applied++
			results = append(results, out.Payload())
			o.logger.Info("run %s: %s %s applied (backup %q)", state.ID, c.Kind, c.Path, out.Payload().BackupPath)
			continue
		}
		if firstErr == "" {
			firstErr = fmt.Sprintf("%s: %s", c.Path, out.Message())
		}
		results = append(results, execution.FileResult{
			Path:   c.Path,
			Kind:   c.Kind,
			Status: execution.FileFailed,
			Error:  fmt.Sprintf("[%s] %s", out.ErrorKind(), out.Message()),
		})
		o.logger.Warn("run %s: %s %s failed: %s", state.ID, c.Kind, c.Path, out.Message())
	}

	if applied == 0 {
		msg := fmt.Sprintf("none of %d change(s) could be applied; first error: %s", len(changes), firstErr)
		o.stageFailed(ctx, state, execution.StageEdit, began, msg, results)
		return nil, false
	}
	if !o.stageCompleted(ctx, state, execution.StageEdit, began, results) {
		return nil, false
	}
	if applied < len(changes) {
		o.logger.Warn("run %s: %d of %d change(s) applied, validating partial result", state.ID, applied, len(changes))
	}
	return results, true
}

func (o *Orchestrator) start(ctx context.Context, state *execution.WorkflowState, stage execution.Stage) bool {
	if err := state.StartStage(stage); err != nil {
		o.fail(state, fmt.Sprintf("%s: %v", stage, err))
		return false
	}
	o.logger.Debug("run %s: %s started", state.ID, stage)
	o.persist(ctx, state)
	return true
}

func (o *Orchestrator) stageCompleted(ctx context.Context, state *execution.WorkflowState, stage execution.Stage, began time.Time, payload interface{}) bool {
	err := state.CompleteStage(stage, payload)
	o.recordStage(ctx, state, stage, began, output.DecisionOK, err)
	if err != nil {
		o.fail(state, fmt.Sprintf("%s: %v", stage, err))
		return false
	}
	return true
}

// stageFailed marks stage failed and fails the run with "<stage> failed: <message>"
func (o *Orchestrator) stageFailed(ctx context.Context, state *execution.WorkflowState, stage execution.Stage, began time.Time, message string, payload interface{}) {
	o.recordStage(ctx, state, stage, began, output.DecisionFailed, state.FailStage(stage, message, payload))
	o.fail(state, fmt.Sprintf("%s failed: %s", stage, message))
}

// recordStage reports a finished stage. decision is a journal decision; the
// metrics result is completed for OK and failed otherwise.
func (o *Orchestrator) recordStage(ctx context.Context, state *execution.WorkflowState, stage execution.Stage, began time.Time, decision string, err error) {
	result := resultCompleted
	if decision != output.DecisionOK {
		result = resultFailed
	}
	if err != nil {
		o.logger.Error("run %s: recording %s %s: %v", state.ID, stage, result, err)
		return
	}
	d := time.Since(began)
	o.metrics.StageFinished(stage.String(), result, d)
	o.logger.Debug("run %s: %s %s in %s", state.ID, stage, result, d.Round(time.Millisecond))
	o.persist(ctx, state)

	rec := state.Record(stage)
	o.appendJournal(output.JournalEntry{
		RunID:     state.ID.String(),
		Turn:      state.Iteration,
		Step:      stage.String(),
		Decision:  decision,
		ElapsedMs: d.Milliseconds(),
		Error:     rec.Error,
		Artifacts: artifactsOf(*rec),
	})
}

func (o *Orchestrator) journalRun(state *execution.WorkflowState) {
	decision := output.DecisionOK
	if state.Status != execution.RunSucceeded {
		decision = output.DecisionFailed
	}
	end := state.UpdatedAt
	if state.FinishedAt != nil {
		end = *state.FinishedAt
	}
	o.appendJournal(output.JournalEntry{
		RunID:     state.ID.String(),
		Turn:      state.Iteration,
		Step:      "run",
		Decision:  decision,
		ElapsedMs: end.Sub(state.CreatedAt).Milliseconds(),
		Error:     state.Error,
	})
}

func (o *Orchestrator) appendJournal(e output.JournalEntry) {
	if o.journal == nil {
		return
	}
	if err := o.journal.Append(e); err != nil {
		o.logger.Warn("run %s: failed to append journal: %v", e.RunID, err)
	}
}

// artifactsOf lists the paths an edit record applied
func artifactsOf(rec execution.StageRecord) []string {
	if rec.Stage != execution.StageEdit || len(rec.Output) == 0 {
		return nil
	}
	var results []execution.FileResult
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

func (o *Orchestrator) succeed(state *execution.WorkflowState) {
	if err := state.Succeed(); err != nil {
		o.logger.Error("run %s: %v", state.ID, err)
	}
}

func (o *Orchestrator) fail(state *execution.WorkflowState, message string) {
	if err := state.Fail(message); err != nil {
		o.logger.Error("run %s: %v", state.ID, err)
	}
}

// persist saves a snapshot. Persistence is for post-mortem inspection only, so
// a failed save is logged and never changes the run outcome.
func (o *Orchestrator) persist(ctx context.Context, state *execution.WorkflowState) {
	if o.repo == nil {
		return
	}
	if err := o.repo.Save(context.WithoutCancel(ctx), state.Snapshot()); err != nil {
		o.logger.Warn("run %s: failed to persist state: %v", state.ID, err)
	}
}

func (o *Orchestrator) archiveState(ctx context.Context, state *execution.WorkflowState) {
	if o.archive == nil {
		return
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		o.logger.Warn("run %s: failed to encode state for archive: %v", state.ID, err)
		return
	}
	meta, err := o.archive.SaveArtifact(context.WithoutCancel(ctx), output.SaveArtifactRequest{
		RunID:        state.ID.String(),
		ArtifactType: output.ArtifactTypeState,
		Content:      data,
		ContentType:  "application/json",
		Metadata: map[string]string{
			"status":     state.Status.String(),
			"iterations": fmt.Sprintf("%d", state.Iteration),
		},
	})
	if err != nil {
		o.logger.Warn("run %s: failed to archive state: %v", state.ID, err)
		return
	}
	o.logger.Info("run %s: archived to %s", state.ID, meta.StoragePath)
}

func cancelledMessage(err error) string {
	return fmt.Sprintf("run cancelled: %v", err)
}
