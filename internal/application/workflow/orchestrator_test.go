package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/execution"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/outcome"
)

type discoveryFunc func(context.Context, output.DiscoveryInput) outcome.Outcome[execution.DiscoveryPayload]

func (f discoveryFunc) Execute(ctx context.Context, in output.DiscoveryInput) outcome.Outcome[execution.DiscoveryPayload] {
	return f(ctx, in)
}

type solutionFunc func(context.Context, output.SolutionInput) outcome.Outcome[[]execution.Change]

func (f solutionFunc) Execute(ctx context.Context, in output.SolutionInput) outcome.Outcome[[]execution.Change] {
	return f(ctx, in)
}

type editFunc func(context.Context, output.EditInput) outcome.Outcome[execution.FileResult]

func (f editFunc) Execute(ctx context.Context, in output.EditInput) outcome.Outcome[execution.FileResult] {
	return f(ctx, in)
}

type validateFunc func(context.Context, output.ValidateInput) outcome.Outcome[execution.ValidationReport]

func (f validateFunc) Execute(ctx context.Context, in output.ValidateInput) outcome.Outcome[execution.ValidationReport] {
	return f(ctx, in)
}

// script counts calls to each stage and lets tests override any of them
type script struct {
	mu            sync.Mutex
	calls         map[execution.Stage]int
	feedback      []string
	validateInput []output.ValidateInput

	discovery discoveryFunc
	solution  solutionFunc
	edit      editFunc
	validate  validateFunc
}

var projectFiles = execution.DiscoveryPayload{Root: "/proj", Files: map[string]execution.FileMeta{"a.py": {Size: 11}}}

func modifyA() []execution.Change {
	return []execution.Change{{Path: "a.py", Kind: execution.ChangeModify, Instructions: "add logging"}}
}

func report(passed bool) execution.ValidationReport {
	return execution.ValidationReport{
		Passed:      passed,
		Checks:      []execution.CheckResult{{Name: "tests", Passed: passed}},
		Diagnostics: "FAIL test_a",
	}
}

func newScript() *script {
	return &script{
		calls: map[execution.Stage]int{},
		discovery: func(context.Context, output.DiscoveryInput) outcome.Outcome[execution.DiscoveryPayload] {
			return outcome.Success(projectFiles)
		},
		solution: func(context.Context, output.SolutionInput) outcome.Outcome[[]execution.Change] {
			return outcome.Success(modifyA())
		},
		edit: func(_ context.Context, in output.EditInput) outcome.Outcome[execution.FileResult] {
			return outcome.Success(execution.FileResult{Path: in.Change.Path, Kind: in.Change.Kind, Status: execution.FileApplied, BackupPath: "/proj/a.py.bak_000"})
		},
		validate: func(context.Context, output.ValidateInput) outcome.Outcome[execution.ValidationReport] {
			return outcome.Success(report(true))
		},
	}
}

func (s *script) count(st execution.Stage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[st]
}

func (s *script) executors() Executors {
	hit := func(st execution.Stage) {
		s.mu.Lock()
		s.calls[st]++
		s.mu.Unlock()
	}
	return Executors{
		Discovery: discoveryFunc(func(ctx context.Context, in output.DiscoveryInput) outcome.Outcome[execution.DiscoveryPayload] {
			hit(execution.StageDiscovery)
			return s.discovery(ctx, in)
		}),
		Solution: solutionFunc(func(ctx context.Context, in output.SolutionInput) outcome.Outcome[[]execution.Change] {
			hit(execution.StageSolution)
			s.mu.Lock()
			s.feedback = append(s.feedback, in.Feedback)
			s.mu.Unlock()
			return s.solution(ctx, in)
		}),
		Edit: editFunc(func(ctx context.Context, in output.EditInput) outcome.Outcome[execution.FileResult] {
			hit(execution.StageEdit)
			return s.edit(ctx, in)
		}),
		Validate: validateFunc(func(ctx context.Context, in output.ValidateInput) outcome.Outcome[execution.ValidationReport] {
			hit(execution.StageValidate)
			s.mu.Lock()
			s.validateInput = append(s.validateInput, in)
			s.mu.Unlock()
			return s.validate(ctx, in)
		}),
	}
}

func run(t *testing.T, s *script, maxIterations int, opts ...Option) *execution.WorkflowState {
	t.Helper()
	return runCtx(t, context.Background(), s, maxIterations, opts...)
}

func runCtx(t *testing.T, ctx context.Context, s *script, maxIterations int, opts ...Option) *execution.WorkflowState {
	t.Helper()
	o, err := NewOrchestrator(s.executors(), opts...)
	require.NoError(t, err)
	state, err := o.Run(ctx, RunRequest{ProjectPath: "/proj", Intent: "add logging", MaxIterations: maxIterations})
	require.NoError(t, err)
	require.True(t, state.IsTerminal())
	return state
}

func TestRun_HappyPath(t *testing.T) {
	s := newScript()
	state := run(t, s, 3)

	assert.Equal(t, execution.RunSucceeded, state.Status)
	assert.Equal(t, 1, state.Iteration)
	assert.Empty(t, state.Error)
	assert.NotNil(t, state.FinishedAt)
	for _, rec := range state.OrderedStages() {
		assert.Equal(t, execution.StageCompleted, rec.Status, rec.Stage)
		assert.NotNil(t, rec.StartedAt, rec.Stage)
		assert.NotNil(t, rec.FinishedAt, rec.Stage)
	}

	var results []execution.FileResult
	require.NoError(t, state.Record(execution.StageEdit).DecodeOutput(&results))
	assert.Equal(t, "/proj/a.py.bak_000", results[0].BackupPath)
}

func TestRun_ValidateAlwaysFailsStopsAtMaxIterations(t *testing.T) {
	s := newScript()
	s.validate = func(context.Context, output.ValidateInput) outcome.Outcome[execution.ValidationReport] {
		return outcome.Success(report(false))
	}

	state := run(t, s, 3)

	assert.Equal(t, execution.RunFailed, state.Status)
	assert.Equal(t, execution.MaxIterationsReached, state.Error)
	assert.Equal(t, 3, state.Iteration)
	assert.Equal(t, 3, s.count(execution.StageDiscovery), "every iteration re-runs discovery")
	assert.Equal(t, 3, s.count(execution.StageValidate))
	assert.Len(t, state.History, 8, "two archived iterations of four stages")

	last := state.Record(execution.StageValidate)
	assert.Equal(t, execution.StageFailed, last.Status)
	assert.Contains(t, last.Error, "checks failed: tests")
	var kept execution.ValidationReport
	require.NoError(t, last.DecodeOutput(&kept))
	assert.False(t, kept.Passed, "last validate payload is retained for diagnostics")

	assert.Equal(t, []string{"", "FAIL test_a", "FAIL test_a"}, s.feedback)
}

func TestRun_SucceedsOnSecondIteration(t *testing.T) {
	s := newScript()
	s.validate = func(context.Context, output.ValidateInput) outcome.Outcome[execution.ValidationReport] {
		return outcome.Success(report(s.count(execution.StageValidate) > 1))
	}

	state := run(t, s, 3)
	assert.Equal(t, execution.RunSucceeded, state.Status)
	assert.Equal(t, 2, state.Iteration)
	require.Len(t, state.History, 4)
	assert.Equal(t, 1, state.History[3].Iteration)
	assert.Equal(t, execution.StageFailed, state.History[3].Status)
}

func TestRun_MaxIterationsOne(t *testing.T) {
	s := newScript()
	s.validate = func(context.Context, output.ValidateInput) outcome.Outcome[execution.ValidationReport] {
		return outcome.Success(report(false))
	}
	state := run(t, s, 1)
	assert.Equal(t, execution.MaxIterationsReached, state.Error)
	assert.Equal(t, 1, state.Iteration)
}

func TestRun_DefaultMaxIterations(t *testing.T) {
	s := newScript()
	s.validate = func(context.Context, output.ValidateInput) outcome.Outcome[execution.ValidationReport] {
		return outcome.Success(report(false))
	}

	state := run(t, s, 0)
	assert.Equal(t, execution.DefaultMaxIterations, state.MaxIterations)

	s = newScript()
	s.validate = func(context.Context, output.ValidateInput) outcome.Outcome[execution.ValidationReport] {
		return outcome.Success(report(false))
	}
	state = run(t, s, 0, WithDefaultMaxIterations(5))
	assert.Equal(t, 5, state.Iteration)
}

func TestRun_EmptyChangeListSucceedsImmediately(t *testing.T) {
	tests := map[string]solutionFunc{
		"empty list": func(context.Context, output.SolutionInput) outcome.Outcome[[]execution.Change] {
			return outcome.Success([]execution.Change{})
		},
		"no_changes sentinel": func(context.Context, output.SolutionInput) outcome.Outcome[[]execution.Change] {
			return outcome.NoChanges[[]execution.Change]("already logs")
		},
	}
	for name, sol := range tests {
		t.Run(name, func(t *testing.T) {
			s := newScript()
			s.solution = sol

			state := run(t, s, 3)

			assert.Equal(t, execution.RunSucceeded, state.Status)
			assert.Equal(t, 1, state.Iteration)
			assert.Zero(t, s.count(execution.StageEdit))
			assert.Zero(t, s.count(execution.StageValidate))
			for _, st := range []execution.Stage{execution.StageEdit, execution.StageValidate} {
				rec := state.Record(st)
				assert.Equal(t, execution.StagePending, rec.Status, st)
				assert.Nil(t, rec.StartedAt, st)
			}
			assert.Equal(t, execution.StageCompleted, state.Record(execution.StageSolution).Status)
		})
	}
}

func TestRun_SolutionSentinelsFail(t *testing.T) {
	tests := []struct {
		name string
		out  outcome.Outcome[[]execution.Change]
		want string
	}{
		{"clarification", outcome.NeedsClarification[[]execution.Change]("which logger?"), "solution failed: needs clarification: which logger?"},
		{"more info", outcome.NeedsMoreInfo[[]execution.Change]("show me setup.cfg"), "solution failed: needs more information: show me setup.cfg"},
		{"provider failure", outcome.Failure[[]execution.Change](outcome.TransientFailure, "all backends failed: a: timeout; b: 503"), "solution failed: all backends failed: a: timeout; b: 503"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newScript()
			s.solution = func(context.Context, output.SolutionInput) outcome.Outcome[[]execution.Change] { return tt.out }

			state := run(t, s, 3)

			assert.Equal(t, execution.RunFailed, state.Status)
			assert.Equal(t, tt.want, state.Error)
			assert.Equal(t, 1, state.Iteration)
			assert.Zero(t, s.count(execution.StageEdit))
			assert.Equal(t, execution.StageFailed, state.Record(execution.StageSolution).Status)
		})
	}
}

func TestRun_DiscoveryFailureIsNotRetried(t *testing.T) {
	s := newScript()
	s.discovery = func(context.Context, output.DiscoveryInput) outcome.Outcome[execution.DiscoveryPayload] {
		return outcome.Failure[execution.DiscoveryPayload](outcome.InvalidInput, "project path /proj does not exist")
	}

	state := run(t, s, 3)

	assert.Equal(t, execution.RunFailed, state.Status)
	assert.Equal(t, "discovery failed: project path /proj does not exist", state.Error)
	assert.Equal(t, 1, state.Iteration)
	assert.Equal(t, 1, s.count(execution.StageDiscovery))
	assert.Zero(t, s.count(execution.StageSolution))
}

func TestRun_EmptyDiscoveryFails(t *testing.T) {
	s := newScript()
	s.discovery = func(context.Context, output.DiscoveryInput) outcome.Outcome[execution.DiscoveryPayload] {
		return outcome.Success(execution.DiscoveryPayload{Root: "/proj"})
	}
	state := run(t, s, 3)
	assert.Equal(t, "discovery failed: no files discovered", state.Error)
	assert.Zero(t, s.count(execution.StageSolution))
}

func TestRun_PartialEditProceedsToValidate(t *testing.T) {
	s := newScript()
	s.solution = func(context.Context, output.SolutionInput) outcome.Outcome[[]execution.Change] {
		return outcome.Success([]execution.Change{
			{Path: "a.py", Kind: execution.ChangeModify, Instructions: "x"},
			{Path: "b.py", Kind: execution.ChangeModify, Instructions: "y"},
			{Path: "c.py", Kind: execution.ChangeCreate, Instructions: "z"},
		})
	}
	base := s.edit
	s.edit = func(ctx context.Context, in output.EditInput) outcome.Outcome[execution.FileResult] {
		if in.Change.Path == "b.py" {
			return outcome.Failure[execution.FileResult](outcome.MergeFailed, "producer: model returned no code")
		}
		return base(ctx, in)
	}

	state := run(t, s, 3)

	assert.Equal(t, execution.RunSucceeded, state.Status)
	assert.Equal(t, 3, s.count(execution.StageEdit), "a failure does not abort the batch")
	require.Len(t, s.validateInput, 1)
	applied := s.validateInput[0].Applied
	require.Len(t, applied, 3)
	assert.True(t, applied[0].IsApplied())
	assert.False(t, applied[1].IsApplied())
	assert.Contains(t, applied[1].Error, "MergeFailed")
	assert.True(t, applied[2].IsApplied())
}

func TestRun_ZeroAppliedFails(t *testing.T) {
	s := newScript()
	s.edit = func(context.Context, output.EditInput) outcome.Outcome[execution.FileResult] {
		return outcome.Failure[execution.FileResult](outcome.MergeFailed, "content producer panicked")
	}

	state := run(t, s, 3)

	assert.Equal(t, execution.RunFailed, state.Status)
	assert.Contains(t, state.Error, "edit failed: none of 1 change(s) could be applied")
	assert.Contains(t, state.Error, "a.py: content producer panicked")
	assert.Equal(t, 1, state.Iteration, "edit failure does not re-iterate")
	assert.Zero(t, s.count(execution.StageValidate))

	rec := state.Record(execution.StageEdit)
	assert.Equal(t, execution.StageFailed, rec.Status)
	var results []execution.FileResult
	require.NoError(t, rec.DecodeOutput(&results))
	assert.Equal(t, execution.FileFailed, results[0].Status)
}

func TestRun_ValidateExecutorFailureEndsRun(t *testing.T) {
	s := newScript()
	s.validate = func(context.Context, output.ValidateInput) outcome.Outcome[execution.ValidationReport] {
		return outcome.Failure[execution.ValidationReport](outcome.InvalidInput, "no applied changes to validate")
	}
	state := run(t, s, 3)
	assert.Equal(t, "validate failed: no applied changes to validate", state.Error)
	assert.Equal(t, 1, state.Iteration)
}

func TestRun_CancelledBeforeFirstIteration(t *testing.T) {
	s := newScript()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := runCtx(t, ctx, s, 3)

	assert.Equal(t, execution.RunFailed, state.Status)
	assert.Contains(t, state.Error, "run cancelled")
	assert.Zero(t, state.Iteration)
	assert.Zero(t, s.count(execution.StageDiscovery))
}

func TestRun_CancelledBetweenFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newScript()
	s.solution = func(context.Context, output.SolutionInput) outcome.Outcome[[]execution.Change] {
		return outcome.Success([]execution.Change{
			{Path: "a.py", Kind: execution.ChangeModify, Instructions: "x"},
			{Path: "b.py", Kind: execution.ChangeModify, Instructions: "y"},
		})
	}
	base := s.edit
	s.edit = func(ctx context.Context, in output.EditInput) outcome.Outcome[execution.FileResult] {
		out := base(ctx, in)
		cancel()
		return out
	}

	state := runCtx(t, ctx, s, 3)

	assert.Equal(t, execution.RunFailed, state.Status)
	assert.Contains(t, state.Error, "run cancelled")
	assert.Equal(t, 1, s.count(execution.StageEdit), "second file is never started")
	assert.Zero(t, s.count(execution.StageValidate))

	rec := state.Record(execution.StageEdit)
	assert.Equal(t, execution.StageFailed, rec.Status)
	var results []execution.FileResult
	require.NoError(t, rec.DecodeOutput(&results))
	require.Len(t, results, 1)
	assert.True(t, results[0].IsApplied())
}

func TestRun_CancelledBetweenIterations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newScript()
	s.validate = func(context.Context, output.ValidateInput) outcome.Outcome[execution.ValidationReport] {
		cancel()
		return outcome.Success(report(false))
	}

	state := runCtx(t, ctx, s, 3)
	assert.Contains(t, state.Error, "run cancelled")
	assert.Equal(t, 1, state.Iteration)
}

func TestRun_InvalidRequest(t *testing.T) {
	o, err := NewOrchestrator(newScript().executors())
	require.NoError(t, err)

	_, err = o.Run(context.Background(), RunRequest{ProjectPath: "/proj"})
	assert.ErrorIs(t, err, execution.ErrInvalidRun)

	_, err = o.Run(context.Background(), RunRequest{Intent: "x"})
	assert.ErrorIs(t, err, execution.ErrInvalidRun)
}

func TestRun_UsesCallerRunID(t *testing.T) {
	o, err := NewOrchestrator(newScript().executors())
	require.NoError(t, err)

	id := execution.NewRunID()
	state, err := o.Run(context.Background(), RunRequest{RunID: id, ProjectPath: "/proj", Intent: "add logging"})
	require.NoError(t, err)
	assert.Equal(t, id, state.ID)
}

func TestNewOrchestrator_RequiresAllExecutors(t *testing.T) {
	exec := newScript().executors()
	exec.Validate = nil
	_, err := NewOrchestrator(exec)
	assert.Error(t, err)
}

// memoryRepo keeps every saved snapshot
type memoryRepo struct {
	mu    sync.Mutex
	saves []*execution.WorkflowState
	err   error
}

func (r *memoryRepo) Save(_ context.Context, s *execution.WorkflowState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saves = append(r.saves, s)
	return nil
}

func (r *memoryRepo) FindByID(context.Context, execution.RunID) (*execution.WorkflowState, error) {
	return nil, execution.ErrRunNotFound
}

func (r *memoryRepo) FindRecent(context.Context, int) ([]*execution.WorkflowState, error) {
	return nil, nil
}

func TestRun_PersistsEveryTransition(t *testing.T) {
	repo := &memoryRepo{}
	state := run(t, newScript(), 3, WithStateRepository(repo))

	// created, iteration 1, then start+finish of four stages, then terminal
	require.Len(t, repo.saves, 11)
	assert.Equal(t, execution.RunRunning, repo.saves[0].Status)
	assert.Zero(t, repo.saves[0].Iteration)
	assert.Equal(t, execution.StageRunning, repo.saves[2].Record(execution.StageDiscovery).Status)

	final := repo.saves[len(repo.saves)-1]
	assert.Equal(t, execution.RunSucceeded, final.Status)
	assert.Equal(t, state.ID, final.ID)

	// snapshots are independent of the live state
	assert.NotSame(t, state, final)
	assert.Equal(t, execution.StagePending, repo.saves[1].Record(execution.StageDiscovery).Status)
}

func TestRun_PersistFailureDoesNotChangeOutcome(t *testing.T) {
	repo := &memoryRepo{err: errors.New("disk full")}
	state := run(t, newScript(), 3, WithStateRepository(repo))
	assert.Equal(t, execution.RunSucceeded, state.Status)
}

type fakeArchive struct {
	reqs []output.SaveArtifactRequest
	err  error
}

func (f *fakeArchive) SaveArtifact(_ context.Context, req output.SaveArtifactRequest) (*output.ArtifactMetadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.reqs = append(f.reqs, req)
	return &output.ArtifactMetadata{ID: "x", StoragePath: "mem://x", UploadedAt: time.Now()}, nil
}

func (f *fakeArchive) LoadArtifact(context.Context, string) (*output.Artifact, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeArchive) ListArtifacts(context.Context, string) ([]*output.ArtifactMetadata, error) {
	return nil, nil
}

func TestRun_ArchivesTerminalState(t *testing.T) {
	archive := &fakeArchive{}
	state := run(t, newScript(), 3, WithArchive(archive))

	require.Len(t, archive.reqs, 1)
	req := archive.reqs[0]
	assert.Equal(t, state.ID.String(), req.RunID)
	assert.Equal(t, output.ArtifactTypeState, req.ArtifactType)
	assert.Equal(t, "succeeded", req.Metadata["status"])
	assert.Contains(t, string(req.Content), `"status": "succeeded"`)

	failing := &fakeArchive{err: errors.New("bucket missing")}
	state = run(t, newScript(), 3, WithArchive(failing))
	assert.Equal(t, execution.RunSucceeded, state.Status)
}

type countingMetrics struct {
	output.NopMetrics
	mu     sync.Mutex
	stages map[string]int
	runs   []string
}

func (m *countingMetrics) StageFinished(stage, result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[stage+"/"+result]++
}

func (m *countingMetrics) RunFinished(status string, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, status)
}

func TestRun_RecordsMetrics(t *testing.T) {
	m := &countingMetrics{stages: map[string]int{}}
	s := newScript()
	s.validate = func(context.Context, output.ValidateInput) outcome.Outcome[execution.ValidationReport] {
		return outcome.Success(report(false))
	}

	run(t, s, 2, WithMetrics(m))

	assert.Equal(t, 2, m.stages["discovery/completed"])
	assert.Equal(t, 2, m.stages["validate/failed"])
	assert.Equal(t, []string{"failed"}, m.runs)
}

type memoryJournal struct {
	mu      sync.Mutex
	entries []output.JournalEntry
	err     error
}

func (j *memoryJournal) Append(e output.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return j.err
}

func (j *memoryJournal) steps() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []string
	for _, e := range j.entries {
		out = append(out, e.Step+":"+e.Decision)
	}
	return out
}

func TestRun_JournalsStagesAndRun(t *testing.T) {
	j := &memoryJournal{}
	s := newScript()
	calls := 0
	s.validate = func(context.Context, output.ValidateInput) outcome.Outcome[execution.ValidationReport] {
		calls++
		return outcome.Success(report(calls > 1))
	}

	state := run(t, s, 3, WithJournal(j))

	require.Equal(t, execution.RunSucceeded, state.Status)
	assert.Equal(t, []string{
		"discovery:OK", "solution:OK", "edit:OK", "validate:NEEDS_CHANGES",
		"discovery:OK", "solution:OK", "edit:OK", "validate:OK",
		"run:OK",
	}, j.steps())

	for _, e := range j.entries {
		assert.Equal(t, state.ID.String(), e.RunID)
	}
	assert.Equal(t, 1, j.entries[0].Turn)
	assert.Equal(t, 2, j.entries[4].Turn)
	assert.Equal(t, []string{"a.py"}, j.entries[2].Artifacts)
	assert.Contains(t, j.entries[3].Error, "checks failed: tests")
}

func TestRun_JournalFailureDoesNotChangeOutcome(t *testing.T) {
	j := &memoryJournal{err: errors.New("read-only filesystem")}
	s := newScript()
	s.discovery = func(context.Context, output.DiscoveryInput) outcome.Outcome[execution.DiscoveryPayload] {
		return outcome.Failure[execution.DiscoveryPayload](outcome.InvalidInput, "project path does not exist")
	}

	state := run(t, s, 3, WithJournal(j))

	assert.Equal(t, execution.RunFailed, state.Status)
	assert.Equal(t, []string{"discovery:FAILED", "run:FAILED"}, j.steps())
	assert.Equal(t, "discovery failed: project path does not exist", j.entries[1].Error)
}
