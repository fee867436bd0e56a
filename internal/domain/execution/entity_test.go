package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState(t *testing.T, max int) *WorkflowState {
	t.Helper()
	s, err := NewWorkflowState("/tmp/project", "add logging", max)
	require.NoError(t, err)
	return s
}

func TestNewWorkflowState(t *testing.T) {
	s := newState(t, 0)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, DefaultMaxIterations, s.MaxIterations)
	assert.Equal(t, 0, s.Iteration)
	assert.Equal(t, RunRunning, s.Status)
	assert.Len(t, s.Stages, 4)
	for _, rec := range s.OrderedStages() {
		assert.Equal(t, StagePending, rec.Status)
	}

	_, err := NewWorkflowState("", "x", 1)
	assert.ErrorIs(t, err, ErrInvalidRun)
	_, err = NewWorkflowState("/p", "  ", 1)
	assert.ErrorIs(t, err, ErrInvalidRun)
}

func TestRunIDsAreUnique(t *testing.T) {
	seen := make(map[RunID]bool)
	for i := 0; i < 1000; i++ {
		id := NewRunID()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestStagesRunInOrder(t *testing.T) {
	s := newState(t, 3)

	err := s.StartStage(StageDiscovery)
	assert.True(t, IsInvalidTransition(err), "no iteration started yet")

	require.NoError(t, s.BeginIteration())
	assert.Equal(t, 1, s.Iteration)

	err = s.StartStage(StageSolution)
	assert.True(t, IsStageOutOfOrder(err))

	require.NoError(t, s.StartStage(StageDiscovery))
	err = s.StartStage(StageSolution)
	assert.True(t, IsStageOutOfOrder(err), "discovery still running")

	require.NoError(t, s.CompleteStage(StageDiscovery, DiscoveryPayload{Root: "/tmp/project"}))
	require.NoError(t, s.StartStage(StageSolution))

	rec := s.Record(StageDiscovery)
	assert.Equal(t, StageCompleted, rec.Status)
	assert.NotNil(t, rec.StartedAt)
	assert.NotNil(t, rec.FinishedAt)

	var payload DiscoveryPayload
	require.NoError(t, rec.DecodeOutput(&payload))
	assert.Equal(t, "/tmp/project", payload.Root)
}

func TestFailStageKeepsOutput(t *testing.T) {
	s := newState(t, 3)
	require.NoError(t, s.BeginIteration())
	for _, st := range []Stage{StageDiscovery, StageSolution, StageEdit} {
		require.NoError(t, s.StartStage(st))
		require.NoError(t, s.CompleteStage(st, nil))
	}
	require.NoError(t, s.StartStage(StageValidate))
	report := ValidationReport{Passed: false, Checks: []CheckResult{{Name: "test", ExitCode: 1}}}
	require.NoError(t, s.FailStage(StageValidate, "checks failed: test", report))

	rec := s.Record(StageValidate)
	assert.Equal(t, StageFailed, rec.Status)
	assert.Equal(t, "checks failed: test", rec.Error)

	var got ValidationReport
	require.NoError(t, rec.DecodeOutput(&got))
	assert.Equal(t, []string{"test"}, got.FailedChecks())

	err := s.CompleteStage(StageValidate, nil)
	assert.True(t, IsInvalidTransition(err), "failed is final")
}

func TestBeginIterationArchivesHistory(t *testing.T) {
	s := newState(t, 2)
	require.NoError(t, s.BeginIteration())
	require.NoError(t, s.StartStage(StageDiscovery))
	require.NoError(t, s.FailStage(StageDiscovery, "boom", nil))

	require.NoError(t, s.BeginIteration())
	assert.Equal(t, 2, s.Iteration)
	assert.Len(t, s.History, 4)
	assert.Equal(t, StageFailed, s.History[0].Status)
	assert.Equal(t, 1, s.History[0].Iteration)
	assert.Equal(t, StagePending, s.Record(StageDiscovery).Status)
	assert.Equal(t, 2, s.Record(StageDiscovery).Iteration)
	assert.Len(t, s.AllRecords(), 8)

	err := s.BeginIteration()
	assert.ErrorIs(t, err, ErrIterationsExhausted)
	assert.Equal(t, 2, s.Iteration)
}

func TestTerminalStatusIsSetOnce(t *testing.T) {
	s := newState(t, 1)
	require.NoError(t, s.BeginIteration())
	require.NoError(t, s.Fail(MaxIterationsReached))

	assert.Equal(t, RunFailed, s.Status)
	assert.Equal(t, MaxIterationsReached, s.Error)
	assert.NotNil(t, s.FinishedAt)

	assert.True(t, IsAlreadyTerminal(s.Succeed()))
	assert.True(t, IsAlreadyTerminal(s.Fail("other")))
	assert.True(t, IsAlreadyTerminal(s.StartStage(StageDiscovery)))
	assert.True(t, IsAlreadyTerminal(s.BeginIteration()))
	assert.Equal(t, RunFailed, s.Status)
	assert.Equal(t, MaxIterationsReached, s.Error)
}

func TestSnapshotIsIndependent(t *testing.T) {
	s := newState(t, 3)
	require.NoError(t, s.BeginIteration())
	require.NoError(t, s.StartStage(StageDiscovery))
	require.NoError(t, s.CompleteStage(StageDiscovery, map[string]int{"files": 1}))

	snap := s.Snapshot()
	require.NoError(t, s.StartStage(StageSolution))
	s.Record(StageDiscovery).Output[0] = 'X'

	assert.Equal(t, StagePending, snap.Record(StageSolution).Status)
	assert.Equal(t, byte('{'), snap.Record(StageDiscovery).Output[0])
}
