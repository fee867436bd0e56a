package execution

// Stage identifies one phase of a workflow iteration
type Stage string

const (
	StageDiscovery Stage = "discovery" // Scan project structure
	StageSolution  Stage = "solution"  // Design the change set
	StageEdit      Stage = "edit"      // Apply file changes
	StageValidate  Stage = "validate"  // Run checks against applied changes
)

// Stages is the fixed execution order within one iteration
var Stages = []Stage{StageDiscovery, StageSolution, StageEdit, StageValidate}

// String returns the string representation of the stage
func (s Stage) String() string {
	return string(s)
}

// Index returns the position of the stage in the iteration order, or -1
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// IsValid returns true if the stage is one of the four known stages
func (s Stage) IsValid() bool {
	return s.Index() >= 0
}

// Previous returns the stage that must complete before s, and false for discovery
func (s Stage) Previous() (Stage, bool) {
	i := s.Index()
	if i <= 0 {
		return "", false
	}
	return Stages[i-1], true
}

// StageStatus is the status of one stage record
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// String returns the string representation of the status
func (s StageStatus) String() string {
	return string(s)
}

// IsFinished returns true once the stage has completed or failed
func (s StageStatus) IsFinished() bool {
	return s == StageCompleted || s == StageFailed
}

// IsValid returns true if the status is valid
func (s StageStatus) IsValid() bool {
	switch s {
	case StagePending, StageRunning, StageCompleted, StageFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if transition to another status is allowed
func (s StageStatus) CanTransitionTo(next StageStatus) bool {
	validTransitions := map[StageStatus][]StageStatus{
		StagePending:   {StageRunning},
		StageRunning:   {StageCompleted, StageFailed},
		StageCompleted: {},
		StageFailed:    {},
	}

	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}

	for _, validNext := range allowed {
		if validNext == next {
			return true
		}
	}

	return false
}

// RunStatus is the terminal status of a workflow run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// String returns the string representation of the status
func (s RunStatus) String() string {
	return string(s)
}

// IsTerminal returns true once the run has succeeded or failed
func (s RunStatus) IsTerminal() bool {
	return s == RunSucceeded || s == RunFailed
}

// IsValid returns true if the status is valid
func (s RunStatus) IsValid() bool {
	switch s {
	case RunRunning, RunSucceeded, RunFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if transition to another status is allowed.
// A run leaves running exactly once and never comes back.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	return s == RunRunning && next.IsTerminal()
}
