package workflow

import (
	"github.com/foolishimp/c4h-intent-system-sub000/internal/app"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/execution"
)

// Executors are the four stage collaborators of one orchestrator
type Executors struct {
	Discovery output.DiscoveryExecutor
	Solution  output.SolutionExecutor
	Edit      output.EditExecutor
	Validate  output.ValidateExecutor
}

// RunRequest holds the immutable inputs of one run
type RunRequest struct {
	RunID         execution.RunID // empty generates a new ID
	ProjectPath   string
	Intent        string
	MaxIterations int // <= 0 uses the orchestrator default
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithStateRepository persists the state after every transition
func WithStateRepository(repo execution.StateRepository) Option {
	return func(o *Orchestrator) { o.repo = repo }
}

// WithArchive uploads the terminal state snapshot
func WithArchive(storage output.StorageGateway) Option {
	return func(o *Orchestrator) { o.archive = storage }
}

// WithJournal appends one entry per finished stage and per finished run
func WithJournal(j output.RunJournal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithLogger sets the logger
func WithLogger(l app.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics recorder
func WithMetrics(r output.MetricsRecorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithDefaultMaxIterations sets the bound used when a request does not choose one
func WithDefaultMaxIterations(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.defaultMaxIterations = n
		}
	}
}
