package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/outcome"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/interface/external/claudecli"
)

// ClaudeCLIGateway implements AgentGateway using the claude CLI in print mode
type ClaudeCLIGateway struct {
	name   string
	runner claudecli.Runner
	pacer  pacer
}

// NewClaudeCLIGateway creates a CLI gateway. Per-attempt deadlines come from
// the provider chain's context, so the runner carries no timeout of its own.
func NewClaudeCLIGateway(name, bin, model, workDir string, ratePerSecond float64) *ClaudeCLIGateway {
	if bin == "" {
		bin = "claude"
	}
	return &ClaudeCLIGateway{
		name:   name,
		runner: claudecli.Runner{Bin: bin, Dir: workDir, Model: model},
		pacer:  newPacer(ratePerSecond),
	}
}

// Name returns the configured backend name
func (g *ClaudeCLIGateway) Name() string { return g.name }

// CheckAvailable verifies the binary is installed
func (g *ClaudeCLIGateway) CheckAvailable() error {
	return g.runner.Available()
}

// Execute runs the CLI once
func (g *ClaudeCLIGateway) Execute(ctx context.Context, req output.AgentRequest) (*output.AgentResponse, error) {
	if err := g.pacer.wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := g.runner.Run(ctx, req.System, req.Prompt)
	if err != nil {
		return nil, outcome.Wrap(outcome.TransientFailure, err, g.name)
	}

	return &output.AgentResponse{
		Output:   result.Result,
		Backend:  g.name,
		Model:    g.runner.Model,
		Duration: time.Since(start),
		Metadata: map[string]string{
			"session_id": result.SessionID,
			"cost_usd":   fmt.Sprintf("%.4f", result.TotalCost),
		},
	}, nil
}
