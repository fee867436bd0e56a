package health

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/execution"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infra/persistence/file"
)

// Health represents the health.json structure: the outcome of the most
// recent run against a project
type Health struct {
	Ts    string `json:"ts"`
	RunID string `json:"run_id"`
	Turn  int    `json:"turn"`
	Step  string `json:"step"`
	Ok    bool   `json:"ok"`
	Error string `json:"error"`
}

// FromState summarizes a finished run. Step is the last stage that left pending.
func FromState(s *execution.WorkflowState) *Health {
	h := &Health{
		RunID: s.ID.String(),
		Turn:  s.Iteration,
		Step:  "none",
		Ok:    s.Status == execution.RunSucceeded,
		Error: s.Error,
	}
	for _, rec := range s.OrderedStages() {
		if rec.Status != execution.StagePending {
			h.Step = rec.Stage.String()
		}
	}
	return h
}

// WriteHealthAtomic writes health data atomically with current timestamp
func WriteHealthAtomic(fs afero.Fs, health *Health, path string) error {
	health.Ts = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(health)
	if err != nil {
		return fmt.Errorf("failed to marshal health: %w", err)
	}
	if err := file.WriteFileAtomic(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write health: %w", err)
	}
	return nil
}

// Read loads health.json. A missing file returns nil, nil.
func Read(fs afero.Fs, path string) (*Health, error) {
	data, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var h Health
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse health: %w", err)
	}
	return &h, nil
}
