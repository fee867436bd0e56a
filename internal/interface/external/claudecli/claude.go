package claudecli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes the claude CLI in print mode
type Runner struct {
	Bin     string
	Timeout time.Duration
	Dir     string // Working directory, empty = current
	Model   string // Passed as --model when set
}

// ClaudeResponse represents the JSON response from claude
type ClaudeResponse struct {
	Type       string  `json:"type"`
	Subtype    string  `json:"subtype"`
	IsError    bool    `json:"is_error"`
	DurationMs int     `json:"duration_ms"`
	Result     string  `json:"result"`
	SessionID  string  `json:"session_id"`
	TotalCost  float64 `json:"total_cost_usd"`
}

// ErrNotInstalled is returned by Available when the binary is not on PATH
var ErrNotInstalled = errors.New("claude CLI not found")

// Available checks that the binary can be resolved
func (r Runner) Available() error {
	if _, err := exec.LookPath(r.Bin); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotInstalled, r.Bin, err)
	}
	return nil
}

// Run sends prompt (and an optional system prompt) and returns the parsed response.
// Output that is not JSON is returned verbatim in Result.
func (r Runner) Run(ctx context.Context, system, prompt string) (*ClaudeResponse, error) {
	args := []string{"-p", "--output-format", "json"}
	if r.Model != "" {
		args = append(args, "--model", r.Model)
	}
	if system != "" {
		args = append(args, "--append-system-prompt", system)
	}
	args = append(args, prompt)

	cctx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cctx, r.Bin, args...)
	cmd.Dir = r.Dir
	out, err := cmd.Output()
	if err != nil {
		if cctx.Err() != nil {
			return nil, fmt.Errorf("claude execution interrupted: %w", cctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("claude execution failed: %w (stderr: %s)", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("claude execution failed: %w", err)
	}

	var response ClaudeResponse
	if err := json.Unmarshal(out, &response); err != nil {
		return &ClaudeResponse{Type: "raw", Result: string(out)}, nil
	}
	if response.IsError {
		return nil, fmt.Errorf("claude returned error: %s", response.Result)
	}
	return &response, nil
}
