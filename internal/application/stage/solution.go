package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/app"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/execution"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/outcome"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/embed"
)

// Solution response statuses
const (
	statusChanges            = "changes"
	statusNoChanges          = "no_changes"
	statusNeedsClarification = "needs_clarification"
	statusNeedsMoreInfo      = "needs_more_info"
)

type solutionResponse struct {
	Status  string           `json:"status"`
	Reason  string           `json:"reason"`
	Changes []proposedChange `json:"changes"`
}

type proposedChange struct {
	Path         string `json:"path"`
	Kind         string `json:"kind"`
	Instructions string `json:"instructions"`
}

type promptFile struct {
	Path     string
	Language string
	Size     int64
	Content  string
	Fence    string
	Binary   bool
}

// Solution asks a model to turn the intent into an ordered change list
type Solution struct {
	agent  AgentCall
	logger app.Logger
}

// NewSolution creates the solution executor
func NewSolution(agent AgentCall, logger app.Logger) *Solution {
	if logger == nil {
		logger = app.NopLogger()
	}
	return &Solution{agent: agent, logger: logger}
}

var _ output.SolutionExecutor = (*Solution)(nil)

// Execute designs the change set
func (s *Solution) Execute(ctx context.Context, in output.SolutionInput) outcome.Outcome[[]execution.Change] {
	if strings.TrimSpace(in.Intent) == "" {
		return outcome.Failure[[]execution.Change](outcome.InvalidInput, "intent is empty")
	}
	if len(in.Discovery.Files) == 0 {
		return outcome.Failure[[]execution.Change](outcome.InvalidInput, "discovery payload has no files")
	}

	system, err := embed.RenderPrompt(embed.SolutionSystem, nil)
	if err != nil {
		return outcome.Failure[[]execution.Change](outcome.InvalidInput, err.Error())
	}
	prompt, err := embed.RenderPrompt(embed.SolutionPrompt, map[string]interface{}{
		"Intent":   in.Intent,
		"Root":     in.Discovery.Root,
		"Feedback": in.Feedback,
		"Files":    promptFiles(in.Discovery.Files),
	})
	if err != nil {
		return outcome.Failure[[]execution.Change](outcome.InvalidInput, err.Error())
	}

	resp := s.agent.call(ctx, string(execution.StageSolution), system, prompt)
	if !resp.IsSuccess() {
		return outcome.Failure[[]execution.Change](resp.ErrorKind(), resp.Message())
	}
	s.logger.Debug("solution response from %s (%d chars)", resp.Payload().Backend, len(resp.Payload().Output))
	return parseSolution(resp.Payload().Output)
}

// parseSolution converts the model reply into an outcome
func parseSolution(text string) outcome.Outcome[[]execution.Change] {
	raw, ok := extractJSON(text)
	if !ok {
		return outcome.Failure[[]execution.Change](outcome.InvalidInput, "solution response contains no JSON object")
	}
	var r solutionResponse
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return outcome.Failure[[]execution.Change](outcome.InvalidInput, fmt.Sprintf("solution response is not valid JSON: %v", err))
	}

	reason := strings.TrimSpace(r.Reason)
	switch strings.ToLower(strings.TrimSpace(r.Status)) {
	case statusNeedsClarification:
		return outcome.NeedsClarification[[]execution.Change](orDefault(reason, "the intent needs clarification"))
	case statusNeedsMoreInfo:
		return outcome.NeedsMoreInfo[[]execution.Change](orDefault(reason, "more information is needed"))
	case statusNoChanges:
		return outcome.NoChanges[[]execution.Change](orDefault(reason, "no changes needed"))
	case statusChanges, "":
	default:
		return outcome.Failure[[]execution.Change](outcome.InvalidInput, fmt.Sprintf("unknown solution status %q", r.Status))
	}

	changes := make([]execution.Change, 0, len(r.Changes))
	for i, pc := range r.Changes {
		c, err := pc.toChange()
		if err != nil {
			return outcome.Failure[[]execution.Change](outcome.InvalidInput, fmt.Sprintf("change %d: %v", i+1, err))
		}
		changes = append(changes, c)
	}
	return outcome.Success(changes)
}

func (pc proposedChange) toChange() (execution.Change, error) {
	p, err := cleanRelPath(pc.Path)
	if err != nil {
		return execution.Change{}, err
	}
	kind, err := execution.ParseChangeKind(strings.ToLower(strings.TrimSpace(pc.Kind)))
	if err != nil {
		return execution.Change{}, fmt.Errorf("%s: %w", p, err)
	}
	instructions := strings.TrimSpace(pc.Instructions)
	if instructions == "" && kind != execution.ChangeDelete {
		return execution.Change{}, fmt.Errorf("%s: instructions are required for %s", p, kind)
	}
	return execution.Change{Path: p, Kind: kind, Instructions: instructions}, nil
}

func promptFiles(files map[string]execution.FileMeta) []promptFile {
	out := make([]promptFile, 0, len(files))
	for p, m := range files {
		out = append(out, promptFile{Path: p, Language: m.Language, Size: m.Size, Content: m.Content, Fence: fenceFor(m.Content), Binary: m.Binary})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
