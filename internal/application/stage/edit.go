package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/app"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/execution"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/outcome"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/embed"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infra/fs/txn"
)

// FileMutator is satisfied by *txn.Mutator
type FileMutator interface {
	Apply(ctx context.Context, path string, kind execution.ChangeKind, produce txn.ContentProducer) outcome.Outcome[txn.Result]
}

// Edit applies one change: a model writes the new content and the mutator
// commits it or rolls it back
type Edit struct {
	mutator FileMutator
	agent   AgentCall
	logger  app.Logger
}

// NewEdit creates the edit executor
func NewEdit(mutator FileMutator, agent AgentCall, logger app.Logger) *Edit {
	if logger == nil {
		logger = app.NopLogger()
	}
	return &Edit{mutator: mutator, agent: agent, logger: logger}
}

var _ output.EditExecutor = (*Edit)(nil)

// Execute applies in.Change under in.ProjectPath
func (e *Edit) Execute(ctx context.Context, in output.EditInput) outcome.Outcome[execution.FileResult] {
	if in.ProjectPath == "" {
		return outcome.Failure[execution.FileResult](outcome.InvalidInput, "project path is empty")
	}
	rel, err := cleanRelPath(in.Change.Path)
	if err != nil {
		return outcome.Failure[execution.FileResult](outcome.InvalidInput, err.Error())
	}
	kind := in.Change.Kind
	if !kind.IsValid() {
		return outcome.Failure[execution.FileResult](outcome.InvalidInput, fmt.Sprintf("%s: unknown change kind %q", rel, kind))
	}
	if kind != execution.ChangeDelete && strings.TrimSpace(in.Change.Instructions) == "" {
		return outcome.Failure[execution.FileResult](outcome.InvalidInput, fmt.Sprintf("%s: instructions are empty", rel))
	}

	res := e.mutator.Apply(ctx, resolve(in.ProjectPath, rel), kind, e.producer(rel, in.Change))
	if !res.IsSuccess() {
		return outcome.Failure[execution.FileResult](res.ErrorKind(), res.Message())
	}

	return outcome.Success(execution.FileResult{
		Path:       rel,
		Kind:       kind,
		Status:     execution.FileApplied,
		BackupPath: res.Payload().BackupPath(),
	})
}

// producer asks the model for the full new content of the file
func (e *Edit) producer(rel string, change execution.Change) txn.ContentProducer {
	return func(ctx context.Context, original []byte) ([]byte, error) {
		system, err := embed.RenderPrompt(embed.EditSystem, nil)
		if err != nil {
			return nil, err
		}
		prompt, err := embed.RenderPrompt(embed.EditPrompt, map[string]interface{}{
			"Path":         rel,
			"Kind":         change.Kind,
			"Instructions": change.Instructions,
			"Exists":       original != nil,
			"Original":     string(original),
			"Fence":        fenceFor(string(original)),
		})
		if err != nil {
			return nil, err
		}

		resp := e.agent.call(ctx, string(execution.StageEdit), system, prompt)
		if !resp.IsSuccess() {
			return nil, outcome.NewError(resp.ErrorKind(), resp.Message())
		}
		code, ok := extractCode(resp.Payload().Output)
		if !ok {
			return nil, fmt.Errorf("response from %s contains no code block", resp.Payload().Backend)
		}
		if !strings.HasSuffix(code, "\n") {
			code += "\n"
		}
		return []byte(code), nil
	}
}
