package stage

import (
	"context"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/outcome"
)

// ModelCaller is satisfied by *provider.Chain
type ModelCaller interface {
	Call(ctx context.Context, req output.AgentRequest, backends []output.AgentGateway, maxAttemptsPerBackend int) outcome.Outcome[*output.AgentResponse]
}

// AgentCall binds a provider chain to the ordered backends of one stage
type AgentCall struct {
	Chain       ModelCaller
	Backends    []output.AgentGateway
	MaxAttempts int
	MaxTokens   int
}

func (a AgentCall) call(ctx context.Context, stage, system, prompt string) outcome.Outcome[*output.AgentResponse] {
	attempts := a.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return a.Chain.Call(ctx, output.AgentRequest{
		System:    system,
		Prompt:    prompt,
		MaxTokens: a.MaxTokens,
		Metadata:  map[string]string{"stage": stage},
	}, a.Backends, attempts)
}
