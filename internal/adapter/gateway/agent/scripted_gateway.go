package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
)

// Reply is one scripted answer: either Output or Err
type Reply struct {
	Output string
	Err    error
}

// ScriptedGateway replays canned replies in order. When the script runs out
// it repeats Fallback, or fails if Fallback is nil. It backs the "mock"
// backend type and tests that need deterministic model output.
type ScriptedGateway struct {
	name        string
	unavailable error

	mu       sync.Mutex
	script   []Reply
	fallback *Reply
	requests []output.AgentRequest

	// Respond, when set, computes the reply from the request instead of the script
	Respond func(req output.AgentRequest) (string, error)
}

// NewScriptedGateway creates a gateway replaying replies in order
func NewScriptedGateway(name string, replies ...Reply) *ScriptedGateway {
	return &ScriptedGateway{name: name, script: replies}
}

// NewMockGateway answers every request by reporting that no change is needed.
// It lets a project be wired up end to end before any credentials exist.
func NewMockGateway(name string) *ScriptedGateway {
	g := NewScriptedGateway(name)
	g.fallback = &Reply{Output: "```json\n{\"status\": \"no_changes\", \"reason\": \"mock backend does not propose changes\"}\n```"}
	return g
}

// WithFallback sets the reply used once the script is exhausted
func (g *ScriptedGateway) WithFallback(r Reply) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fallback = &r
	return g
}

// Unavailable makes CheckAvailable fail with err
func (g *ScriptedGateway) Unavailable(err error) *ScriptedGateway {
	g.unavailable = err
	return g
}

// Name returns the backend name
func (g *ScriptedGateway) Name() string { return g.name }

// CheckAvailable returns the configured unavailability error
func (g *ScriptedGateway) CheckAvailable() error { return g.unavailable }

// Execute pops the next scripted reply
func (g *ScriptedGateway) Execute(ctx context.Context, req output.AgentRequest) (*output.AgentResponse, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	respond := g.Respond
	var reply Reply
	switch {
	case respond != nil:
	case len(g.script) > 0:
		reply = g.script[0]
		g.script = g.script[1:]
	case g.fallback != nil:
		reply = *g.fallback
	default:
		reply = Reply{Err: errors.New("scripted gateway has no replies left")}
	}
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if respond != nil {
		reply.Output, reply.Err = respond(req)
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return &output.AgentResponse{Output: reply.Output, Backend: g.name, Model: "scripted"}, nil
}

// Requests returns a copy of every request received so far
func (g *ScriptedGateway) Requests() []output.AgentRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]output.AgentRequest(nil), g.requests...)
}
