package stage

import (
	"context"
	"sync"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/outcome"
)

// fakeCaller replays outcomes and records the requests it was given
type fakeCaller struct {
	mu       sync.Mutex
	replies  []outcome.Outcome[*output.AgentResponse]
	requests []output.AgentRequest
}

func replyText(texts ...string) *fakeCaller {
	f := &fakeCaller{}
	for _, t := range texts {
		f.replies = append(f.replies, outcome.Success(&output.AgentResponse{Output: t, Backend: "fake"}))
	}
	return f
}

func replyFailure(kind outcome.ErrorKind, msg string) *fakeCaller {
	return &fakeCaller{replies: []outcome.Outcome[*output.AgentResponse]{
		outcome.Failure[*output.AgentResponse](kind, msg),
	}}
}

func (f *fakeCaller) Call(_ context.Context, req output.AgentRequest, _ []output.AgentGateway, _ int) outcome.Outcome[*output.AgentResponse] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.replies) == 0 {
		return outcome.Failure[*output.AgentResponse](outcome.TransientFailure, "no scripted reply")
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return r
}

func (f *fakeCaller) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func agentWith(c ModelCaller) AgentCall {
	return AgentCall{Chain: c, MaxAttempts: 1}
}
