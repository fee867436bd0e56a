package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/outcome"
)

const (
	anthropicReply = `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
"content":[{"type":"text","text":"hello"}],"stop_reason":"end_turn","stop_sequence":null,
"usage":{"input_tokens":3,"output_tokens":2}}`

	openAIReply = `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-test",
"choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop","logprobs":null}],
"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`

	apiErrorBody = `{"type":"error","error":{"type":"api_error","message":"nope"}}`
)

// apiServer answers every request with status and body, counting requests
func apiServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newHTTPGateways(baseURL string) map[string]output.AgentGateway {
	return map[string]output.AgentGateway{
		"anthropic": NewAnthropicGateway("claude", "claude-test", "test-key", "ANTHROPIC_API_KEY", baseURL, 0, 0),
		"openai":    NewOpenAIGateway("gpt", "gpt-test", "test-key", "OPENAI_API_KEY", baseURL, 0, 0),
	}
}

func TestHTTPGateways_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   outcome.ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, outcome.BackendUnavailable},
		{"rate limited", http.StatusTooManyRequests, outcome.TransientFailure},
		{"server error", http.StatusInternalServerError, outcome.TransientFailure},
		{"bad request", http.StatusBadRequest, outcome.InvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, hits := apiServer(t, tt.status, apiErrorBody)

			for typ, gw := range newHTTPGateways(srv.URL) {
				hits.Store(0)
				resp, err := gw.Execute(context.Background(), output.AgentRequest{Prompt: "hi"})
				require.Error(t, err, typ)
				assert.Nil(t, resp, typ)
				assert.Equal(t, tt.want, outcome.KindOf(err), "%s: %v", typ, err)
				assert.Contains(t, err.Error(), fmt.Sprintf("HTTP %d", tt.status), typ)
				assert.EqualValues(t, 1, hits.Load(), "%s must not retry inside the SDK", typ)
			}
		})
	}
}

func TestAnthropicGateway_ExecuteSuccess(t *testing.T) {
	srv, hits := apiServer(t, http.StatusOK, anthropicReply)
	gw := NewAnthropicGateway("claude", "claude-test", "test-key", "ANTHROPIC_API_KEY", srv.URL, 0, 0)

	resp, err := gw.Execute(context.Background(), output.AgentRequest{Prompt: "hi", System: "be brief"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Output)
	assert.Equal(t, "claude", resp.Backend)
	assert.Equal(t, "claude-test", resp.Model)
	assert.Equal(t, 5, resp.TokensUsed)
	assert.Equal(t, "end_turn", resp.Metadata["stop_reason"])
	assert.EqualValues(t, 1, hits.Load())
}

func TestOpenAIGateway_ExecuteSuccess(t *testing.T) {
	srv, _ := apiServer(t, http.StatusOK, openAIReply)
	gw := NewOpenAIGateway("gpt", "gpt-test", "test-key", "OPENAI_API_KEY", srv.URL, 0, 0)

	resp, err := gw.Execute(context.Background(), output.AgentRequest{Prompt: "hi", System: "be brief"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Output)
	assert.Equal(t, "gpt", resp.Backend)
	assert.Equal(t, 5, resp.TokensUsed)
	assert.Equal(t, "stop", resp.Metadata["finish_reason"])
}

func TestOpenAIGateway_EmptyChoicesIsTransient(t *testing.T) {
	srv, _ := apiServer(t, http.StatusOK, `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-test","choices":[]}`)
	gw := NewOpenAIGateway("gpt", "gpt-test", "test-key", "OPENAI_API_KEY", srv.URL, 0, 0)

	_, err := gw.Execute(context.Background(), output.AgentRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, outcome.TransientFailure, outcome.KindOf(err))
}
