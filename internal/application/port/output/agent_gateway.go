package output

import (
	"context"
	"time"
)

// AgentGateway is one configured backend for a model capability call.
// The provider chain tries gateways in order; see provider.Chain.
type AgentGateway interface {
	// Name identifies the backend in logs and aggregated failures
	Name() string

	// CheckAvailable reports a missing credential, binary or setting.
	// A non-nil error is permanent for the lifetime of the gateway.
	CheckAvailable() error

	// Execute runs one attempt. Errors should be classified with outcome.Error;
	// unclassified errors are treated as transient.
	Execute(ctx context.Context, req AgentRequest) (*AgentResponse, error)
}

// AgentRequest represents a request to a model backend
type AgentRequest struct {
	System      string            // System instructions
	Prompt      string            // The user prompt
	MaxTokens   int               // Maximum tokens to generate (0 = backend default)
	Temperature float64           // Temperature for generation (0.0-1.0)
	Metadata    map[string]string // Stage name, run ID and similar tags
}

// AgentResponse represents the response from a model backend
type AgentResponse struct {
	Output     string            // Generated text
	Backend    string            // Name of the gateway that answered
	Model      string            // Model identifier, when known
	Duration   time.Duration     // Execution duration of the successful attempt
	TokensUsed int               // Number of tokens used (if reported)
	Metadata   map[string]string // Additional metadata
}
