package agent

import (
	"fmt"
	"os"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/app/config"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
)

// FactoryOptions carries what every gateway needs besides its own config
type FactoryOptions struct {
	RateLimit float64                   // Requests per second per backend
	WorkDir   string                    // Working directory for CLI backends
	Getenv    func(key string) string   // Defaults to os.Getenv
}

// NewAgentGateway creates a gateway for one backend definition.
// Supported types: anthropic, openai, claude-cli, mock.
// A missing credential is not an error here: the gateway reports it through
// CheckAvailable so the provider chain can skip it.
func NewAgentGateway(b config.BackendConfig, opts FactoryOptions) (output.AgentGateway, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	switch b.Type {
	case config.BackendAnthropic:
		keyEnv := b.APIKeyEnv
		if keyEnv == "" {
			keyEnv = "ANTHROPIC_API_KEY"
		}
		return NewAnthropicGateway(b.Name, b.Model, getenv(keyEnv), keyEnv, b.BaseURL, b.MaxTokens, opts.RateLimit), nil

	case config.BackendOpenAI:
		keyEnv := b.APIKeyEnv
		if keyEnv == "" {
			keyEnv = "OPENAI_API_KEY"
		}
		return NewOpenAIGateway(b.Name, b.Model, getenv(keyEnv), keyEnv, b.BaseURL, b.MaxTokens, opts.RateLimit), nil

	case config.BackendClaudeCLI:
		return NewClaudeCLIGateway(b.Name, b.Binary, b.Model, opts.WorkDir, opts.RateLimit), nil

	case config.BackendMock:
		return NewMockGateway(b.Name), nil

	default:
		return nil, fmt.Errorf("unknown backend type: %s (supported: anthropic, openai, claude-cli, mock)", b.Type)
	}
}

// NewAgentGateways creates gateways for backends, preserving order
func NewAgentGateways(backends []config.BackendConfig, opts FactoryOptions) ([]output.AgentGateway, error) {
	gateways := make([]output.AgentGateway, 0, len(backends))
	for _, b := range backends {
		g, err := NewAgentGateway(b, opts)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", b.Name, err)
		}
		gateways = append(gateways, g)
	}
	return gateways, nil
}

// BackendStatus is the availability of one configured backend
type BackendStatus struct {
	Name      string
	Type      string
	Model     string
	Available bool
	Reason    string
}

// DescribeBackends reports availability of every backend without calling any of them
func DescribeBackends(backends []config.BackendConfig, opts FactoryOptions) []BackendStatus {
	statuses := make([]BackendStatus, 0, len(backends))
	for _, b := range backends {
		s := BackendStatus{Name: b.Name, Type: b.Type, Model: b.Model}
		g, err := NewAgentGateway(b, opts)
		if err == nil {
			err = g.CheckAvailable()
		}
		if err != nil {
			s.Reason = err.Error()
		} else {
			s.Available = true
		}
		statuses = append(statuses, s)
	}
	return statuses
}
