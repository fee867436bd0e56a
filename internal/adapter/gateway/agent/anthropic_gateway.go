package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/outcome"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicGateway implements AgentGateway for the Anthropic Messages API
type AnthropicGateway struct {
	name      string
	model     string
	maxTokens int
	keyEnv    string
	client    *anthropic.Client // nil when the API key is missing
	pacer     pacer
}

// NewAnthropicGateway creates a gateway. An empty apiKey yields a gateway that
// reports itself unavailable instead of failing construction.
func NewAnthropicGateway(name, model, apiKey, keyEnv, baseURL string, maxTokens int, ratePerSecond float64) *AnthropicGateway {
	g := &AnthropicGateway{
		name:      name,
		model:     model,
		maxTokens: maxTokens,
		keyEnv:    keyEnv,
		pacer:     newPacer(ratePerSecond),
	}
	if g.maxTokens <= 0 {
		g.maxTokens = defaultAnthropicMaxTokens
	}
	if apiKey != "" {
		opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
		if baseURL != "" {
			opts = append(opts, option.WithBaseURL(baseURL))
		}
		client := anthropic.NewClient(opts...)
		g.client = &client
	}
	return g
}

// Name returns the configured backend name
func (g *AnthropicGateway) Name() string { return g.name }

// CheckAvailable reports a missing API key or model
func (g *AnthropicGateway) CheckAvailable() error {
	if g.client == nil {
		return fmt.Errorf("%s environment variable not set", g.keyEnv)
	}
	if g.model == "" {
		return errors.New("model not configured")
	}
	return nil
}

// Execute sends one Messages request
func (g *AnthropicGateway) Execute(ctx context.Context, req output.AgentRequest) (*output.AgentResponse, error) {
	if err := g.CheckAvailable(); err != nil {
		return nil, outcome.Wrap(outcome.BackendUnavailable, err, g.name)
	}
	if err := g.pacer.wait(ctx); err != nil {
		return nil, err
	}

	maxTokens := g.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}

	start := time.Now()
	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return nil, classify(g.name, status, err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &output.AgentResponse{
		Output:     text.String(),
		Backend:    g.name,
		Model:      string(msg.Model),
		Duration:   time.Since(start),
		TokensUsed: int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		Metadata: map[string]string{
			"stop_reason": string(msg.StopReason),
		},
	}, nil
}
