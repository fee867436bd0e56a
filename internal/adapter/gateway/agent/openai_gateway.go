package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/outcome"
)

// OpenAIGateway implements AgentGateway for OpenAI-compatible chat completion APIs
type OpenAIGateway struct {
	name      string
	model     string
	maxTokens int
	keyEnv    string
	client    *openai.Client // nil when the API key is missing
	pacer     pacer
}

// NewOpenAIGateway creates a gateway. baseURL selects an OpenAI-compatible
// endpoint (Azure, local models); empty means the public API.
func NewOpenAIGateway(name, model, apiKey, keyEnv, baseURL string, maxTokens int, ratePerSecond float64) *OpenAIGateway {
	g := &OpenAIGateway{
		name:      name,
		model:     model,
		maxTokens: maxTokens,
		keyEnv:    keyEnv,
		pacer:     newPacer(ratePerSecond),
	}
	if apiKey != "" {
		opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
		if baseURL != "" {
			opts = append(opts, option.WithBaseURL(baseURL))
		}
		client := openai.NewClient(opts...)
		g.client = &client
	}
	return g
}

// Name returns the configured backend name
func (g *OpenAIGateway) Name() string { return g.name }

// CheckAvailable reports a missing API key or model
func (g *OpenAIGateway) CheckAvailable() error {
	if g.client == nil {
		return fmt.Errorf("%s environment variable not set", g.keyEnv)
	}
	if g.model == "" {
		return errors.New("model not configured")
	}
	return nil
}

// Execute sends one chat completion request
func (g *OpenAIGateway) Execute(ctx context.Context, req output.AgentRequest) (*output.AgentResponse, error) {
	if err := g.CheckAvailable(); err != nil {
		return nil, outcome.Wrap(outcome.BackendUnavailable, err, g.name)
	}
	if err := g.pacer.wait(ctx); err != nil {
		return nil, err
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: messages,
	}
	maxTokens := g.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return nil, classify(g.name, status, err)
	}
	if len(resp.Choices) == 0 {
		return nil, outcome.NewError(outcome.TransientFailure, g.name+": response has no choices")
	}

	return &output.AgentResponse{
		Output:     resp.Choices[0].Message.Content,
		Backend:    g.name,
		Model:      resp.Model,
		Duration:   time.Since(start),
		TokensUsed: int(resp.Usage.TotalTokens),
		Metadata: map[string]string{
			"finish_reason": string(resp.Choices[0].FinishReason),
		},
	}, nil
}
