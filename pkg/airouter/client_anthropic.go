package airouter

import (
	"context"
	stderrors "errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/xksnk/selfology-core/pkg/shared/errors"
)

// AnthropicConfig holds the credentials and default generation parameters
// for the premium-tier (frontier) model.
type AnthropicConfig struct {
	APIKey    string
	MaxTokens int64
}

// anthropicClient calls Claude models directly through anthropic-sdk-go.
// It is wired to the "frontier" model name in the router's selection
// table.
type anthropicClient struct {
	api       anthropic.Client
	maxTokens int64
}

func NewAnthropicClient(cfg AnthropicConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.ConfigurationError("anthropic_api_key", "must not be empty")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &anthropicClient{
		api:       anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		maxTokens: maxTokens,
	}, nil
}

func (c *anthropicClient) Complete(ctx context.Context, model, prompt string) (Completion, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.ModelClaudeSonnet4_20250514,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Completion{}, classifyAnthropicError(err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	inputTokens := int(msg.Usage.InputTokens)
	outputTokens := int(msg.Usage.OutputTokens)
	cost := ModelCosts[model] * float64(inputTokens+outputTokens) / 1000.0

	return Completion{
		Text:          text,
		InputTokens:   inputTokens,
		OutputTokens:  outputTokens,
		EstimatedCost: cost,
	}, nil
}

// classifyAnthropicError maps the SDK's error surface onto the shared Kind
// taxonomy so the router's retry layer only retries transient failures.
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if !stderrors.As(err, &apiErr) {
		return errors.Permanent("anthropic request failed", err)
	}
	switch apiErr.StatusCode {
	case 429, 500, 502, 503, 504:
		return errors.Transient("anthropic upstream error", err)
	default:
		return errors.Permanent("anthropic request rejected", err)
	}
}
