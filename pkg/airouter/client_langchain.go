package airouter

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/xksnk/selfology-core/pkg/shared/errors"
)

// LangchainConfig configures the OpenAI-compatible workhorse and
// fast-small models routed through langchaingo, the same way the teacher's
// pkg/ai/llm.Client wraps a LocalAI/Ollama endpoint behind a Provider
// switch.
type LangchainConfig struct {
	APIKey string
	// ModelNames maps a router model identifier (ModelMid, ModelCheapSmall)
	// to the provider's actual model name.
	ModelNames map[string]string
}

type langchainClient struct {
	model      llms.Model
	modelNames map[string]string
}

func NewLangchainClient(cfg LangchainConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.ConfigurationError("openai_api_key", "must not be empty")
	}
	model, err := openai.New(openai.WithToken(cfg.APIKey))
	if err != nil {
		return nil, errors.FailedTo("construct langchaingo openai client", err)
	}
	names := cfg.ModelNames
	if names == nil {
		names = map[string]string{
			ModelMid:        "gpt-4o",
			ModelCheapSmall: "gpt-4o-mini",
		}
	}
	return &langchainClient{model: model, modelNames: names}, nil
}

func (c *langchainClient) Complete(ctx context.Context, model, prompt string) (Completion, error) {
	providerModel, ok := c.modelNames[model]
	if !ok {
		providerModel = model
	}

	resp, err := c.model.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)},
		llms.WithModel(providerModel),
	)
	if err != nil {
		return Completion{}, classifyLangchainError(err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, errors.Permanent("langchaingo returned no choices", nil)
	}

	choice := resp.Choices[0]
	inputTokens := choice.GenerationInfo["PromptTokens"]
	outputTokens := choice.GenerationInfo["CompletionTokens"]
	in, _ := inputTokens.(int)
	out, _ := outputTokens.(int)
	cost := ModelCosts[model] * float64(in+out) / 1000.0

	return Completion{
		Text:          choice.Content,
		InputTokens:   in,
		OutputTokens:  out,
		EstimatedCost: cost,
	}, nil
}

// classifyLangchainError treats the provider's own timeout/rate-limit/5xx
// surface as transient, everything else as permanent, matching the
// router's retry gating.
func classifyLangchainError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "429"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"):
		return errors.Transient("openai upstream error", err)
	default:
		return errors.Permanent("openai request rejected", err)
	}
}
