package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/lueurxax/faq-digest/internal/platform/config"
)

// OpenRouterBaseURL is the OpenAI-compatible endpoint of OpenRouter.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// openaiProvider talks to any OpenAI-compatible chat completion endpoint.
type openaiProvider struct {
	name         ProviderName
	priority     int
	apiKey       string
	defaultModel string
	client       *openai.Client
	logger       *zerolog.Logger
	rateLimiter  *rate.Limiter
}

// NewOpenAIProvider creates the OpenAI provider.
func NewOpenAIProvider(cfg *config.Config, logger *zerolog.Logger) *openaiProvider {
	defaultModel := cfg.LLMModel
	if defaultModel == "" {
		defaultModel = openai.GPT4oMini
	}

	return &openaiProvider{
		name:         ProviderOpenAI,
		priority:     PriorityFallback,
		apiKey:       cfg.LLMAPIKey,
		defaultModel: defaultModel,
		client:       openai.NewClient(cfg.LLMAPIKey),
		logger:       logger,
		rateLimiter:  newRateLimiter(cfg.RateLimitRPS),
	}
}

// NewOpenRouterProvider creates the OpenRouter provider on the OpenAI client.
func NewOpenRouterProvider(cfg *config.Config, logger *zerolog.Logger) *openaiProvider {
	clientCfg := openai.DefaultConfig(cfg.OpenRouterAPIKey)
	clientCfg.BaseURL = OpenRouterBaseURL

	return &openaiProvider{
		name:         ProviderOpenRouter,
		priority:     PriorityThirdFallback,
		apiKey:       cfg.OpenRouterAPIKey,
		defaultModel: cfg.OpenRouterModel,
		client:       openai.NewClientWithConfig(clientCfg),
		logger:       logger,
		rateLimiter:  newRateLimiter(cfg.RateLimitRPS),
	}
}

// Name returns the provider identifier.
func (p *openaiProvider) Name() ProviderName {
	return p.name
}

// IsAvailable returns true if the provider is configured and available.
func (p *openaiProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// Priority returns the provider priority.
func (p *openaiProvider) Priority() int {
	return p.priority
}

// resolveModel keeps models the endpoint can serve. OpenRouter model ids
// contain a vendor prefix, OpenAI ids never do.
func (p *openaiProvider) resolveModel(model string) string {
	if model == "" {
		return p.defaultModel
	}

	isRouterID := strings.Contains(model, "/")

	switch p.name {
	case ProviderOpenRouter:
		if !isRouterID {
			return p.defaultModel
		}
	default:
		if isRouterID || strings.HasPrefix(model, modelPrefixClaude) || strings.HasPrefix(model, modelPrefixGemini) {
			return p.defaultModel
		}
	}

	return model
}

// Generate implements Provider.
func (p *openaiProvider) Generate(ctx context.Context, req Request, model string) (Response, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf(errRateLimiterSimple, err)
	}

	resolvedModel := p.resolveModel(model)

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemInstructions != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstructions,
		})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserContent,
	})

	// JSON object mode is not requested: cluster responses are top-level arrays.
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       resolvedModel,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   maxOutputTokens(req),
	})
	if err != nil {
		return Response{Provider: p.name, Model: resolvedModel}, fmt.Errorf(errOpenAIChatCompletion, err)
	}

	out := Response{
		Provider:         p.name,
		Model:            resolvedModel,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}

	if len(resp.Choices) > 0 {
		out.Text = strings.TrimSpace(resp.Choices[0].Message.Content)
	}

	p.logger.Debug().
		Str(logKeyProvider, string(p.name)).
		Str(logKeyModel, resolvedModel).
		Int("response_len", len(out.Text)).
		Msg("LLM response")

	return out, nil
}

var _ Provider = (*openaiProvider)(nil)
