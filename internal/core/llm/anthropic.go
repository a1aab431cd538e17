package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lueurxax/faq-digest/internal/platform/config"
)

const defaultAnthropicModel = "claude-haiku-4-5"

// anthropicProvider implements the Provider interface for Anthropic Claude.
type anthropicProvider struct {
	cfg         *config.Config
	client      anthropic.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter
}

// NewAnthropicProvider creates a new Anthropic LLM provider.
func NewAnthropicProvider(cfg *config.Config, logger *zerolog.Logger) *anthropicProvider {
	return &anthropicProvider{
		cfg:         cfg,
		client:      anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey)),
		logger:      logger,
		rateLimiter: newRateLimiter(cfg.RateLimitRPS),
	}
}

// Name returns the provider identifier.
func (p *anthropicProvider) Name() ProviderName {
	return ProviderAnthropic
}

// IsAvailable returns true if the provider is configured and available.
func (p *anthropicProvider) IsAvailable() bool {
	return p.cfg.AnthropicAPIKey != ""
}

// Priority returns the provider priority.
func (p *anthropicProvider) Priority() int {
	return PrioritySecondFallback
}

func (p *anthropicProvider) resolveModel(model string) string {
	if strings.HasPrefix(model, modelPrefixClaude) {
		return model
	}

	if p.cfg.AnthropicModel != "" {
		return p.cfg.AnthropicModel
	}

	return defaultAnthropicModel
}

// Generate implements Provider.
func (p *anthropicProvider) Generate(ctx context.Context, req Request, model string) (Response, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf(errRateLimiterSimple, err)
	}

	resolvedModel := p.resolveModel(model)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(resolvedModel),
		MaxTokens:   int64(maxOutputTokens(req)),
		Temperature: anthropic.Float(float64(req.Temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserContent)),
		},
	}

	if req.SystemInstructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemInstructions}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Response{Provider: ProviderAnthropic, Model: resolvedModel}, fmt.Errorf(errAnthropicCompletion, err)
	}

	return Response{
		Text:             strings.TrimSpace(extractTextFromResponse(resp)),
		Provider:         ProviderAnthropic,
		Model:            resolvedModel,
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}

func extractTextFromResponse(resp *anthropic.Message) string {
	var result strings.Builder

	for _, block := range resp.Content {
		if block.Type == contentTypeText {
			result.WriteString(block.Text)
		}
	}

	return result.String()
}

var _ Provider = (*anthropicProvider)(nil)
