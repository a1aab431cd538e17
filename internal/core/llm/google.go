package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/lueurxax/faq-digest/internal/platform/config"
)

const defaultGoogleModel = "gemini-2.0-flash"

// sanitizeUTF8 replaces invalid UTF-8 sequences with the replacement rune.
// Google's protobuf API rejects invalid UTF-8 and chat logs may carry it.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	var builder strings.Builder
	builder.Grow(len(s))

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			builder.WriteRune(utf8.RuneError)

			i++
		} else {
			builder.WriteRune(r)

			i += size
		}
	}

	return builder.String()
}

// googleProvider implements the Provider interface for Google Gemini.
type googleProvider struct {
	cfg         *config.Config
	client      *genai.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter
}

// NewGoogleProvider creates a new Google Gemini LLM provider.
func NewGoogleProvider(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*googleProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GoogleAPIKey))
	if err != nil {
		return nil, fmt.Errorf("creating google genai client: %w", err)
	}

	return &googleProvider{
		cfg:         cfg,
		client:      client,
		logger:      logger,
		rateLimiter: newRateLimiter(cfg.RateLimitRPS),
	}, nil
}

// Close closes the Google client.
func (p *googleProvider) Close() error {
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			return fmt.Errorf("closing google genai client: %w", err)
		}
	}

	return nil
}

// Name returns the provider identifier.
func (p *googleProvider) Name() ProviderName {
	return ProviderGoogle
}

// IsAvailable returns true if the provider is configured and available.
func (p *googleProvider) IsAvailable() bool {
	return p.cfg.GoogleAPIKey != ""
}

// Priority returns the provider priority.
func (p *googleProvider) Priority() int {
	return PriorityPrimary
}

// resolveModel keeps Gemini model names and maps everything else to the configured default.
func (p *googleProvider) resolveModel(model string) string {
	if strings.HasPrefix(model, modelPrefixGemini) {
		return model
	}

	if p.cfg.GoogleLLMModel != "" {
		return p.cfg.GoogleLLMModel
	}

	return defaultGoogleModel
}

// Generate implements Provider.
func (p *googleProvider) Generate(ctx context.Context, req Request, model string) (Response, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf(errRateLimiterSimple, err)
	}

	resolvedModel := p.resolveModel(model)
	genModel := p.client.GenerativeModel(resolvedModel)
	genModel.SetTemperature(req.Temperature)
	genModel.SetMaxOutputTokens(int32(maxOutputTokens(req))) //nolint:gosec // bounded by request limits

	if req.SystemInstructions != "" {
		genModel.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(sanitizeUTF8(req.SystemInstructions))},
		}
	}

	if req.JSONResponse {
		genModel.ResponseMIMEType = contentTypeJSON
	}

	resp, err := genModel.GenerateContent(ctx, genai.Text(sanitizeUTF8(req.UserContent)))
	if err != nil {
		return Response{Provider: ProviderGoogle, Model: resolvedModel}, fmt.Errorf(errGoogleGenAICompletion, err)
	}

	out := Response{
		Text:     strings.TrimSpace(extractGoogleResponseText(resp)),
		Provider: ProviderGoogle,
		Model:    resolvedModel,
	}

	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return out, nil
}

// extractGoogleResponseText extracts text content from Google Gemini response.
func extractGoogleResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var result strings.Builder

	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					result.WriteString(string(text))
				}
			}
		}
	}

	return result.String()
}

var _ Provider = (*googleProvider)(nil)
