// Package llm wraps text generation providers behind a single request/response
// contract and routes each request through a priority-ordered fallback chain.
package llm

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lueurxax/faq-digest/internal/platform/config"
)

// Request is one text generation call.
type Request struct {
	// Task selects the provider chain and labels metrics.
	Task TaskType

	SystemInstructions string
	UserContent        string
	Temperature        float32
	MaxOutputTokens    int

	// JSONResponse asks providers that support it to emit JSON only.
	JSONResponse bool

	// Model overrides the chain's model for every provider when set.
	Model string
}

// Response is the text produced by a provider.
type Response struct {
	Text             string
	Provider         ProviderName
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Generator is the capability the FAQ pipeline depends on.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// buildCircuitConfig creates a CircuitBreakerConfig with defaults applied.
func buildCircuitConfig(cfg *config.Config) CircuitBreakerConfig {
	circuitCfg := CircuitBreakerConfig{
		Threshold:  cfg.LLMCircuitThreshold,
		ResetAfter: cfg.LLMCircuitTimeout,
	}

	if circuitCfg.Threshold == 0 {
		circuitCfg.Threshold = defaultCircuitThreshold
	}

	if circuitCfg.ResetAfter == 0 {
		circuitCfg.ResetAfter = defaultCircuitTimeout
	}

	return circuitCfg
}

// registerProviders registers all configured providers with the registry.
func registerProviders(ctx context.Context, registry *Registry, cfg *config.Config, logger *zerolog.Logger, circuitCfg CircuitBreakerConfig) {
	// Google is primary: the prompts were tuned against Gemini.
	if cfg.GoogleAPIKey != "" {
		googleProvider, err := NewGoogleProvider(ctx, cfg, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create Google LLM provider")
		} else {
			registry.Register(googleProvider, circuitCfg)
		}
	}

	if cfg.LLMAPIKey != "" && cfg.LLMAPIKey != llmAPIKeyMock {
		registry.Register(NewOpenAIProvider(cfg, logger), circuitCfg)
	}

	if cfg.AnthropicAPIKey != "" {
		registry.Register(NewAnthropicProvider(cfg, logger), circuitCfg)
	}

	if cfg.OpenRouterAPIKey != "" {
		registry.Register(NewOpenRouterProvider(cfg, logger), circuitCfg)
	}

	// If no providers configured, use mock
	if registry.ProviderCount() == 0 {
		logger.Warn().Msg("no LLM provider configured, using mock provider")
		registry.Register(NewMockProvider(), circuitCfg)
	}
}

// New creates a Generator with multi-provider fallback support.
// Providers register in priority order: Google, OpenAI, Anthropic, OpenRouter.
// If none is configured, the mock provider is used.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *Registry {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	registry := NewRegistry(logger, cfg.LLMCallTimeout)
	registry.SetTaskModelOverride(TaskTypeCluster, cfg.LLMClusterModel)
	registry.SetTaskModelOverride(TaskTypeNarrative, cfg.LLMNarrativeModel)

	registerProviders(ctx, registry, cfg, logger, buildCircuitConfig(cfg))

	return registry
}
