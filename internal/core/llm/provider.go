package llm

import "context"

// ProviderName identifies an LLM provider.
type ProviderName string

// Provider name constants.
const (
	ProviderGoogle     ProviderName = "google"
	ProviderOpenAI     ProviderName = "openai"
	ProviderAnthropic  ProviderName = "anthropic"
	ProviderOpenRouter ProviderName = "openrouter"
	ProviderMock       ProviderName = "mock"
)

// Priority constants for provider ordering.
const (
	PriorityPrimary        = 100 // Primary provider (Google)
	PriorityFallback       = 50  // First fallback (OpenAI)
	PrioritySecondFallback = 25  // Second fallback (Anthropic)
	PriorityThirdFallback  = 10  // Third fallback (OpenRouter)
	PriorityMock           = 0   // Mock provider for testing
)

// Provider defines the interface for LLM providers.
type Provider interface {
	// Name returns the provider identifier.
	Name() ProviderName

	// IsAvailable returns true if the provider is configured and available.
	IsAvailable() bool

	// Priority returns the provider priority (higher = preferred).
	Priority() int

	// Generate runs one completion. An empty model means the provider default.
	Generate(ctx context.Context, req Request, model string) (Response, error)
}
