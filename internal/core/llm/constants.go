package llm

import "time"

// Error message templates
const (
	errRateLimiterSimple     = "rate limiter: %w"
	errOpenAIChatCompletion  = "openai chat completion error: %w"
	errGoogleGenAICompletion = "google genai completion: %w"
	errAnthropicCompletion   = "anthropic completion: %w"
)

// Model mapping strings
const (
	modelPrefixClaude = "claude"
	modelPrefixGemini = "gemini"
	llmAPIKeyMock     = "mock"
)

// Log message strings
const (
	logMsgCircuitBreakerOpen = "skipping provider - circuit breaker open"
)

// Log key strings
const (
	logKeyTask     = "task"
	logKeyModel    = "model"
	logKeyProvider = "provider"
)

// HTTP header values
const (
	contentTypeJSON = "application/json"
	contentTypeText = "text"
)

// Numeric constants
const (
	rateLimiterBurst       = 5
	defaultMaxOutputTokens = 2048
)

// Circuit breaker defaults
const (
	defaultCircuitThreshold = 5
	defaultCircuitTimeout   = time.Minute
)

// Per-call timeout default. An unbounded model call would hold the run lock.
const (
	defaultCallTimeout = 60 * time.Second
)

// Cost conversion
const (
	usdToMillicents = 100000.0 // 1 USD = 100,000 millicents
)

// Request status for metrics.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metric gauge values.
const (
	MetricValueAvailable   = 1.0
	MetricValueUnavailable = 0.0
	MetricValueCBOpen      = 1.0 // Circuit breaker is open (blocking requests)
	MetricValueCBClosed    = 0.0 // Circuit breaker is closed (allowing requests)
)
