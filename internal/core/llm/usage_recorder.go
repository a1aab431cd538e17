package llm

import (
	"github.com/rs/zerolog"

	"github.com/lueurxax/faq-digest/internal/platform/observability"
)

// UsageRecorder records token usage metrics for LLM requests.
type UsageRecorder interface {
	RecordTokenUsage(provider, model, task string, promptTokens, completionTokens int, success bool)
}

// usageRecorder records prometheus counters and logs an estimated cost per call.
type usageRecorder struct {
	logger *zerolog.Logger
}

// NewUsageRecorder creates a new UsageRecorder.
func NewUsageRecorder(logger *zerolog.Logger) UsageRecorder {
	return &usageRecorder{logger: logger}
}

// RecordTokenUsage records token usage metrics for an LLM request.
func (r *usageRecorder) RecordTokenUsage(provider, model, task string, promptTokens, completionTokens int, success bool) {
	r.recordTokenMetrics(provider, model, task, promptTokens, completionTokens, success)

	cost := estimateCost(provider, model, promptTokens, completionTokens)
	r.recordCostMetric(provider, model, task, cost, success)

	if r.logger != nil && success {
		r.logger.Debug().
			Str(logKeyProvider, provider).
			Str(logKeyModel, model).
			Str(logKeyTask, task).
			Int("prompt_tokens", promptTokens).
			Int("completion_tokens", completionTokens).
			Float64("estimated_cost_usd", cost).
			Msg("LLM usage")
	}
}

func (r *usageRecorder) recordTokenMetrics(provider, model, task string, promptTokens, completionTokens int, success bool) {
	status := StatusSuccess
	if !success {
		status = StatusError
	}

	observability.LLMRequests.WithLabelValues(provider, model, task, status).Inc()

	if promptTokens > 0 {
		observability.LLMTokensPrompt.WithLabelValues(provider, model, task).Add(float64(promptTokens))
	}

	if completionTokens > 0 {
		observability.LLMTokensCompletion.WithLabelValues(provider, model, task).Add(float64(completionTokens))
	}
}

// recordCostMetric records the estimated cost metric in millicents.
func (r *usageRecorder) recordCostMetric(provider, model, task string, cost float64, success bool) {
	if cost > 0 && success {
		observability.LLMEstimatedCost.WithLabelValues(provider, model, task).Add(cost * usdToMillicents)
	}
}

type noopUsageRecorder struct{}

// NoopUsageRecorder returns a no-op implementation of UsageRecorder.
func NoopUsageRecorder() UsageRecorder {
	return &noopUsageRecorder{}
}

// RecordTokenUsage does nothing.
func (r *noopUsageRecorder) RecordTokenUsage(_, _, _ string, _, _ int, _ bool) {}
