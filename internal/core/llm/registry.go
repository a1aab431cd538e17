package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	faqerrors "github.com/lueurxax/faq-digest/internal/core/errors"
	"github.com/lueurxax/faq-digest/internal/platform/observability"
)

// Registry errors.
var (
	ErrNoProvidersAvailable = errors.New("no LLM providers available")
	ErrAllProvidersFailed   = errors.New("all LLM providers failed")
)

// Registry manages LLM providers with fallback support.
type Registry struct {
	mu              sync.RWMutex
	providers       map[ProviderName]Provider
	order           []ProviderName // Priority order (highest first)
	circuitBreakers map[ProviderName]*CircuitBreaker
	taskConfig      map[TaskType]TaskProviderChain
	modelOverrides  map[TaskType]string // Per-task model overrides from config
	callTimeout     time.Duration
	usage           UsageRecorder
	logger          *zerolog.Logger
}

// NewRegistry creates a new provider registry. Each provider attempt is
// bounded by callTimeout; zero selects the default.
func NewRegistry(logger *zerolog.Logger, callTimeout time.Duration) *Registry {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	return &Registry{
		providers:       make(map[ProviderName]Provider),
		order:           make([]ProviderName, 0),
		circuitBreakers: make(map[ProviderName]*CircuitBreaker),
		taskConfig:      DefaultTaskConfig(),
		modelOverrides:  make(map[TaskType]string),
		callTimeout:     callTimeout,
		usage:           NewUsageRecorder(logger),
		logger:          logger,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider, cfg CircuitBreakerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}

	r.providers[name] = p
	r.circuitBreakers[name] = NewCircuitBreaker(cfg, r.logger)

	r.sortProvidersByPriority()

	available := MetricValueUnavailable
	if p.IsAvailable() {
		available = MetricValueAvailable
	}

	observability.LLMProviderAvailable.WithLabelValues(string(name)).Set(available)

	r.logger.Info().
		Str(logKeyProvider, string(name)).
		Int("priority", p.Priority()).
		Msg("registered LLM provider")
}

// SetUsageRecorder replaces the recorder used after each provider attempt.
func (r *Registry) SetUsageRecorder(recorder UsageRecorder) {
	if recorder == nil {
		recorder = NoopUsageRecorder()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.usage = recorder
}

// ProviderCount returns the number of registered providers.
func (r *Registry) ProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// SetTaskModelOverride sets a model override for a specific task type.
// When set, this model will be used instead of the default for that task.
func (r *Registry) SetTaskModelOverride(taskType TaskType, model string) {
	if model == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.modelOverrides[taskType] = model

	r.logger.Debug().
		Str(logKeyTask, string(taskType)).
		Str(logKeyModel, model).
		Msg("set task model override")
}

func (r *Registry) getTaskModelOverride(taskType TaskType) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.modelOverrides[taskType]
}

// Generate runs req through the task's provider chain. Failures of every
// provider, including timeouts and empty output, wrap ErrUpstreamModel.
func (r *Registry) Generate(ctx context.Context, req Request) (Response, error) {
	resp, err := executeWithTaskFallback(r, req.Task, req.Model, func(p Provider, model string) (Response, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		defer cancel()

		resp, err := p.Generate(callCtx, req, model)
		if err == nil && strings.TrimSpace(resp.Text) == "" {
			err = faqerrors.ErrEmptyResponse
		}

		if resp.Provider == "" {
			resp.Provider = p.Name()
		}

		if resp.Model == "" {
			resp.Model = model
		}

		r.recordUsage(resp, req.Task, err == nil)

		return resp, err
	})
	if err != nil {
		return Response{}, fmt.Errorf("%w: %s: %w", faqerrors.ErrUpstreamModel, req.Task, err)
	}

	return resp, nil
}

func (r *Registry) recordUsage(resp Response, task TaskType, success bool) {
	r.mu.RLock()
	recorder := r.usage
	r.mu.RUnlock()

	if recorder == nil {
		return
	}

	recorder.RecordTokenUsage(string(resp.Provider), resp.Model, string(task), resp.PromptTokens, resp.CompletionTokens, success)
}

// getProviderChainForTask returns the provider/model chain for a task.
// It returns task-specific providers first, then falls back to all registered providers.
func (r *Registry) getProviderChainForTask(taskType TaskType) []ProviderModel {
	r.mu.RLock()
	taskChain, hasConfig := r.taskConfig[taskType]
	order := r.order
	r.mu.RUnlock()

	var providerModels []ProviderModel

	if hasConfig {
		providerModels = taskChain.GetProviderChain()
	}

	seen := make(map[ProviderName]bool)

	for _, pm := range providerModels {
		seen[pm.Provider] = true
	}

	for _, name := range order {
		if !seen[name] {
			providerModels = append(providerModels, ProviderModel{Provider: name, Model: ""})
			seen[name] = true
		}
	}

	return providerModels
}

// executeWithTaskFallback is a generic helper for task-aware fallback execution.
func executeWithTaskFallback[T any](r *Registry, taskType TaskType, modelOverride string, fn func(Provider, string) (T, error)) (T, error) {
	providerModels := r.getProviderChainForTask(taskType)

	var zero T

	if len(providerModels) == 0 {
		return zero, ErrNoProvidersAvailable
	}

	effectiveModelOverride := modelOverride
	if effectiveModelOverride == "" {
		effectiveModelOverride = r.getTaskModelOverride(taskType)
	}

	var lastErr, circuitErr error

	var failedProvider ProviderName

	for _, pm := range providerModels {
		result, success, err := tryProviderExec(r, pm, effectiveModelOverride, taskType, fn)
		if errors.Is(err, faqerrors.ErrCircuitBreakerOpen) {
			circuitErr = errors.Join(circuitErr, err)
			continue
		}

		if err != nil {
			lastErr = err

			if failedProvider == "" {
				failedProvider = pm.Provider
			}

			continue
		}

		if !success {
			continue
		}

		if failedProvider != "" {
			observability.LLMFallbacks.WithLabelValues(
				string(failedProvider),
				string(pm.Provider),
				string(taskType),
			).Inc()

			r.logger.Info().
				Str(logKeyProvider, string(pm.Provider)).
				Str("from_provider", string(failedProvider)).
				Str(logKeyTask, string(taskType)).
				Msg("used fallback LLM provider")
		}

		return result, nil
	}

	if lastErr != nil {
		return zero, errors.Join(ErrAllProvidersFailed, lastErr)
	}

	if circuitErr != nil {
		return zero, errors.Join(ErrNoProvidersAvailable, circuitErr)
	}

	return zero, ErrNoProvidersAvailable
}

// tryProviderExec attempts to execute function with a provider.
// success is false with a nil error when the provider is unavailable, and
// false with ErrCircuitBreakerOpen when its circuit is open.
func tryProviderExec[T any](r *Registry, pm ProviderModel, modelOverride string, taskType TaskType, fn func(Provider, string) (T, error)) (T, bool, error) {
	var zero T

	r.mu.RLock()
	p, exists := r.providers[pm.Provider]
	r.mu.RUnlock()

	if !exists || !p.IsAvailable() {
		return zero, false, nil
	}

	cb := r.getCircuitBreaker(pm.Provider)

	if err := cb.CheckCircuit(); err != nil {
		observability.LLMCircuitBreakerState.WithLabelValues(string(pm.Provider)).Set(MetricValueCBOpen)
		observability.LLMProviderAvailable.WithLabelValues(string(pm.Provider)).Set(MetricValueUnavailable)

		r.logger.Debug().
			Err(err).
			Str(logKeyProvider, string(pm.Provider)).
			Str(logKeyTask, string(taskType)).
			Msg(logMsgCircuitBreakerOpen)

		return zero, false, fmt.Errorf("%s: %w", pm.Provider, err)
	}

	model := pm.Model
	if modelOverride != "" {
		model = modelOverride
	}

	start := time.Now()

	result, err := fn(p, model)

	duration := time.Since(start)

	observability.LLMRequestLatency.WithLabelValues(
		string(pm.Provider),
		model,
		string(taskType),
	).Observe(duration.Seconds())

	if err != nil {
		wasOpen := !cb.CanAttempt()
		cb.RecordFailure(pm.Provider)
		isNowOpen := !cb.CanAttempt()

		if !wasOpen && isNowOpen {
			observability.LLMCircuitBreakerOpens.WithLabelValues(string(pm.Provider)).Inc()
			observability.LLMCircuitBreakerState.WithLabelValues(string(pm.Provider)).Set(MetricValueCBOpen)
			observability.LLMProviderAvailable.WithLabelValues(string(pm.Provider)).Set(MetricValueUnavailable)
		}

		r.logger.Warn().
			Err(err).
			Str(logKeyProvider, string(pm.Provider)).
			Str(logKeyModel, model).
			Str(logKeyTask, string(taskType)).
			Float64("duration_seconds", duration.Seconds()).
			Msg("LLM provider failed, trying fallback")

		return zero, false, err
	}

	cb.RecordSuccess()

	observability.LLMCircuitBreakerState.WithLabelValues(string(pm.Provider)).Set(MetricValueCBClosed)
	observability.LLMProviderAvailable.WithLabelValues(string(pm.Provider)).Set(MetricValueAvailable)

	return result, true, nil
}

// sortProvidersByPriority sorts providers by priority in descending order.
func (r *Registry) sortProvidersByPriority() {
	sort.SliceStable(r.order, func(i, j int) bool {
		pi := r.providers[r.order[i]].Priority()
		pj := r.providers[r.order[j]].Priority()

		return pi > pj
	})
}

func (r *Registry) getCircuitBreaker(name ProviderName) *CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.circuitBreakers[name]
}

// ProviderStatus holds status information for a provider.
type ProviderStatus struct {
	Name             ProviderName
	Priority         int
	Available        bool
	CircuitBreakerOK bool
}

// GetProviderStatuses returns status information for all registered providers.
func (r *Registry) GetProviderStatuses() []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]ProviderStatus, 0, len(r.order))

	for _, name := range r.order {
		p := r.providers[name]
		cb := r.circuitBreakers[name]

		statuses = append(statuses, ProviderStatus{
			Name:             name,
			Priority:         p.Priority(),
			Available:        p.IsAvailable(),
			CircuitBreakerOK: cb.CanAttempt(),
		})
	}

	return statuses
}

// Close releases provider clients that hold connections.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error

	for _, name := range r.order {
		if closer, ok := r.providers[name].(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s provider: %w", name, err))
			}
		}
	}

	return errors.Join(errs...)
}

var _ Generator = (*Registry)(nil)
