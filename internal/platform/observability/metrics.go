package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FAQRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faq_pipeline_runs_total",
		Help: "Total number of FAQ pipeline runs by outcome",
	}, []string{"outcome"})

	FAQStepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faq_pipeline_step_failures_total",
		Help: "Total number of FAQ pipeline failures by step",
	}, []string{"step"})

	FAQRunDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "faq_pipeline_run_duration_seconds",
		Help:    "Duration in seconds of a full FAQ pipeline run",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 900},
	})

	FAQSampleSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "faq_sample_size",
		Help: "Number of questions sampled by the last run",
	})

	FAQSampleSource = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faq_sample_source_total",
		Help: "Sampling path chosen per run (window or fallback)",
	}, []string{"source"})

	FAQClusters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "faq_clusters",
		Help: "Number of clusters produced by the last run",
	})

	FAQPartitionAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faq_partition_anomalies_total",
		Help: "Cluster partition repairs by kind (dropped_element, duplicate_index, out_of_range_index, uncovered_index, count_mismatch)",
	}, []string{"kind"})

	FAQTriggersSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faq_triggers_skipped_total",
		Help: "Scheduled triggers dropped because a run was still in flight",
	})

	FAQLastSuccessTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "faq_last_success_timestamp_seconds",
		Help: "Unix time of the last run that wrote a snapshot",
	})

	FAQEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faq_snapshot_events_total",
		Help: "Snapshot-created events by publish status",
	}, []string{"status"})

	// LLM token usage metrics
	LLMTokensPrompt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faq_llm_tokens_prompt_total",
		Help: "Total number of prompt tokens used",
	}, []string{"provider", "model", "task"})

	LLMTokensCompletion = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faq_llm_tokens_completion_total",
		Help: "Total number of completion tokens used",
	}, []string{"provider", "model", "task"})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faq_llm_requests_total",
		Help: "Total number of LLM requests",
	}, []string{"provider", "model", "task", "status"})

	// LLM fallback and circuit breaker metrics
	LLMFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faq_llm_fallbacks_total",
		Help: "Total number of LLM fallback events",
	}, []string{"from_provider", "to_provider", "task"})

	LLMCircuitBreakerOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faq_llm_circuit_breaker_opens_total",
		Help: "Total number of times LLM circuit breaker opened",
	}, []string{"provider"})

	LLMCircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "faq_llm_circuit_breaker_state",
		Help: "Current state of LLM circuit breaker (0=closed, 1=open)",
	}, []string{"provider"})

	// LLM latency by provider and task
	LLMRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "faq_llm_request_latency_seconds",
		Help:    "Latency of LLM requests by provider and task",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"provider", "model", "task"})

	// LLM estimated costs (in millicents to avoid floating point issues)
	LLMEstimatedCost = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faq_llm_estimated_cost_millicents_total",
		Help: "Estimated LLM cost in millicents (0.001 cents)",
	}, []string{"provider", "model", "task"})

	// LLM provider availability
	LLMProviderAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "faq_llm_provider_available",
		Help: "Whether LLM provider is currently available (0=no, 1=yes)",
	}, []string{"provider"})
)
