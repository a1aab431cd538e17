package faq

import "time"

// Pipeline steps, used in StepError and the step failure metric.
const (
	StepLock    = "lock"
	StepSample  = "sample"
	StepCluster = "cluster"
	StepNarrate = "narrate"
	StepSave    = "save"
)

// Run outcomes for the runs metric.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeDryRun  = "dry_run"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Partition anomaly kinds.
const (
	AnomalyDroppedElement  = "dropped_element"
	AnomalyOutOfRange      = "out_of_range_index"
	AnomalyDuplicateIndex  = "duplicate_index"
	AnomalyEmptyCluster    = "empty_cluster"
	AnomalyCountMismatch   = "count_mismatch"
	AnomalyUncoveredIndex  = "uncovered_index"
	AnomalyQuestionClipped = "question_clipped"
)

// Sampling defaults.
const (
	DefaultSufficiencyThreshold = 50
	DefaultFallbackSampleSize   = 50
	DefaultTopK                 = 5
)

// Clustering limits.
const (
	MaxCanonicalQuestionRunes = 80
	clusterTemperature        = 0.2
	clusterMaxOutputTokens    = 8192
	narrativeTemperature      = 0.7
	narrativeMaxOutputTokens  = 1024
)

const (
	defaultRunTimeout  = 15 * time.Minute
	lockReleaseTimeout = 5 * time.Second
)

// Log field constants
const (
	LogFieldCorrelationID = "correlation_id"
	LogFieldWindowFrom    = "window_from"
	LogFieldWindowTo      = "window_to"
	LogFieldSampleSize    = "sample_size"
	LogFieldSource        = "source"
	LogFieldStep          = "step"
	LogFieldSnapshotID    = "snapshot_id"
	LogFieldClusters      = "clusters"
)
