package faq

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/faq-digest/internal/core/domain"
	faqerrors "github.com/lueurxax/faq-digest/internal/core/errors"
	"github.com/lueurxax/faq-digest/internal/platform/observability"
)

// WindowResolver maps an instant to the previous calendar week.
type WindowResolver interface {
	At(now time.Time) domain.Window
	LastWeek() domain.Window
}

// IntentClusterer partitions questions into intents.
type IntentClusterer interface {
	Cluster(ctx context.Context, raw []domain.RawQuestion) ([]domain.ClusterResult, error)
}

// TrendNarrator writes the trend text for sorted clusters.
type TrendNarrator interface {
	Narrate(ctx context.Context, clusters []domain.ClusterResult) (string, error)
}

// RunLock guards a run across processes. TryAcquire never blocks on a held lock.
type RunLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// SnapshotPublisher announces a committed snapshot.
type SnapshotPublisher interface {
	PublishSnapshotCreated(ctx context.Context, snapshot domain.Snapshot, items []domain.SnapshotItem) error
}

// Deps holds the pipeline collaborators. Lock and Publisher are optional.
type Deps struct {
	Resolver  WindowResolver
	Sampler   *Sampler
	Clusterer IntentClusterer
	Narrator  TrendNarrator
	Writer    *Writer
	Lock      RunLock
	Publisher SnapshotPublisher
}

// RunOptions tunes a single run.
type RunOptions struct {
	// Now overrides the clock used to resolve the window.
	Now time.Time
	// DryRun stops before persistence.
	DryRun bool
}

// RunResult describes a finished run.
type RunResult struct {
	CorrelationID  string
	Window         domain.Window
	Source         domain.SampleSource
	TotalQuestions int
	Clusters       []domain.ClusterResult
	TrendText      string
	Snapshot       *domain.Snapshot
	Items          []domain.SnapshotItem
	// Empty is set when the sample had no questions and nothing was written.
	Empty bool
}

// Pipeline runs Sampler, Clusterer, Narrator and Writer in sequence.
// At most one run is active per Pipeline; a second Run while one is in
// flight returns ErrRunInProgress instead of queueing.
type Pipeline struct {
	deps       Deps
	runTimeout time.Duration
	running    atomic.Bool
	logger     *zerolog.Logger
}

// New creates a pipeline. Non-positive runTimeout selects the default.
func New(deps Deps, runTimeout time.Duration, logger *zerolog.Logger) *Pipeline {
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}

	return &Pipeline{
		deps:       deps,
		runTimeout: runTimeout,
		logger:     nopIfNil(logger),
	}
}

// Running reports whether a run is in flight.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// Run executes one pipeline run.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	if !p.running.CompareAndSwap(false, true) {
		observability.FAQRuns.WithLabelValues(OutcomeSkipped).Inc()
		return RunResult{}, faqerrors.ErrRunInProgress
	}
	defer p.running.Store(false)

	result := RunResult{CorrelationID: uuid.New().String()}
	logger := p.logger.With().Str(LogFieldCorrelationID, result.CorrelationID).Logger()

	runCtx, cancel := context.WithTimeout(ctx, p.runTimeout)
	defer cancel()

	release, err := p.acquireLock(runCtx)
	if err != nil {
		if errors.Is(err, faqerrors.ErrRunInProgress) {
			observability.FAQRuns.WithLabelValues(OutcomeSkipped).Inc()
			return result, err
		}

		observability.FAQRuns.WithLabelValues(OutcomeFailed).Inc()
		observability.FAQStepFailures.WithLabelValues(StepLock).Inc()
		logger.Error().Err(err).Str(LogFieldStep, StepLock).Msg("FAQ run failed")

		return result, err
	}
	defer release()

	start := time.Now()

	outcome, err := p.execute(runCtx, opts, &result, &logger)

	observability.FAQRunDurationSeconds.Observe(time.Since(start).Seconds())
	observability.FAQRuns.WithLabelValues(outcome).Inc()

	if err != nil {
		step := ""

		var stepErr *StepError
		if errors.As(err, &stepErr) {
			step = stepErr.Step
			observability.FAQStepFailures.WithLabelValues(step).Inc()
		}

		logger.Error().Err(err).Str(LogFieldStep, step).Msg("FAQ run failed")

		return result, err
	}

	logger.Info().
		Str("outcome", outcome).
		Dur("duration", time.Since(start)).
		Msg("FAQ run finished")

	return result, nil
}

func (p *Pipeline) execute(ctx context.Context, opts RunOptions, result *RunResult, logger *zerolog.Logger) (string, error) {
	if opts.Now.IsZero() {
		result.Window = p.deps.Resolver.LastWeek()
	} else {
		result.Window = p.deps.Resolver.At(opts.Now)
	}

	*logger = logger.With().
		Time(LogFieldWindowFrom, result.Window.From).
		Time(LogFieldWindowTo, result.Window.To).
		Logger()

	logger.Info().Bool("dry_run", opts.DryRun).Msg("starting FAQ run")

	sample, err := p.deps.Sampler.Sample(ctx, result.Window)
	if err != nil {
		return OutcomeFailed, stepError(StepSample, err)
	}

	result.Source = sample.Source
	result.TotalQuestions = len(sample.Questions)

	*logger = logger.With().
		Int(LogFieldSampleSize, result.TotalQuestions).
		Str(LogFieldSource, string(sample.Source)).
		Logger()

	observability.FAQSampleSource.WithLabelValues(string(sample.Source)).Inc()
	observability.FAQSampleSize.Set(float64(result.TotalQuestions))

	if result.TotalQuestions == 0 {
		result.Empty = true

		logger.Info().Int("messages", sample.Messages).Msg("no questions sampled, skipping run")

		return OutcomeEmpty, nil
	}

	clusters, err := p.deps.Clusterer.Cluster(ctx, sample.Questions)
	if err != nil {
		return OutcomeFailed, stepError(StepCluster, err)
	}

	result.Clusters = clusters
	observability.FAQClusters.Set(float64(len(clusters)))

	logger.Info().Int(LogFieldClusters, len(clusters)).Msg("clustered questions")

	trend, err := p.deps.Narrator.Narrate(ctx, clusters)
	if err != nil {
		return OutcomeFailed, stepError(StepNarrate, err)
	}

	result.TrendText = trend

	if opts.DryRun {
		return OutcomeDryRun, nil
	}

	snapshot, items, err := p.deps.Writer.Save(ctx, result.TotalQuestions, trend, clusters)
	if err != nil {
		return OutcomeFailed, stepError(StepSave, err)
	}

	result.Snapshot = &snapshot
	result.Items = items

	observability.FAQLastSuccessTimestamp.Set(float64(snapshot.GeneratedAt.Unix()))

	logger.Info().Int64(LogFieldSnapshotID, snapshot.ID).Msg("saved FAQ snapshot")

	p.publish(ctx, snapshot, items, logger)

	return OutcomeSuccess, nil
}

// acquireLock takes the cross-process lock if one is configured and returns
// its release function. A held lock maps to ErrRunInProgress.
func (p *Pipeline) acquireLock(ctx context.Context) (func(), error) {
	if p.deps.Lock == nil {
		return func() {}, nil
	}

	acquired, err := p.deps.Lock.TryAcquire(ctx)
	if err != nil {
		return nil, stepError(StepLock, fmt.Errorf("%w: acquire run lock: %w", faqerrors.ErrPersistence, err))
	}

	if !acquired {
		p.logger.Warn().Msg("FAQ run lock held elsewhere, skipping")
		return nil, faqerrors.ErrRunInProgress
	}

	return func() {
		// The run context may be expired by now.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
		defer cancel()

		if err := p.deps.Lock.Release(releaseCtx); err != nil {
			p.logger.Warn().Err(err).Msg("failed to release FAQ run lock")
		}
	}, nil
}

// publish is best effort: the snapshot is already committed.
func (p *Pipeline) publish(ctx context.Context, snapshot domain.Snapshot, items []domain.SnapshotItem, logger *zerolog.Logger) {
	if p.deps.Publisher == nil {
		return
	}

	if err := p.deps.Publisher.PublishSnapshotCreated(ctx, snapshot, items); err != nil {
		observability.FAQEventsPublished.WithLabelValues(OutcomeFailed).Inc()
		logger.Warn().Err(err).Int64(LogFieldSnapshotID, snapshot.ID).Msg("failed to publish snapshot event")

		return
	}

	observability.FAQEventsPublished.WithLabelValues(OutcomeSuccess).Inc()
}
