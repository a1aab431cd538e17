// Package app wires configuration, storage, model providers and the FAQ
// pipeline together and exposes the run modes used by the CLI:
//
//   - Serve: weekly trigger loop plus the health/metrics server
//   - RunOnce: a single pipeline run, optionally dry
//   - Window and Latest: read-only views for operators
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/faq-digest/internal/core/domain"
	faqerrors "github.com/lueurxax/faq-digest/internal/core/errors"
	"github.com/lueurxax/faq-digest/internal/core/llm"
	"github.com/lueurxax/faq-digest/internal/platform/config"
	"github.com/lueurxax/faq-digest/internal/platform/events"
	"github.com/lueurxax/faq-digest/internal/platform/lock"
	"github.com/lueurxax/faq-digest/internal/platform/observability"
	"github.com/lueurxax/faq-digest/internal/platform/schedule"
	"github.com/lueurxax/faq-digest/internal/platform/worker"
	"github.com/lueurxax/faq-digest/internal/process/faq"
	db "github.com/lueurxax/faq-digest/internal/storage"
)

const (
	redisLockKey      = "faq-digest:run-lock"
	redisLockTTLSlack = 5 * time.Minute
	workerName        = "faq-weekly"
	statusTimeout     = 2 * time.Second
)

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// runtime is one assembled pipeline plus what must be closed after it.
type runtime struct {
	pipeline *faq.Pipeline
	llm      *llm.Registry
	closers  []func()
}

func (r *runtime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func (a *App) newRuntime(ctx context.Context) (*runtime, error) {
	rt := &runtime{}

	resolver, err := schedule.NewWindowResolver(a.cfg.FAQTimezone, time.Now)
	if err != nil {
		return nil, err
	}

	rt.llm = llm.New(ctx, a.cfg, a.componentLogger("llm"))
	rt.closers = append(rt.closers, func() {
		if err := rt.llm.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close LLM providers")
		}
	})

	faqLogger := a.componentLogger("faq")

	// Per-task model overrides live in the registry, so the stages pass none.
	clusterer, err := faq.NewClusterer(rt.llm, "", faqLogger)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("clusterer init: %w", err)
	}

	runLock, err := a.newRunLock(ctx, rt)
	if err != nil {
		rt.close()
		return nil, err
	}

	publisher, err := a.newPublisher(rt)
	if err != nil {
		rt.close()
		return nil, err
	}

	rt.pipeline = faq.New(faq.Deps{
		Resolver:  resolver,
		Sampler:   faq.NewSampler(a.database, a.cfg.FAQSufficiencyThreshold, a.cfg.FAQFallbackSampleSize, faqLogger),
		Clusterer: clusterer,
		Narrator:  faq.NewNarrator(rt.llm, a.cfg.FAQTopK, "", faqLogger),
		Writer:    faq.NewWriter(a.database, time.Now),
		Lock:      runLock,
		Publisher: publisher,
	}, a.cfg.FAQRunTimeout, faqLogger)

	return rt, nil
}

func (a *App) newRunLock(ctx context.Context, rt *runtime) (faq.RunLock, error) {
	switch a.cfg.LockBackend {
	case config.LockBackendMemory:
		return lock.NewMemory(), nil
	case config.LockBackendRedis:
		client, err := lock.NewRedisClient(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis lock init: %w", err)
		}

		rt.closers = append(rt.closers, func() { _ = client.Close() })

		return lock.NewRedis(client, redisLockKey, a.cfg.FAQRunTimeout+redisLockTTLSlack), nil
	default:
		return a.database.NewAdvisoryLock(db.FAQRunLockID), nil
	}
}

func (a *App) newPublisher(rt *runtime) (faq.SnapshotPublisher, error) {
	if a.cfg.NATSURL == "" {
		return events.Nop{}, nil
	}

	publisher, err := events.Connect(a.cfg.NATSURL, a.cfg.NATSToken, a.cfg.NATSSubject, a.componentLogger("events"))
	if err != nil {
		return nil, fmt.Errorf("events init: %w", err)
	}

	rt.closers = append(rt.closers, publisher.Close)

	return publisher, nil
}

func (a *App) componentLogger(name string) *zerolog.Logger {
	logger := a.logger.With().Str("component", name).Logger()
	return &logger
}

// RunOnce executes a single pipeline run.
func (a *App) RunOnce(ctx context.Context, opts faq.RunOptions) (faq.RunResult, error) {
	rt, err := a.newRuntime(ctx)
	if err != nil {
		return faq.RunResult{}, err
	}
	defer rt.close()

	result, err := rt.pipeline.Run(ctx, opts)
	if err != nil {
		return result, fmt.Errorf("faq run: %w", err)
	}

	return result, nil
}

// Serve runs the weekly trigger loop and the health server until ctx ends.
// A trigger that fires while a run is in flight is dropped.
func (a *App) Serve(ctx context.Context) error {
	trigger, err := schedule.ParseTrigger(a.cfg.FAQSchedule, a.cfg.FAQTimezone)
	if err != nil {
		return err
	}

	rt, err := a.newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	var nextRun atomic.Pointer[time.Time]

	status := &statusReporter{
		pipeline: rt.pipeline,
		llm:      rt.llm,
		store:    a.database,
		schedule: trigger.String(),
		nextRun:  &nextRun,
	}

	srv := observability.NewServer(a.database, status.report, a.cfg.HealthPort, a.componentLogger("health"))

	go func() {
		if err := srv.Start(ctx); err != nil {
			a.logger.Error().Err(err).Msg("health server error")
		}
	}()

	a.logger.Info().
		Str("schedule", trigger.String()).
		Str("lock_backend", a.cfg.LockBackend).
		Msg("starting weekly FAQ scheduler")

	err = worker.CronLoop(ctx, worker.CronConfig{
		Name:     workerName,
		Schedule: trigger,
		Run: func(ctx context.Context) error {
			_, err := rt.pipeline.Run(ctx, faq.RunOptions{})
			return err
		},
		OnError: a.onScheduledRunError,
		OnFire: func(next time.Time) {
			nextRun.Store(&next)
		},
		Logger: a.componentLogger("scheduler"),
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func (a *App) onScheduledRunError(err error) {
	if errors.Is(err, faqerrors.ErrRunInProgress) {
		observability.FAQTriggersSkipped.Inc()
		a.logger.Warn().Msg("weekly trigger dropped: previous run still in progress")

		return
	}

	// The pipeline already logged the failing step; the next trigger retries.
	a.logger.Debug().Err(err).Msg("scheduled run failed")
}

// Window returns the window a run at the given instant would read.
func (a *App) Window(at time.Time) (domain.Window, error) {
	return schedule.LastWeekWindow(a.cfg.FAQTimezone, at)
}

// Latest returns the newest snapshot and its items.
func (a *App) Latest(ctx context.Context) (*domain.Snapshot, []domain.SnapshotItem, error) {
	snapshot, err := a.database.GetLatestSnapshot(ctx)
	if err != nil {
		return nil, nil, err
	}

	items, err := a.database.GetSnapshotItems(ctx, snapshot.ID)
	if err != nil {
		return nil, nil, err
	}

	return snapshot, items, nil
}
