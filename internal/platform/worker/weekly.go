package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Schedule yields the next fire time strictly after the given instant.
type Schedule interface {
	Next(after time.Time) time.Time
}

// CronConfig configures a schedule-driven worker loop.
type CronConfig struct {
	// Name identifies the worker for logging.
	Name string

	Schedule Schedule

	// Run is started in its own goroutine on every fire, so a slow run never
	// delays the next fire. Overlap is resolved by Run itself.
	Run func(ctx context.Context) error

	// OnError is called when Run returns an error. If nil, errors are logged.
	OnError func(err error)

	// OnFire is called with the next fire time each time the loop rearms.
	OnFire func(next time.Time)

	Logger *zerolog.Logger
}

// CronLoop fires cfg.Run on every schedule tick until ctx is canceled, then
// waits for in-flight runs to return.
func CronLoop(ctx context.Context, cfg CronConfig) error {
	logger := getLogger(cfg.Logger)
	logger.Info().Str(logFieldWorker, cfg.Name).Msg("starting cron loop")

	var wg sync.WaitGroup

	defer func() {
		wg.Wait()
		logger.Info().Str(logFieldWorker, cfg.Name).Msg("cron loop stopped")
	}()

	next := cfg.Schedule.Next(time.Now())

	for {
		if cfg.OnFire != nil {
			cfg.OnFire(next)
		}

		logger.Debug().Str(logFieldWorker, cfg.Name).Time(logFieldNextAt, next).Msg("waiting for next fire")

		if err := WaitUntil(ctx, next); err != nil {
			return fmt.Errorf("cron loop %s: %w", cfg.Name, err)
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			fire(ctx, cfg, logger)
		}()

		next = cfg.Schedule.Next(next)
		if now := time.Now(); !next.After(now) {
			// Fires missed while the process was stalled are not replayed.
			next = cfg.Schedule.Next(now)
		}
	}
}

func fire(ctx context.Context, cfg CronConfig, logger *zerolog.Logger) {
	defer RecoverPanic(logger, cfg.Name)

	if err := cfg.Run(ctx); err != nil {
		if cfg.OnError != nil {
			cfg.OnError(err)
			return
		}

		logger.Error().Err(err).Str(logFieldWorker, cfg.Name).Msg("scheduled run failed")
	}
}
