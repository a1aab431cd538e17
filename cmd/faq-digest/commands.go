package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lueurxax/faq-digest/internal/app"
	"github.com/lueurxax/faq-digest/internal/core/domain"
	"github.com/lueurxax/faq-digest/internal/platform/config"
	"github.com/lueurxax/faq-digest/internal/platform/schedule"
	"github.com/lueurxax/faq-digest/internal/process/faq"
	db "github.com/lueurxax/faq-digest/internal/storage"
)

const displayTimeLayout = "2006-01-02 15:04:05.000 MST"

// env is the per-invocation state shared by subcommands.
type env struct {
	cfg     *config.Config
	logger  zerolog.Logger
	migrate func(ctx context.Context, database *db.DB) error
}

// newRootCmd builds the CLI. Errors, including configuration errors raised
// before a logger exists, are printed to the command's stderr.
func newRootCmd() *cobra.Command {
	e := &env{migrate: func(ctx context.Context, database *db.DB) error {
		return database.Migrate(ctx)
	}}

	root := &cobra.Command{
		Use:          "faq-digest",
		Short:        "Weekly FAQ synthesis from chat history",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			e.cfg = cfg
			e.logger = newLogger(cfg.AppEnv, cfg.LogLevel)

			return nil
		},
	}

	root.AddCommand(
		newServeCmd(e),
		newRunCmd(e),
		newWindowCmd(e),
		newLatestCmd(e),
		newMigrateCmd(e),
	)

	return root
}

func newServeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the weekly trigger loop and the health server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				return a.Serve(ctx)
			})
		},
	}
}

func newRunCmd(e *env) *cobra.Command {
	var (
		at     string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once now",
		Long: `Runs one pipeline immediately. --at evaluates the window as if the
current time were the given instant; --dry-run stops before persistence and
prints the clusters and trend text instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := parseAt(at, e.cfg.FAQTimezone)
			if err != nil {
				return err
			}

			// A dry run never changes the schema.
			return e.withApp(cmd.Context(), !dryRun, func(ctx context.Context, a *app.App) error {
				result, err := a.RunOnce(ctx, faq.RunOptions{Now: now, DryRun: dryRun})
				if err != nil {
					return err
				}

				printRunResult(cmd.OutOrStdout(), result)

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "evaluate as if now were this time (any common date format)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "skip persistence and print the result")

	return cmd
}

func newWindowCmd(e *env) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "window",
		Short: "Print the window a run would read",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := parseAt(at, e.cfg.FAQTimezone)
			if err != nil {
				return err
			}

			if now.IsZero() {
				now = time.Now()
			}

			w, err := app.New(e.cfg, nil, &e.logger).Window(now)
			if err != nil {
				return err
			}

			printWindow(cmd.OutOrStdout(), w, e.cfg.FAQTimezone)

			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "evaluate as if now were this time (any common date format)")

	return cmd
}

func newLatestCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Print the most recent snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				snapshot, items, err := a.Latest(ctx)
				if errors.Is(err, db.ErrSnapshotNotFound) {
					fmt.Fprintln(cmd.OutOrStdout(), "no snapshot yet")
					return nil
				}

				if err != nil {
					return err
				}

				printSnapshot(cmd.OutOrStdout(), *snapshot, items)

				return nil
			})
		},
	}
}

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.withApp(cmd.Context(), true, func(context.Context, *app.App) error {
				e.logger.Info().Msg("migrations applied")
				return nil
			})
		},
	}
}

// withApp connects the store, applies migrations when migrate is set and runs
// fn until SIGINT/SIGTERM.
func (e *env) withApp(parent context.Context, migrate bool, fn func(ctx context.Context, a *app.App) error) error {
	if parent == nil {
		parent = context.Background()
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolOpts := db.PoolOptions{
		MaxConns:          e.cfg.DBMaxConnections,
		MinConns:          e.cfg.DBMinConnections,
		MaxConnIdleTime:   e.cfg.DBMaxConnIdleTime,
		MaxConnLifetime:   e.cfg.DBMaxConnLifetime,
		HealthCheckPeriod: e.cfg.DBHealthCheckPeriod,
	}

	database, err := db.NewWithOptions(ctx, e.cfg.PostgresDSN, poolOpts, &e.logger)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer database.Close()

	if migrate {
		if err := e.migrate(ctx, database); err != nil {
			e.logger.Error().Err(err).Msg("failed to run migrations")
			return err
		}
	}

	err = fn(ctx, app.New(e.cfg, database, &e.logger))
	if err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Error().Err(err).Msg("application error")
		return err
	}

	return nil
}

// parseAt reads a user-supplied instant. Inputs without an offset are read in
// timezone. An empty value yields the zero time.
func parseAt(value, timezone string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	loc, err := schedule.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}

	t, err := dateparse.ParseIn(value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --at %q: %w", value, err)
	}

	return t, nil
}

func printWindow(w io.Writer, window domain.Window, timezone string) {
	loc, err := schedule.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	fmt.Fprintf(w, "from: %s\n", window.From.In(loc).Format(displayTimeLayout))
	fmt.Fprintf(w, "to:   %s\n", window.To.In(loc).Format(displayTimeLayout))
}

func printRunResult(w io.Writer, result faq.RunResult) {
	fmt.Fprintf(w, "run:       %s\n", result.CorrelationID)
	fmt.Fprintf(w, "window:    %s .. %s\n", result.Window.From.Format(time.RFC3339), result.Window.To.Format(time.RFC3339))
	fmt.Fprintf(w, "source:    %s\n", result.Source)
	fmt.Fprintf(w, "questions: %d\n", result.TotalQuestions)

	if result.Empty {
		fmt.Fprintln(w, "no questions sampled; nothing written")
		return
	}

	if result.Snapshot != nil {
		fmt.Fprintf(w, "snapshot:  %d\n", result.Snapshot.ID)
	} else {
		fmt.Fprintln(w, "snapshot:  (dry run, not written)")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, faq.RenderTopList(result.Clusters, len(result.Clusters)))
	fmt.Fprintln(w)
	fmt.Fprintln(w, result.TrendText)
}

func printSnapshot(w io.Writer, snapshot domain.Snapshot, items []domain.SnapshotItem) {
	fmt.Fprintf(w, "snapshot:  %d\n", snapshot.ID)
	fmt.Fprintf(w, "generated: %s\n", snapshot.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "questions: %d\n\n", snapshot.TotalQuestions)

	for i, item := range items {
		fmt.Fprintf(w, "%d. %s (%d)\n", i+1, item.Question, item.Count)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, snapshot.TrendText)
}
