package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/lueurxax/faq-digest/internal/core/domain"
	"github.com/lueurxax/faq-digest/internal/core/llm"
	db "github.com/lueurxax/faq-digest/internal/storage"
)

type runState interface {
	Running() bool
}

type providerStatuses interface {
	GetProviderStatuses() []llm.ProviderStatus
}

type latestSnapshotReader interface {
	GetLatestSnapshot(ctx context.Context) (*domain.Snapshot, error)
}

// Status is the JSON document served on /status.
type Status struct {
	Running        bool              `json:"running"`
	Schedule       string            `json:"schedule"`
	NextRun        *time.Time        `json:"next_run,omitempty"`
	LatestSnapshot *SnapshotSummary  `json:"latest_snapshot,omitempty"`
	SnapshotError  string            `json:"snapshot_error,omitempty"`
	Providers      []ProviderSummary `json:"providers"`
}

type SnapshotSummary struct {
	ID             int64     `json:"id"`
	GeneratedAt    time.Time `json:"generated_at"`
	TotalQuestions int       `json:"total_questions"`
}

type ProviderSummary struct {
	Name             string `json:"name"`
	Available        bool   `json:"available"`
	CircuitBreakerOK bool   `json:"circuit_breaker_ok"`
}

type statusReporter struct {
	pipeline runState
	llm      providerStatuses
	store    latestSnapshotReader
	schedule string
	nextRun  *atomic.Pointer[time.Time]
}

func (s *statusReporter) report(ctx context.Context) any {
	out := Status{
		Running:   s.pipeline.Running(),
		Schedule:  s.schedule,
		NextRun:   s.nextRun.Load(),
		Providers: []ProviderSummary{},
	}

	for _, p := range s.llm.GetProviderStatuses() {
		out.Providers = append(out.Providers, ProviderSummary{
			Name:             string(p.Name),
			Available:        p.Available,
			CircuitBreakerOK: p.CircuitBreakerOK,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	snapshot, err := s.store.GetLatestSnapshot(ctx)

	switch {
	case err == nil:
		out.LatestSnapshot = &SnapshotSummary{
			ID:             snapshot.ID,
			GeneratedAt:    snapshot.GeneratedAt,
			TotalQuestions: snapshot.TotalQuestions,
		}
	case !errors.Is(err, db.ErrSnapshotNotFound):
		out.SnapshotError = err.Error()
	}

	return out
}
