package faq

import (
	"context"
	"fmt"
	"time"

	"github.com/lueurxax/faq-digest/internal/core/domain"
	faqerrors "github.com/lueurxax/faq-digest/internal/core/errors"
)

// SnapshotStore persists a snapshot and its items as one unit.
// Either every row becomes visible or none does.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot domain.Snapshot, items []domain.SnapshotItem) (int64, error)
}

// Writer turns clusters into a snapshot row plus one item per cluster.
// Member indices are not persisted.
type Writer struct {
	store SnapshotStore
	now   func() time.Time
}

// NewWriter creates a writer. A nil clock means time.Now.
func NewWriter(store SnapshotStore, clock func() time.Time) *Writer {
	if clock == nil {
		clock = time.Now
	}

	return &Writer{store: store, now: clock}
}

// Save writes a new snapshot and returns it with ids filled in. Every call creates a new
// snapshot; there is no dedup across runs.
func (w *Writer) Save(ctx context.Context, totalQuestions int, trendText string, clusters []domain.ClusterResult) (domain.Snapshot, []domain.SnapshotItem, error) {
	sum := 0
	items := make([]domain.SnapshotItem, 0, len(clusters))

	for _, c := range clusters {
		sum += c.Count
		items = append(items, domain.SnapshotItem{Question: c.CanonicalQuestion, Count: c.Count})
	}

	if sum != totalQuestions {
		return domain.Snapshot{}, nil, fmt.Errorf("%w: cluster counts sum to %d, want %d", faqerrors.ErrInvalidInput, sum, totalQuestions)
	}

	snapshot := domain.Snapshot{
		GeneratedAt:    w.now().UTC(),
		TotalQuestions: totalQuestions,
		TrendText:      trendText,
	}

	id, err := w.store.SaveSnapshot(ctx, snapshot, items)
	if err != nil {
		return domain.Snapshot{}, nil, fmt.Errorf("%w: save snapshot: %w", faqerrors.ErrPersistence, err)
	}

	snapshot.ID = id

	for i := range items {
		items[i].SnapshotID = id
	}

	return snapshot, items, nil
}
