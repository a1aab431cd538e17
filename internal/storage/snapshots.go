package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/faq-digest/internal/core/domain"
)

// ErrSnapshotNotFound is returned when no snapshot has been written yet.
var ErrSnapshotNotFound = errors.New("faq snapshot not found")

// SaveSnapshot inserts the snapshot and its items in one transaction and
// returns the new snapshot id. A failed item insert leaves nothing behind.
func (db *DB) SaveSnapshot(ctx context.Context, snapshot domain.Snapshot, items []domain.SnapshotItem) (int64, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // rollback after commit returns error, this is best-effort cleanup
	}()

	var id int64

	err = tx.QueryRow(ctx, `
		INSERT INTO faq_snapshots (generated_at, total_questions, trend_text)
		VALUES ($1, $2, $3)
		RETURNING id
	`, toTimestamptz(snapshot.GeneratedAt), snapshot.TotalQuestions, SanitizeUTF8(snapshot.TrendText)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert faq snapshot: %w", err)
	}

	batch := &pgx.Batch{}

	for _, item := range items {
		batch.Queue(`
			INSERT INTO faq_items (snapshot_id, question, count)
			VALUES ($1, $2, $3)
		`, id, SanitizeUTF8(item.Question), item.Count)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("insert faq items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return id, nil
}

// GetLatestSnapshot returns the most recently generated snapshot.
func (db *DB) GetLatestSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	var (
		s           domain.Snapshot
		generatedAt pgtype.Timestamptz
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT id, generated_at, total_questions, trend_text
		FROM faq_snapshots
		ORDER BY generated_at DESC, id DESC
		LIMIT 1
	`).Scan(&s.ID, &generatedAt, &s.TotalQuestions, &s.TrendText)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("get latest faq snapshot: %w", err)
	}

	s.GeneratedAt = generatedAt.Time.UTC()

	return &s, nil
}

// GetSnapshotItems returns a snapshot's items, largest count first.
func (db *DB) GetSnapshotItems(ctx context.Context, snapshotID int64) ([]domain.SnapshotItem, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, snapshot_id, question, count
		FROM faq_items
		WHERE snapshot_id = $1
		ORDER BY count DESC, id ASC
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("get faq items: %w", err)
	}

	items, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.SnapshotItem])
	if err != nil {
		return nil, fmt.Errorf("scan faq items: %w", err)
	}

	return items, nil
}
