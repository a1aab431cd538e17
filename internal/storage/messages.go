package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/faq-digest/internal/core/domain"
)

// CountMessagesInWindow counts messages with a timestamp inside the window, bounds included.
func (db *DB) CountMessagesInWindow(ctx context.Context, window domain.Window) (int, error) {
	var count int64

	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE "timestamp" BETWEEN $1 AND $2
	`, toTimestamptz(window.From), toTimestamptz(window.To)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages in window: %w", err)
	}

	return int(count), nil
}

// GetMessagesInWindow returns the window's messages ordered by timestamp ascending.
func (db *DB) GetMessagesInWindow(ctx context.Context, window domain.Window) ([]domain.Message, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT content, "timestamp", is_bot
		FROM messages
		WHERE "timestamp" BETWEEN $1 AND $2
		ORDER BY "timestamp" ASC, id ASC
	`, toTimestamptz(window.From), toTimestamptz(window.To))
	if err != nil {
		return nil, fmt.Errorf("get messages in window: %w", err)
	}

	return collectMessages(rows)
}

// GetLatestMessages returns the newest limit messages ordered by timestamp descending.
func (db *DB) GetLatestMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT content, "timestamp", is_bot
		FROM messages
		ORDER BY "timestamp" DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("get latest messages: %w", err)
	}

	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]domain.Message, error) {
	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Message, error) {
		var (
			m  domain.Message
			ts pgtype.Timestamptz
		)

		if err := row.Scan(&m.Content, &ts, &m.IsBot); err != nil {
			return domain.Message{}, err
		}

		m.Timestamp = ts.Time.UTC()

		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}

	return messages, nil
}

func toTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}
