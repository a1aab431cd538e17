// Package events announces new FAQ snapshots on NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/lueurxax/faq-digest/internal/core/domain"
)

const (
	maxReconnects = 60
	reconnectWait = 2 * time.Second
)

// SnapshotCreated is the payload published after a snapshot commits.
type SnapshotCreated struct {
	SnapshotID     int64          `json:"snapshot_id"`
	GeneratedAt    time.Time      `json:"generated_at"`
	TotalQuestions int            `json:"total_questions"`
	TrendText      string         `json:"trend_text"`
	Items          []SnapshotItem `json:"items"`
}

type SnapshotItem struct {
	Question string `json:"question"`
	Count    int    `json:"count"`
}

// NewSnapshotCreated builds the event payload from a persisted snapshot.
func NewSnapshotCreated(snapshot domain.Snapshot, items []domain.SnapshotItem) SnapshotCreated {
	out := SnapshotCreated{
		SnapshotID:     snapshot.ID,
		GeneratedAt:    snapshot.GeneratedAt.UTC(),
		TotalQuestions: snapshot.TotalQuestions,
		TrendText:      snapshot.TrendText,
		Items:          make([]SnapshotItem, 0, len(items)),
	}

	for _, item := range items {
		out.Items = append(out.Items, SnapshotItem{Question: item.Question, Count: item.Count})
	}

	return out
}

type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// Publisher sends snapshot events to one subject.
type Publisher struct {
	conn    conn
	close   func()
	subject string
	logger  *zerolog.Logger
}

// Connect dials NATS. Connection attempts keep retrying in the background,
// so a broker that is down at startup does not block the service.
func Connect(url, token, subject string, logger *zerolog.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("faq-digest"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrlRedacted()).Msg("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Publisher{conn: nc, close: nc.Close, subject: subject, logger: logger}, nil
}

// PublishSnapshotCreated publishes the event and waits for the server to
// acknowledge the flush or ctx to end.
func (p *Publisher) PublishSnapshotCreated(ctx context.Context, snapshot domain.Snapshot, items []domain.SnapshotItem) error {
	payload, err := json.Marshal(NewSnapshotCreated(snapshot, items))
	if err != nil {
		return fmt.Errorf("marshal snapshot event: %w", err)
	}

	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}

	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", p.subject, err)
	}

	p.logger.Debug().
		Int64("snapshot_id", snapshot.ID).
		Str("subject", p.subject).
		Msg("snapshot event published")

	return nil
}

func (p *Publisher) Close() {
	if p.close != nil {
		p.close()
	}
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

func (Nop) PublishSnapshotCreated(context.Context, domain.Snapshot, []domain.SnapshotItem) error {
	return nil
}
