package faq

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lueurxax/faq-digest/internal/core/domain"
	faqerrors "github.com/lueurxax/faq-digest/internal/core/errors"
)

// MessageStore is the read-only view of chat history the sampler needs.
type MessageStore interface {
	CountMessagesInWindow(ctx context.Context, window domain.Window) (int, error)
	// GetMessagesInWindow returns messages ordered by timestamp ascending.
	GetMessagesInWindow(ctx context.Context, window domain.Window) ([]domain.Message, error)
	// GetLatestMessages returns the newest limit messages ordered by timestamp descending.
	GetLatestMessages(ctx context.Context, limit int) ([]domain.Message, error)
}

// Sample is the sampler output for one run.
type Sample struct {
	Questions []domain.RawQuestion
	Source    domain.SampleSource
	// WindowCount is the number of messages found inside the window.
	WindowCount int
	// Messages is the number of messages the questions were extracted from.
	Messages int
}

// Sampler picks the messages a run clusters. If last week's traffic is
// sparse it falls back to a fixed-size recency sample so the run still has
// something meaningful to work with.
type Sampler struct {
	store        MessageStore
	threshold    int
	fallbackSize int
	logger       *zerolog.Logger
}

// NewSampler creates a sampler. Non-positive sizes select the defaults.
func NewSampler(store MessageStore, threshold, fallbackSize int, logger *zerolog.Logger) *Sampler {
	if threshold <= 0 {
		threshold = DefaultSufficiencyThreshold
	}

	if fallbackSize <= 0 {
		fallbackSize = DefaultFallbackSampleSize
	}

	return &Sampler{
		store:        store,
		threshold:    threshold,
		fallbackSize: fallbackSize,
		logger:       nopIfNil(logger),
	}
}

// Sample returns the questions of the window, or of the latest messages
// when the window holds fewer than the sufficiency threshold.
func (s *Sampler) Sample(ctx context.Context, window domain.Window) (Sample, error) {
	count, err := s.store.CountMessagesInWindow(ctx, window)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: count messages in window: %w", faqerrors.ErrPersistence, err)
	}

	var (
		messages []domain.Message
		source   domain.SampleSource
	)

	if count < s.threshold {
		latest, err := s.store.GetLatestMessages(ctx, s.fallbackSize)
		if err != nil {
			return Sample{}, fmt.Errorf("%w: get latest messages: %w", faqerrors.ErrPersistence, err)
		}

		messages = slices.Clone(latest)
		slices.Reverse(messages)
		source = domain.SampleSourceFallback

		s.logger.Info().
			Int("window_count", count).
			Int("threshold", s.threshold).
			Int("fallback_size", s.fallbackSize).
			Msg("sparse week, using latest messages")
	} else {
		messages, err = s.store.GetMessagesInWindow(ctx, window)
		if err != nil {
			return Sample{}, fmt.Errorf("%w: get messages in window: %w", faqerrors.ErrPersistence, err)
		}

		source = domain.SampleSourceWindow
	}

	return Sample{
		Questions:   ExtractQuestions(messages),
		Source:      source,
		WindowCount: count,
		Messages:    len(messages),
	}, nil
}

// ExtractQuestions turns chronologically ordered messages into questions.
// Each human message becomes one question; a bot message directly after it
// becomes its context. Blank human messages are skipped.
func ExtractQuestions(messages []domain.Message) []domain.RawQuestion {
	questions := make([]domain.RawQuestion, 0, len(messages))

	for i, m := range messages {
		if m.IsBot {
			continue
		}

		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}

		q := domain.RawQuestion{Question: text, Timestamp: m.Timestamp}

		if i+1 < len(messages) && messages[i+1].IsBot {
			if answer := strings.TrimSpace(messages[i+1].Content); answer != "" {
				q.Context = &answer
			}
		}

		questions = append(questions, q)
	}

	return questions
}

func nopIfNil(logger *zerolog.Logger) *zerolog.Logger {
	if logger != nil {
		return logger
	}

	nop := zerolog.Nop()

	return &nop
}
