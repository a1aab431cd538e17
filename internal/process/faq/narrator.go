package faq

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lueurxax/faq-digest/internal/core/domain"
	faqerrors "github.com/lueurxax/faq-digest/internal/core/errors"
	"github.com/lueurxax/faq-digest/internal/core/llm"
)

// Narrator writes the weekly trend analysis from the top clusters only.
type Narrator struct {
	generator llm.Generator
	topK      int
	model     string
	logger    *zerolog.Logger
}

// NewNarrator creates a narrator. Non-positive topK selects the default.
func NewNarrator(generator llm.Generator, topK int, model string, logger *zerolog.Logger) *Narrator {
	if topK <= 0 {
		topK = DefaultTopK
	}

	return &Narrator{
		generator: generator,
		topK:      topK,
		model:     model,
		logger:    nopIfNil(logger),
	}
}

// Narrate returns the trimmed narrative for clusters, which must already be
// sorted by count descending.
func (n *Narrator) Narrate(ctx context.Context, clusters []domain.ClusterResult) (string, error) {
	if len(clusters) == 0 {
		return "", fmt.Errorf("%w: no clusters to narrate", faqerrors.ErrInvalidInput)
	}

	resp, err := n.generator.Generate(ctx, llm.Request{
		Task:               llm.TaskTypeNarrative,
		SystemInstructions: narrativeInstructions,
		UserContent:        RenderTopList(clusters, n.topK),
		Temperature:        narrativeTemperature,
		MaxOutputTokens:    narrativeMaxOutputTokens,
		Model:              n.model,
	})
	if err != nil {
		return "", asUpstreamError(err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("%w: %w: narrative", faqerrors.ErrUpstreamModel, faqerrors.ErrEmptyResponse)
	}

	n.logger.Debug().
		Str("provider", string(resp.Provider)).
		Int("length", len([]rune(text))).
		Msg("generated trend narrative")

	return text, nil
}
