package faq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/lueurxax/faq-digest/internal/core/domain"
	faqerrors "github.com/lueurxax/faq-digest/internal/core/errors"
	"github.com/lueurxax/faq-digest/internal/core/llm"
	"github.com/lueurxax/faq-digest/internal/platform/observability"
)

// Clusterer partitions questions into intents with one model call.
type Clusterer struct {
	generator llm.Generator
	schema    string
	model     string
	logger    *zerolog.Logger
}

// NewClusterer creates a clusterer. model may be empty to use the task default.
func NewClusterer(generator llm.Generator, model string, logger *zerolog.Logger) (*Clusterer, error) {
	schema, err := clusterElementSchema()
	if err != nil {
		return nil, err
	}

	return &Clusterer{
		generator: generator,
		schema:    schema,
		model:     model,
		logger:    nopIfNil(logger),
	}, nil
}

// Cluster returns a partition of raw sorted by count descending. Every index
// of raw is a member of exactly one cluster and counts sum to len(raw).
func (c *Clusterer) Cluster(ctx context.Context, raw []domain.RawQuestion) ([]domain.ClusterResult, error) {
	if len(raw) == 0 {
		return []domain.ClusterResult{}, nil
	}

	resp, err := c.generator.Generate(ctx, llm.Request{
		Task:               llm.TaskTypeCluster,
		SystemInstructions: buildClusterInstructions(len(raw), c.schema),
		UserContent:        buildClusterContent(raw),
		Temperature:        clusterTemperature,
		MaxOutputTokens:    clusterMaxOutputTokens,
		JSONResponse:       true,
		Model:              c.model,
	})
	if err != nil {
		return nil, asUpstreamError(err)
	}

	elements, dropped, err := parseClusterResponse(resp.Text)
	if err != nil {
		c.logger.Debug().Str("response", truncateRunes(resp.Text, 500)).Msg("unparseable cluster response")
		return nil, err
	}

	clusters, anomalies := RepairPartition(elements, raw)
	if dropped > 0 {
		anomalies[AnomalyDroppedElement] += dropped
	}

	c.reportAnomalies(anomalies, len(raw))

	return clusters, nil
}

func (c *Clusterer) reportAnomalies(anomalies map[string]int, n int) {
	if len(anomalies) == 0 {
		return
	}

	event := c.logger.Warn().Int("questions", n)

	for kind, count := range anomalies {
		observability.FAQPartitionAnomalies.WithLabelValues(kind).Add(float64(count))
		event = event.Int(kind, count)
	}

	event.Msg("repaired cluster partition")
}

// parseClusterResponse extracts the first JSON array from text and keeps its
// well-formed elements. dropped counts the elements that were discarded.
func parseClusterResponse(text string) ([]clusterElement, int, error) {
	body, ok := extractJSONArray(text)
	if !ok {
		return nil, 0, fmt.Errorf("%w: no JSON array in model response", faqerrors.ErrResponseFormat)
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil, 0, fmt.Errorf("%w: decode cluster array: %w", faqerrors.ErrResponseFormat, err)
	}

	elements := make([]clusterElement, 0, len(items))
	dropped := 0

	for _, item := range items {
		el, ok := parseClusterElement(item)
		if !ok {
			dropped++
			continue
		}

		elements = append(elements, el)
	}

	return elements, dropped, nil
}

// parseClusterElement accepts an object with a non-empty string question,
// an integer count and an integer array of members. Anything else is rejected.
func parseClusterElement(item json.RawMessage) (clusterElement, bool) {
	var obj map[string]any
	if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
		return clusterElement{}, false
	}

	question, ok := obj["question"].(string)
	if !ok || strings.TrimSpace(question) == "" {
		return clusterElement{}, false
	}

	count, ok := asInt(obj["count"])
	if !ok {
		return clusterElement{}, false
	}

	rawMembers, ok := obj["members"].([]any)
	if !ok {
		return clusterElement{}, false
	}

	members := make([]int, 0, len(rawMembers))

	for _, m := range rawMembers {
		idx, ok := asInt(m)
		if !ok {
			return clusterElement{}, false
		}

		members = append(members, idx)
	}

	return clusterElement{Question: question, Count: count, Members: members}, true
}

func asInt(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}

	return int(f), true
}

// extractJSONArray returns the first balanced, valid JSON array in text.
// Brackets inside JSON strings are ignored while scanning.
func extractJSONArray(text string) (string, bool) {
	for start := strings.IndexByte(text, '['); start >= 0; {
		if end, ok := matchingBracket(text, start); ok {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}

		next := strings.IndexByte(text[start+1:], '[')
		if next < 0 {
			break
		}

		start += next + 1
	}

	return "", false
}

func matchingBracket(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}

			continue
		}

		switch ch {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i, ch == ']'
			}
		}
	}

	return 0, false
}

// RepairPartition turns parsed elements into a valid partition of raw.
// Out-of-range and repeated indices are dropped (first occurrence wins),
// clusters left without members are removed, counts are recomputed,
// questions are clipped, and every index no cluster claimed becomes a
// singleton cluster named after its own question. The result is sorted by
// count descending, ties keeping model order.
func RepairPartition(elements []clusterElement, raw []domain.RawQuestion) ([]domain.ClusterResult, map[string]int) {
	n := len(raw)
	anomalies := make(map[string]int)
	claimed := make([]bool, n)
	clusters := make([]domain.ClusterResult, 0, len(elements))

	for _, el := range elements {
		members := make([]int, 0, len(el.Members))

		for _, idx := range el.Members {
			switch {
			case idx < 0 || idx >= n:
				anomalies[AnomalyOutOfRange]++
			case claimed[idx]:
				anomalies[AnomalyDuplicateIndex]++
			default:
				claimed[idx] = true
				members = append(members, idx)
			}
		}

		if len(members) == 0 {
			anomalies[AnomalyEmptyCluster]++
			continue
		}

		if el.Count != len(members) {
			anomalies[AnomalyCountMismatch]++
		}

		question, clipped := clipQuestion(el.Question)
		if clipped {
			anomalies[AnomalyQuestionClipped]++
		}

		slices.Sort(members)

		clusters = append(clusters, domain.ClusterResult{
			CanonicalQuestion: question,
			Count:             len(members),
			Members:           members,
		})
	}

	for idx, ok := range claimed {
		if ok {
			continue
		}

		anomalies[AnomalyUncoveredIndex]++

		question, _ := clipQuestion(raw[idx].Question)
		clusters = append(clusters, domain.ClusterResult{
			CanonicalQuestion: question,
			Count:             1,
			Members:           []int{idx},
		})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Count > clusters[j].Count
	})

	return clusters, anomalies
}

func clipQuestion(q string) (string, bool) {
	q = strings.Join(strings.Fields(q), " ")
	if utf8.RuneCountInString(q) <= MaxCanonicalQuestionRunes {
		return q, false
	}

	return truncateRunes(q, MaxCanonicalQuestionRunes), true
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := []rune(s)

	return string(runes[:limit])
}

// asUpstreamError makes sure a generator failure carries ErrUpstreamModel.
func asUpstreamError(err error) error {
	if errors.Is(err, faqerrors.ErrUpstreamModel) {
		return err
	}

	return fmt.Errorf("%w: %w", faqerrors.ErrUpstreamModel, err)
}
