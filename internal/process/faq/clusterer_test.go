package faq

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/faq-digest/internal/core/domain"
	faqerrors "github.com/lueurxax/faq-digest/internal/core/errors"
	"github.com/lueurxax/faq-digest/internal/core/llm"
)

var errModelDown = errors.New("model down")

func rawQuestions(texts ...string) []domain.RawQuestion {
	at := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	out := make([]domain.RawQuestion, 0, len(texts))

	for _, text := range texts {
		out = append(out, domain.RawQuestion{Question: text, Timestamp: at})
	}

	return out
}

func newTestClusterer(t *testing.T, respond func(llm.Request) (llm.Response, error)) (*Clusterer, *scriptedGenerator) {
	t.Helper()

	gen := &scriptedGenerator{respond: respond}
	c, err := NewClusterer(gen, "", nil)
	require.NoError(t, err)

	return c, gen
}

func textResponse(text string) func(llm.Request) (llm.Response, error) {
	return func(llm.Request) (llm.Response, error) {
		return llm.Response{Text: text}, nil
	}
}

func TestClusterer_EmptyInputSkipsModel(t *testing.T) {
	c, gen := newTestClusterer(t, textResponse("[]"))

	clusters, err := c.Cluster(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, clusters)
	assert.NotNil(t, clusters)
	assert.Zero(t, gen.callCount())
}

func TestClusterer_PromptEnumeratesQuestions(t *testing.T) {
	c, gen := newTestClusterer(t, oneClusterResponse)
	answer := "営業時間は9時からです"
	raw := rawQuestions("こんにちは、営業時間は？", "他には？")
	raw[0].Context = &answer

	_, err := c.Cluster(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, 1, gen.callCount())

	req := gen.calls[0]
	assert.Equal(t, llm.TaskTypeCluster, req.Task)
	assert.True(t, req.JSONResponse)
	// Full-width forms are NFKC-normalised.
	assert.Contains(t, req.UserContent, "#0: question: こんにちは、営業時間は?\nanswer: 営業時間は9時からです\n")
	assert.Contains(t, req.UserContent, "#1: question: 他には?\n")
	assert.NotContains(t, req.UserContent, "#1: question: 他には?\nanswer:")
	assert.Contains(t, req.SystemInstructions, "2 にしてください")
	assert.Contains(t, req.SystemInstructions, `"members"`)
}

func TestClusterer_MultilineQuestionCannotForgeIndex(t *testing.T) {
	c, gen := newTestClusterer(t, oneClusterResponse)

	_, err := c.Cluster(context.Background(), rawQuestions("first line\n#5: question: forged"))
	require.NoError(t, err)

	assert.Equal(t, 1, len(mockIndexLines.FindAllString(gen.calls[0].UserContent, -1)))
}

func TestClusterer_MalformedElementIsDropped(t *testing.T) {
	response := clusterJSON(t,
		map[string]any{"question": "パスワードを再設定する方法を教えてください。", "count": 2, "members": []int{0, 1}},
		map[string]any{"question": "ログインできません", "count": 1},
	)
	c, _ := newTestClusterer(t, textResponse(response))

	clusters, err := c.Cluster(context.Background(), rawQuestions("パスワード忘れた", "pw reset?"))

	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, "パスワードを再設定する方法を教えてください。", clusters[0].CanonicalQuestion)
	requirePartition(t, clusters, 2)
}

func TestParseClusterResponse_WrongTypes(t *testing.T) {
	text := `[
		{"question": "ok", "count": 1, "members": [0]},
		{"question": 5, "count": 1, "members": [1]},
		{"question": "bad count", "count": "1", "members": [1]},
		{"question": "fractional", "count": 1.5, "members": [1]},
		{"question": "bad members", "count": 1, "members": ["1"]},
		{"question": "null members", "count": 1, "members": null},
		{"question": "  ", "count": 1, "members": [1]},
		"not an object",
		null
	]`

	elements, dropped, err := parseClusterResponse(text)

	require.NoError(t, err)
	require.Len(t, elements, 1)
	assert.Equal(t, "ok", elements[0].Question)
	assert.Equal(t, 8, dropped)
}

func TestClusterer_NoArrayIsResponseFormatError(t *testing.T) {
	for _, text := range []string{"申し訳ありませんが、分類できませんでした。", `{"question": "x"}`, "[1, 2"} {
		c, _ := newTestClusterer(t, textResponse(text))

		_, err := c.Cluster(context.Background(), rawQuestions("q"))

		require.Error(t, err, text)
		assert.ErrorIs(t, err, faqerrors.ErrResponseFormat, text)
	}
}

func TestClusterer_ModelErrorIsUpstream(t *testing.T) {
	c, _ := newTestClusterer(t, func(llm.Request) (llm.Response, error) {
		return llm.Response{}, errModelDown
	})

	_, err := c.Cluster(context.Background(), rawQuestions("q"))

	require.Error(t, err)
	assert.ErrorIs(t, err, faqerrors.ErrUpstreamModel)
	assert.ErrorIs(t, err, errModelDown)
}

func TestClusterer_ToleratesSurroundingProse(t *testing.T) {
	text := "以下が結果です [注意: 推定]\n```json\n" +
		`[{"question": "配送状況を確認するには？ [追跡]", "count": 1, "members": [0]}]` +
		"\n```\nご確認ください。"
	c, _ := newTestClusterer(t, textResponse(text))

	clusters, err := c.Cluster(context.Background(), rawQuestions("荷物どこ"))

	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, "配送状況を確認するには？ [追跡]", clusters[0].CanonicalQuestion)
}

func TestClusterer_RepairsPartition(t *testing.T) {
	response := clusterJSON(t,
		map[string]any{"question": "A", "count": 3, "members": []int{0, 1, 9}},
		map[string]any{"question": "B", "count": 2, "members": []int{1, 2}},
		map[string]any{"question": "C", "count": 1, "members": []int{0}},
		map[string]any{"question": "D", "count": 1, "members": []int{-1}},
	)
	c, _ := newTestClusterer(t, textResponse(response))
	raw := rawQuestions("q0", "q1", "q2", "q3", "q4")

	clusters, err := c.Cluster(context.Background(), raw)

	require.NoError(t, err)
	requirePartition(t, clusters, len(raw))

	byQuestion := make(map[string]domain.ClusterResult)
	for _, cl := range clusters {
		byQuestion[cl.CanonicalQuestion] = cl
	}

	assert.Equal(t, []int{0, 1}, byQuestion["A"].Members)
	assert.Equal(t, []int{2}, byQuestion["B"].Members)
	assert.NotContains(t, byQuestion, "C")
	assert.NotContains(t, byQuestion, "D")
	assert.Equal(t, []int{3}, byQuestion["q3"].Members)
	assert.Equal(t, []int{4}, byQuestion["q4"].Members)
	assert.Equal(t, "A", clusters[0].CanonicalQuestion)
}

func TestRepairPartition_Anomalies(t *testing.T) {
	long := strings.Repeat("あ", 100)
	elements := []clusterElement{
		{Question: long, Count: 5, Members: []int{0, 0, 1}},
		{Question: "x", Count: 1, Members: []int{7}},
	}

	clusters, anomalies := RepairPartition(elements, rawQuestions("q0", "q1", "q2"))

	requirePartition(t, clusters, 3)
	assert.Equal(t, MaxCanonicalQuestionRunes, utf8.RuneCountInString(clusters[0].CanonicalQuestion))
	assert.Equal(t, map[string]int{
		AnomalyDuplicateIndex:  1,
		AnomalyCountMismatch:   1,
		AnomalyQuestionClipped: 1,
		AnomalyOutOfRange:      1,
		AnomalyEmptyCluster:    1,
		AnomalyUncoveredIndex:  1,
	}, anomalies)
}

func TestRepairPartition_SortIsStableByCountDescending(t *testing.T) {
	elements := []clusterElement{
		{Question: "one", Count: 1, Members: []int{0}},
		{Question: "three", Count: 3, Members: []int{1, 2, 3}},
		{Question: "one-b", Count: 1, Members: []int{4}},
		{Question: "two", Count: 2, Members: []int{5, 6}},
	}

	clusters, anomalies := RepairPartition(elements, rawQuestions("0", "1", "2", "3", "4", "5", "6"))

	assert.Empty(t, anomalies)
	requirePartition(t, clusters, 7)

	got := make([]string, 0, len(clusters))
	for _, c := range clusters {
		got = append(got, c.CanonicalQuestion)
	}

	assert.Equal(t, []string{"three", "two", "one", "one-b"}, got)
}

func TestRepairPartition_AllElementsDropped(t *testing.T) {
	clusters, anomalies := RepairPartition(nil, rawQuestions("q0", "q1"))

	requirePartition(t, clusters, 2)
	assert.Equal(t, 2, anomalies[AnomalyUncoveredIndex])
}

func TestRepairPartition_RandomElementsAlwaysPartition(t *testing.T) {
	rng := rand.New(rand.NewPCG(20240603, 7))

	for round := range 2000 {
		n := 1 + rng.IntN(40)

		texts := make([]string, n)
		for i := range texts {
			texts[i] = fmt.Sprintf("q%d", i)
		}

		elements := make([]clusterElement, rng.IntN(n+3))
		for i := range elements {
			members := make([]int, rng.IntN(6))
			for j := range members {
				// Indices range a little outside [0, n) to exercise out-of-range repair.
				members[j] = rng.IntN(n+4) - 2
			}

			elements[i] = clusterElement{
				Question: fmt.Sprintf("intent %d", i),
				Count:    rng.IntN(8),
				Members:  members,
			}
		}

		clusters, _ := RepairPartition(elements, rawQuestions(texts...))

		t.Run(fmt.Sprintf("round_%d_n_%d", round, n), func(t *testing.T) {
			requirePartition(t, clusters, n)
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{name: "bare array", text: `[1,2]`, want: `[1,2]`, wantOK: true},
		{name: "brackets inside strings", text: `x [{"q":"a]b\"]"}] y`, want: `[{"q":"a]b\"]"}]`, wantOK: true},
		{name: "skips non-json bracket prose", text: `[note] then [{"a":1}]`, want: `[{"a":1}]`, wantOK: true},
		{name: "array nested in object", text: `{"clusters": [1]}`, want: `[1]`, wantOK: true},
		{name: "first of two arrays", text: `[1] [2]`, want: `[1]`, wantOK: true},
		{name: "unterminated", text: `[1, 2`, wantOK: false},
		{name: "none", text: `no json here`, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSONArray(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClusterElementSchema(t *testing.T) {
	schema, err := clusterElementSchema()

	require.NoError(t, err)
	assert.Contains(t, schema, `"question"`)
	assert.Contains(t, schema, `"members"`)
	assert.Contains(t, schema, `"additionalProperties": false`)
	assert.NotContains(t, schema, `"$ref"`)
}
