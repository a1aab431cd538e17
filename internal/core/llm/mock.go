package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MockNarrative is the fixed narrative returned by the mock provider.
const MockNarrative = "今週は特定の話題に質問が集中することなく、幅広いテーマについて問い合わせが寄せられました。"

// mockQuestionLine matches the indexed question lines of the cluster prompt.
var mockQuestionLine = regexp.MustCompile(`(?m)^#(\d+): question: (.*)$`)

// mockProvider answers without network access. Every indexed question
// becomes its own cluster, which is always a valid partition.
type mockProvider struct{}

// NewMockProvider creates a new mock LLM provider.
func NewMockProvider() *mockProvider {
	return &mockProvider{}
}

// Name returns the provider identifier.
func (p *mockProvider) Name() ProviderName {
	return ProviderMock
}

// IsAvailable returns true as mock is always available.
func (p *mockProvider) IsAvailable() bool {
	return true
}

// Priority returns the provider priority.
func (p *mockProvider) Priority() int {
	return PriorityMock
}

type mockCluster struct {
	CanonicalQuestion string `json:"question"`
	Count             int    `json:"count"`
	Members           []int  `json:"members"`
}

// Generate implements Provider.
func (p *mockProvider) Generate(_ context.Context, req Request, _ string) (Response, error) {
	if req.Task != TaskTypeCluster {
		return Response{Text: MockNarrative, Provider: ProviderMock, Model: string(ProviderMock)}, nil
	}

	clusters := make([]mockCluster, 0)

	for _, match := range mockQuestionLine.FindAllStringSubmatch(req.UserContent, -1) {
		idx, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}

		clusters = append(clusters, mockCluster{
			CanonicalQuestion: strings.TrimSpace(match[2]),
			Count:             1,
			Members:           []int{idx},
		})
	}

	body, err := json.Marshal(clusters)
	if err != nil {
		return Response{}, fmt.Errorf("mock cluster response: %w", err)
	}

	return Response{Text: string(body), Provider: ProviderMock, Model: string(ProviderMock)}, nil
}

var _ Provider = (*mockProvider)(nil)
