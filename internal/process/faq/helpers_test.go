package faq

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lueurxax/faq-digest/internal/core/domain"
	"github.com/lueurxax/faq-digest/internal/core/llm"
)

var errStoreDown = errors.New("store down")

var mockIndexLines = regexp.MustCompile(`(?m)^#\d+: question: `)

var testNow = time.Date(2024, 6, 12, 1, 0, 0, 0, time.UTC)

// fakeMessageStore serves window and latest reads from fixed slices.
type fakeMessageStore struct {
	window      []domain.Message // ascending
	latest      []domain.Message // descending
	err         error
	latestLimit int
	latestCalls int
	windowCalls int
}

func (s *fakeMessageStore) CountMessagesInWindow(_ context.Context, _ domain.Window) (int, error) {
	if s.err != nil {
		return 0, s.err
	}

	return len(s.window), nil
}

func (s *fakeMessageStore) GetMessagesInWindow(_ context.Context, _ domain.Window) ([]domain.Message, error) {
	s.windowCalls++
	return s.window, s.err
}

func (s *fakeMessageStore) GetLatestMessages(_ context.Context, limit int) ([]domain.Message, error) {
	s.latestCalls++
	s.latestLimit = limit

	if len(s.latest) > limit {
		return s.latest[:limit], s.err
	}

	return s.latest, s.err
}

// fakeSnapshotStore records saved snapshots.
type fakeSnapshotStore struct {
	mu        sync.Mutex
	err       error
	snapshots []domain.Snapshot
	items     map[int64][]domain.SnapshotItem
}

func (s *fakeSnapshotStore) SaveSnapshot(_ context.Context, snapshot domain.Snapshot, items []domain.SnapshotItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return 0, s.err
	}

	id := int64(len(s.snapshots) + 1)
	snapshot.ID = id
	s.snapshots = append(s.snapshots, snapshot)

	if s.items == nil {
		s.items = make(map[int64][]domain.SnapshotItem)
	}

	s.items[id] = append([]domain.SnapshotItem(nil), items...)

	return id, nil
}

func (s *fakeSnapshotStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.snapshots)
}

// scriptedGenerator answers each request through respond and records it.
type scriptedGenerator struct {
	mu      sync.Mutex
	calls   []llm.Request
	respond func(req llm.Request) (llm.Response, error)
}

func (g *scriptedGenerator) Generate(_ context.Context, req llm.Request) (llm.Response, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()

	return g.respond(req)
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.calls)
}

// fixedResolver resolves every run against the same clock reading.
type fixedResolver struct {
	now time.Time
}

func (r fixedResolver) At(now time.Time) domain.Window {
	return domain.Window{From: now.AddDate(0, 0, -9), To: now.AddDate(0, 0, -2)}
}

func (r fixedResolver) LastWeek() domain.Window {
	return r.At(r.now)
}

func humanMsg(content string, at time.Time) domain.Message {
	return domain.Message{Content: content, Timestamp: at}
}

func botMsg(content string, at time.Time) domain.Message {
	return domain.Message{Content: content, Timestamp: at, IsBot: true}
}

// conversation builds n human messages, each answered by the bot, ascending.
func conversation(n int, start time.Time) []domain.Message {
	msgs := make([]domain.Message, 0, 2*n)

	for i := 0; i < n; i++ {
		at := start.Add(time.Duration(i) * time.Minute)
		msgs = append(msgs, humanMsg("質問です", at), botMsg("回答です", at.Add(time.Second)))
	}

	return msgs
}

func humans(n int, start time.Time) []domain.Message {
	msgs := make([]domain.Message, 0, n)

	for i := 0; i < n; i++ {
		msgs = append(msgs, humanMsg("質問", start.Add(time.Duration(i)*time.Minute)))
	}

	return msgs
}

func clusterJSON(t *testing.T, clusters ...map[string]any) string {
	t.Helper()

	body, err := json.Marshal(clusters)
	require.NoError(t, err)

	return string(body)
}

// oneClusterResponse puts every question into a single cluster.
func oneClusterResponse(req llm.Request) (llm.Response, error) {
	n := len(mockIndexLines.FindAllString(req.UserContent, -1))
	members := make([]int, n)

	for i := range members {
		members[i] = i
	}

	body, _ := json.Marshal([]map[string]any{{"question": "全体的な問い合わせについて", "count": n, "members": members}})

	return llm.Response{Text: string(body)}, nil
}

// requirePartition checks that clusters partition 0..n-1, counts match
// members, counts sum to n and the list is sorted by count descending.
func requirePartition(t *testing.T, clusters []domain.ClusterResult, n int) {
	t.Helper()

	seen := make(map[int]bool, n)
	sum := 0

	for i, c := range clusters {
		require.Equal(t, len(c.Members), c.Count, "count must equal members length")
		require.GreaterOrEqual(t, c.Count, 1)
		require.NotEmpty(t, c.CanonicalQuestion)

		if i > 0 {
			require.GreaterOrEqual(t, clusters[i-1].Count, c.Count, "clusters must be sorted by count descending")
		}

		for _, m := range c.Members {
			require.True(t, m >= 0 && m < n, "member %d out of range", m)
			require.False(t, seen[m], "member %d appears twice", m)
			seen[m] = true
		}

		sum += c.Count
	}

	require.Len(t, seen, n)
	require.Equal(t, n, sum)
}
