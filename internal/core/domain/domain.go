package domain

import "time"

// Message is one persisted chat message as read from the message store.
type Message struct {
	Content   string
	Timestamp time.Time
	IsBot     bool
}

// Window is a closed time range [From, To] expressed in absolute instants.
type Window struct {
	From time.Time
	To   time.Time
}

// RawQuestion is one user-authored question plus the assistant reply that
// immediately followed it, if any. It lives for a single pipeline run.
type RawQuestion struct {
	Question  string
	Timestamp time.Time
	// Context is nil when no bot reply directly followed the question.
	Context *string
}

// HasContext reports whether an answer context is attached.
func (q RawQuestion) HasContext() bool {
	return q.Context != nil
}

// ClusterResult is one intent cluster produced by the clusterer.
// Members are 0-based indices into the RawQuestion slice that was clustered.
type ClusterResult struct {
	CanonicalQuestion string
	Count             int
	Members           []int
}

// Snapshot is one persisted weekly FAQ summary.
type Snapshot struct {
	ID             int64
	GeneratedAt    time.Time
	TotalQuestions int
	TrendText      string
}

// SnapshotItem is one FAQ entry belonging to a snapshot.
type SnapshotItem struct {
	ID         int64
	SnapshotID int64
	Question   string
	Count      int
}

// SampleSource tells which sampling path produced a run's questions.
type SampleSource string

const (
	SampleSourceWindow   SampleSource = "window"
	SampleSourceFallback SampleSource = "fallback"
)
