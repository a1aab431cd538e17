package faq

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/faq-digest/internal/core/domain"
	faqerrors "github.com/lueurxax/faq-digest/internal/core/errors"
	"github.com/lueurxax/faq-digest/internal/core/llm"
	"github.com/lueurxax/faq-digest/internal/platform/observability"
)

var errPublish = errors.New("publish failed")

type testLock struct {
	held     atomic.Bool
	err      error
	released atomic.Int32
}

func (l *testLock) TryAcquire(context.Context) (bool, error) {
	if l.err != nil {
		return false, l.err
	}

	return l.held.CompareAndSwap(false, true), nil
}

func (l *testLock) Release(context.Context) error {
	l.released.Add(1)
	l.held.Store(false)

	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	err       error
	snapshots []domain.Snapshot
}

func (p *recordingPublisher) PublishSnapshotCreated(_ context.Context, snapshot domain.Snapshot, _ []domain.SnapshotItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.snapshots = append(p.snapshots, snapshot)

	return p.err
}

type pipelineFixture struct {
	messages  *fakeMessageStore
	snapshots *fakeSnapshotStore
	generator *scriptedGenerator
	lock      *testLock
	publisher *recordingPublisher
	pipeline  *Pipeline
}

// narrateOrCluster answers cluster requests with one cluster and narrative
// requests with a fixed text.
func narrateOrCluster(req llm.Request) (llm.Response, error) {
	if req.Task == llm.TaskTypeNarrative {
		return llm.Response{Text: "今週の傾向です。"}, nil
	}

	return oneClusterResponse(req)
}

func newPipelineFixture(t *testing.T, window []domain.Message, respond func(llm.Request) (llm.Response, error)) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		messages:  &fakeMessageStore{window: window},
		snapshots: &fakeSnapshotStore{},
		generator: &scriptedGenerator{respond: respond},
		lock:      &testLock{},
		publisher: &recordingPublisher{},
	}

	clusterer, err := NewClusterer(f.generator, "", nil)
	require.NoError(t, err)

	f.pipeline = New(Deps{
		Resolver:  fixedResolver{now: testNow},
		Sampler:   NewSampler(f.messages, 3, 50, nil),
		Clusterer: clusterer,
		Narrator:  NewNarrator(f.generator, 5, "", nil),
		Writer:    NewWriter(f.snapshots, func() time.Time { return testNow }),
		Lock:      f.lock,
		Publisher: f.publisher,
	}, time.Minute, nil)

	return f
}

func TestPipeline_FullRunUpholdsAccounting(t *testing.T) {
	f := newPipelineFixture(t, conversation(4, testNow.AddDate(0, 0, -5)), narrateOrCluster)

	result, err := f.pipeline.Run(context.Background(), RunOptions{})

	require.NoError(t, err)
	require.NotNil(t, result.Snapshot)
	assert.NotEmpty(t, result.CorrelationID)
	assert.Equal(t, domain.SampleSourceWindow, result.Source)
	assert.Equal(t, 4, result.TotalQuestions)
	assert.Equal(t, "今週の傾向です。", result.TrendText)
	assert.Equal(t, 2, f.generator.callCount(), "one cluster call and one narrative call")
	requirePartition(t, result.Clusters, result.TotalQuestions)

	require.Equal(t, 1, f.snapshots.count())

	sum := 0
	for _, item := range f.snapshots.items[result.Snapshot.ID] {
		sum += item.Count
	}

	assert.Equal(t, f.snapshots.snapshots[0].TotalQuestions, sum)
	assert.Len(t, f.publisher.snapshots, 1)
	assert.Equal(t, int32(1), f.lock.released.Load())
}

func TestPipeline_EmptySampleMakesNoCallsOrWrites(t *testing.T) {
	f := newPipelineFixture(t, nil, narrateOrCluster)
	// Fallback sample with only bot messages yields no questions.
	f.messages.latest = []domain.Message{botMsg("welcome", testNow)}

	result, err := f.pipeline.Run(context.Background(), RunOptions{})

	require.NoError(t, err)
	assert.True(t, result.Empty)
	assert.Nil(t, result.Snapshot)
	assert.Zero(t, f.generator.callCount())
	assert.Zero(t, f.snapshots.count())
	assert.Empty(t, f.publisher.snapshots)
}

func TestPipeline_NarratorFailureWritesNothing(t *testing.T) {
	f := newPipelineFixture(t, conversation(3, testNow.AddDate(0, 0, -5)), func(req llm.Request) (llm.Response, error) {
		if req.Task == llm.TaskTypeNarrative {
			return llm.Response{}, errModelDown
		}

		return oneClusterResponse(req)
	})

	_, err := f.pipeline.Run(context.Background(), RunOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, faqerrors.ErrUpstreamModel)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepNarrate, stepErr.Step)
	assert.Zero(t, f.snapshots.count())
	assert.Equal(t, int32(1), f.lock.released.Load())
}

func TestPipeline_ClusterFormatFailure(t *testing.T) {
	f := newPipelineFixture(t, conversation(3, testNow.AddDate(0, 0, -5)), textResponse("no array"))

	_, err := f.pipeline.Run(context.Background(), RunOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, faqerrors.ErrResponseFormat)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepCluster, stepErr.Step)
	assert.Equal(t, 1, f.generator.callCount(), "narrator must not run")
	assert.Zero(t, f.snapshots.count())
}

func TestPipeline_SaveFailure(t *testing.T) {
	f := newPipelineFixture(t, conversation(3, testNow.AddDate(0, 0, -5)), narrateOrCluster)
	f.snapshots.err = errStoreDown

	_, err := f.pipeline.Run(context.Background(), RunOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, faqerrors.ErrPersistence)
	assert.Empty(t, f.publisher.snapshots)
}

func TestPipeline_DryRunSkipsPersistence(t *testing.T) {
	f := newPipelineFixture(t, conversation(3, testNow.AddDate(0, 0, -5)), narrateOrCluster)

	result, err := f.pipeline.Run(context.Background(), RunOptions{DryRun: true})

	require.NoError(t, err)
	assert.NotEmpty(t, result.Clusters)
	assert.NotEmpty(t, result.TrendText)
	assert.Nil(t, result.Snapshot)
	assert.Zero(t, f.snapshots.count())
	assert.Empty(t, f.publisher.snapshots)
}

func TestPipeline_RunAtOverridesClock(t *testing.T) {
	f := newPipelineFixture(t, nil, narrateOrCluster)
	at := time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC)

	result, err := f.pipeline.Run(context.Background(), RunOptions{Now: at, DryRun: true})

	require.NoError(t, err)
	assert.Equal(t, fixedResolver{}.At(at), result.Window)
}

func TestPipeline_PublishFailureDoesNotFailRun(t *testing.T) {
	f := newPipelineFixture(t, conversation(3, testNow.AddDate(0, 0, -5)), narrateOrCluster)
	f.publisher.err = errPublish

	result, err := f.pipeline.Run(context.Background(), RunOptions{})

	require.NoError(t, err)
	require.NotNil(t, result.Snapshot)
	assert.Equal(t, 1, f.snapshots.count())
}

func TestPipeline_SingleFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	var once sync.Once

	f := newPipelineFixture(t, conversation(3, testNow.AddDate(0, 0, -5)), func(req llm.Request) (llm.Response, error) {
		if req.Task == llm.TaskTypeCluster {
			once.Do(func() { close(started) })
			<-release
		}

		return narrateOrCluster(req)
	})

	done := make(chan error, 1)

	go func() {
		_, err := f.pipeline.Run(context.Background(), RunOptions{})
		done <- err
	}()

	<-started
	assert.True(t, f.pipeline.Running())

	_, err := f.pipeline.Run(context.Background(), RunOptions{})
	require.ErrorIs(t, err, faqerrors.ErrRunInProgress)

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, 1, f.snapshots.count(), "overlapping trigger must not create a second snapshot")
	assert.False(t, f.pipeline.Running())
}

func TestPipeline_LockHeldElsewhere(t *testing.T) {
	f := newPipelineFixture(t, conversation(3, testNow.AddDate(0, 0, -5)), narrateOrCluster)
	f.lock.held.Store(true)

	_, err := f.pipeline.Run(context.Background(), RunOptions{})

	require.ErrorIs(t, err, faqerrors.ErrRunInProgress)
	assert.Zero(t, f.generator.callCount())
	assert.Zero(t, f.snapshots.count())
	assert.False(t, f.pipeline.Running())
}

func TestPipeline_LockErrorFailsRun(t *testing.T) {
	f := newPipelineFixture(t, conversation(3, testNow.AddDate(0, 0, -5)), narrateOrCluster)
	f.lock.err = errStoreDown

	var logs bytes.Buffer
	logger := zerolog.New(&logs).Level(zerolog.InfoLevel)
	f.pipeline.logger = &logger

	failuresBefore := testutil.ToFloat64(observability.FAQStepFailures.WithLabelValues(StepLock))

	_, err := f.pipeline.Run(context.Background(), RunOptions{})

	require.ErrorIs(t, err, errStoreDown)
	require.ErrorIs(t, err, faqerrors.ErrPersistence)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepLock, stepErr.Step)
	assert.Zero(t, f.snapshots.count())
	assert.Zero(t, f.generator.callCount())

	assert.Contains(t, logs.String(), `"level":"error"`)
	assert.Contains(t, logs.String(), `"step":"lock"`)
	assert.Contains(t, logs.String(), "store down")
	assert.InDelta(t, failuresBefore+1, testutil.ToFloat64(observability.FAQStepFailures.WithLabelValues(StepLock)), 0)
}
