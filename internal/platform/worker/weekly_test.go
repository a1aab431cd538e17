package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type everySchedule time.Duration

func (s everySchedule) Next(after time.Time) time.Time {
	return after.Add(time.Duration(s))
}

func TestCronLoop_FiresUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32

	done := make(chan error, 1)

	go func() {
		done <- CronLoop(ctx, CronConfig{
			Name:     "test",
			Schedule: everySchedule(5 * time.Millisecond),
			Run: func(context.Context) error {
				if runs.Add(1) == 3 {
					cancel()
				}

				return nil
			},
		})
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cron loop did not stop")
	}

	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestCronLoop_SlowRunDoesNotBlockNextFire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})

	var (
		started atomic.Int32
		once    sync.Once
	)

	done := make(chan error, 1)

	go func() {
		done <- CronLoop(ctx, CronConfig{
			Name:     "slow",
			Schedule: everySchedule(5 * time.Millisecond),
			Run: func(context.Context) error {
				if started.Add(1) >= 2 {
					once.Do(func() { close(release) })
				}

				<-release

				return nil
			},
		})
	}()

	select {
	case <-release:
	case <-time.After(2 * time.Second):
		t.Fatal("second fire never started while the first was running")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestCronLoop_ErrorsAndPanicsDoNotStopLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	boom := errors.New("boom")

	var (
		runs   atomic.Int32
		errsMu sync.Mutex
		errs   []error
	)

	done := make(chan error, 1)

	go func() {
		done <- CronLoop(ctx, CronConfig{
			Name:     "flaky",
			Schedule: everySchedule(5 * time.Millisecond),
			Run: func(context.Context) error {
				switch runs.Add(1) {
				case 1:
					panic("first run")
				case 2:
					return boom
				default:
					cancel()
					return nil
				}
			},
			OnError: func(err error) {
				errsMu.Lock()
				defer errsMu.Unlock()

				errs = append(errs, err)
			},
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cron loop did not stop")
	}

	errsMu.Lock()
	defer errsMu.Unlock()

	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[0], boom)
}

func TestCronLoop_ReportsNextFire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var first atomic.Value

	err := CronLoop(ctx, CronConfig{
		Name:     "next",
		Schedule: everySchedule(time.Hour),
		Run:      func(context.Context) error { return nil },
		OnFire: func(next time.Time) {
			first.Store(next)
			cancel()
		},
	})

	require.ErrorIs(t, err, context.Canceled)

	next, ok := first.Load().(time.Time)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Hour), next, time.Minute)
}

func TestWait(t *testing.T) {
	require.NoError(t, Wait(context.Background(), 0))
	require.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
}
