package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/service"
)

type countingRefresher struct {
	n atomic.Int32
}

func (c *countingRefresher) Refresh(context.Context) (service.RefreshResult, error) {
	c.n.Add(1)
	return service.RefreshResult{}, nil
}

// fakeTimer hands out channels the test fires by hand and records the
// delays that were requested.
type fakeTimer struct {
	delays chan time.Duration
	fire   chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{delays: make(chan time.Duration, 8), fire: make(chan time.Time)}
}

func (f *fakeTimer) after(d time.Duration) <-chan time.Time {
	f.delays <- d
	return f.fire
}

func TestDirectoryScheduler_Start_RefreshesBeforeReturning(t *testing.T) {
	r := &countingRefresher{}
	timer := newFakeTimer()
	now := func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }

	s := service.NewDirectoryScheduler(r, utcDay(), silentLogger(), service.WithSchedulerClock(now, timer.after))
	s.Start(context.Background())
	defer s.Stop()

	assert.Equal(t, int32(1), r.n.Load())
}

func TestDirectoryScheduler_Loop_WaitsUntilNextBoundary(t *testing.T) {
	r := &countingRefresher{}
	timer := newFakeTimer()
	now := func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }

	s := service.NewDirectoryScheduler(r, utcDay(), silentLogger(), service.WithSchedulerClock(now, timer.after))
	s.Start(context.Background())
	defer s.Stop()

	select {
	case d := <-timer.delays:
		assert.Equal(t, 6*time.Hour, d)
	case <-time.After(time.Second):
		t.Fatal("scheduler never armed its timer")
	}

	timer.fire <- time.Time{}
	require.Eventually(t, func() bool { return r.n.Load() == 2 }, time.Second, 5*time.Millisecond)

	select {
	case <-timer.delays:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not re-arm after refreshing")
	}
}

// hangingRefresher blocks until its context ends, like a stalled remote list.
type hangingRefresher struct {
	sawDeadline atomic.Bool
}

func (h *hangingRefresher) Refresh(ctx context.Context) (service.RefreshResult, error) {
	_, ok := ctx.Deadline()
	h.sawDeadline.Store(ok)
	<-ctx.Done()
	return service.RefreshResult{}, ctx.Err()
}

func TestDirectoryScheduler_Start_ReturnsWhenRefreshHangs(t *testing.T) {
	r := &hangingRefresher{}
	s := service.NewDirectoryScheduler(r, utcDay(), silentLogger(),
		service.WithRefreshTimeout(50*time.Millisecond))

	returned := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Start still blocked on a hung directory fetch")
	}
	assert.True(t, r.sawDeadline.Load())
	s.Stop()
}

func TestDirectoryScheduler_StartAfterStopIsNoop(t *testing.T) {
	r := &countingRefresher{}
	s := service.NewDirectoryScheduler(r, utcDay(), silentLogger())
	s.Stop()
	s.Start(context.Background())
	s.Stop()
	assert.Zero(t, r.n.Load())
}

func TestDirectoryScheduler_StopIsIdempotent(t *testing.T) {
	r := &countingRefresher{}
	s := service.NewDirectoryScheduler(r, utcDay(), silentLogger())
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}

func TestDirectoryScheduler_StopWithoutStart(t *testing.T) {
	s := service.NewDirectoryScheduler(&countingRefresher{}, utcDay(), silentLogger())
	s.Stop()
}
