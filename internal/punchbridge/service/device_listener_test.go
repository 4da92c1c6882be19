package service_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/punchbridge/internal/device"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/service"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/store/memory"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/types"
)

// event is one item a scriptedConn yields.
type event struct {
	punch *types.Punch
	err   error
}

// scriptedConn yields its events and then either ends with errLost or, when
// hold is set, blocks until the context is cancelled.
type scriptedConn struct {
	events       []event
	hold         bool
	disconnected atomic.Bool
}

var errLost = errors.New("connection reset")

func (c *scriptedConn) LiveCapture(ctx context.Context) iter.Seq2[*types.Punch, error] {
	return func(yield func(*types.Punch, error) bool) {
		for _, e := range c.events {
			if !yield(e.punch, e.err) {
				return
			}
		}
		if c.hold {
			<-ctx.Done()
			yield(nil, ctx.Err())
			return
		}
		yield(nil, errLost)
	}
}

func (c *scriptedConn) Disconnect() error {
	c.disconnected.Store(true)
	return nil
}

// scriptedDialer returns its conns in order; nil entries fail the dial.
type scriptedDialer struct {
	mu    sync.Mutex
	conns []*scriptedConn
	dials int
}

func (d *scriptedDialer) Connect(_ context.Context, _ string, _ int, _ time.Duration) (device.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.dials
	d.dials++
	if i >= len(d.conns) || d.conns[i] == nil {
		return nil, fmt.Errorf("dial #%d: unreachable", i)
	}
	return d.conns[i], nil
}

func (d *scriptedDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func punch(userID string, ts time.Time, status int) event {
	return event{punch: &types.Punch{RawDeviceUserID: userID, CapturedAt: ts, StatusCode: status}}
}

func startListener(t *testing.T, d device.Dialer, q *memory.Queue, status service.StatusReporter) *service.DeviceListener {
	t.Helper()
	l := service.NewDeviceListener(d, q, service.ListenerConfig{
		Addr:           "192.0.2.10",
		Port:           4370,
		ReconnectDelay: 10 * time.Millisecond,
	}, silentLogger(), status)
	l.Start(context.Background())
	t.Cleanup(l.Stop)
	return l
}

func TestDeviceListener_AppendsPunchesInArrivalOrder(t *testing.T) {
	ts := time.Date(2024, 1, 1, 18, 30, 0, 0, time.UTC)
	conn := &scriptedConn{hold: true, events: []event{
		punch("7", ts, 0),
		{}, // keepalive
		punch("CFM-0022", ts.Add(time.Minute), 1),
	}}
	q := memory.NewQueue()
	status := newRecordingStatus()
	startListener(t, &scriptedDialer{conns: []*scriptedConn{conn}}, q, status)

	require.Eventually(t, func() bool { return len(q.Records()) == 2 }, time.Second, 5*time.Millisecond)

	recs := q.Records()
	assert.Equal(t, "7", recs[0].RawDeviceUserID)
	assert.Equal(t, "2024-01-01 18:30:00", recs[0].CapturedAt)
	assert.Equal(t, "CFM-0022", recs[1].RawDeviceUserID)
	assert.Equal(t, 1, recs[1].StatusCode)

	serving, _ := status.get(service.ComponentDevice)
	assert.True(t, serving)
}

func TestDeviceListener_DiscardsInvalidUserAndBadFrames(t *testing.T) {
	ts := time.Date(2024, 1, 1, 18, 30, 0, 0, time.UTC)
	conn := &scriptedConn{hold: true, events: []event{
		punch("N/A", ts, 0),
		{err: fmt.Errorf("%w: truncated", device.ErrBadFrame)},
		punch("8", ts, 0),
	}}
	q := memory.NewQueue()
	startListener(t, &scriptedDialer{conns: []*scriptedConn{conn}}, q, nil)

	require.Eventually(t, func() bool { return len(q.Records()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "8", q.Records()[0].RawDeviceUserID)
}

func TestDeviceListener_ReconnectsAfterFailure(t *testing.T) {
	ts := time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC)
	first := &scriptedConn{events: []event{punch("1", ts, 0)}}
	second := &scriptedConn{hold: true, events: []event{punch("2", ts, 1)}}
	d := &scriptedDialer{conns: []*scriptedConn{first, nil, second}}
	q := memory.NewQueue()
	startListener(t, d, q, nil)

	require.Eventually(t, func() bool { return len(q.Records()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, d.dialCount())
	assert.True(t, first.disconnected.Load())
}

func TestDeviceListener_AppendFailureDropsPunchOnly(t *testing.T) {
	ts := time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC)
	conn := &scriptedConn{hold: true, events: []event{punch("1", ts, 0)}}
	q := memory.NewQueue()
	q.FailAppend = errors.New("disk full")
	status := newRecordingStatus()
	l := startListener(t, &scriptedDialer{conns: []*scriptedConn{conn}}, q, status)

	require.Eventually(t, func() bool {
		serving, _ := status.get(service.ComponentDevice)
		return serving
	}, time.Second, 5*time.Millisecond)

	l.Stop()
	assert.Empty(t, q.Records())
	assert.True(t, conn.disconnected.Load())
}

func TestDeviceListener_StopMarksDeviceNotServing(t *testing.T) {
	conn := &scriptedConn{hold: true}
	status := newRecordingStatus()
	l := startListener(t, &scriptedDialer{conns: []*scriptedConn{conn}}, memory.NewQueue(), status)

	require.Eventually(t, func() bool {
		serving, _ := status.get(service.ComponentDevice)
		return serving
	}, time.Second, 5*time.Millisecond)

	l.Stop()
	serving, _ := status.get(service.ComponentDevice)
	assert.False(t, serving)
}

func TestDeviceListener_StartAfterStopIsNoop(t *testing.T) {
	d := &scriptedDialer{}
	l := service.NewDeviceListener(d, memory.NewQueue(), service.ListenerConfig{
		ReconnectDelay: 10 * time.Millisecond,
	}, silentLogger(), nil)

	l.Stop()
	l.Start(context.Background())
	l.Stop()
	assert.Zero(t, d.dialCount())
}
