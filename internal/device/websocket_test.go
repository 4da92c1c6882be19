package device_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/punchbridge/internal/device"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/types"
)

// newRelay starts a websocket server on /live that sends frames, then closes.
func newRelay(t *testing.T, frames func(ctx context.Context, c *websocket.Conn)) (string, int) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		frames(r.Context(), c)
		_ = c.Close(websocket.StatusNormalClosure, "")
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	host, portStr, err := net.SplitHostPort(ts.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestWSDialer_LiveCapture_MixedFrames(t *testing.T) {
	at := time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)
	host, port := newRelay(t, func(ctx context.Context, c *websocket.Conn) {
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"user_id":"7","timestamp":"2024-01-01 08:30:00","status":0,"punch":1}`))
		_ = c.Write(ctx, websocket.MessageText, []byte(`null`))
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"user_id":"8","timestamp":"garbage"}`))
		_ = c.Write(ctx, websocket.MessageBinary, device.EncodeProto(types.Punch{
			RawDeviceUserID: "9", CapturedAt: at, StatusCode: 1, PunchType: 2,
		}))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := device.WSDialer{Location: time.UTC}.Connect(ctx, host, port, time.Second)
	require.NoError(t, err)
	defer conn.Disconnect()

	var (
		punches  []*types.Punch
		bad      int
		finalErr error
	)
	for p, err := range conn.LiveCapture(ctx) {
		if err != nil {
			if errors.Is(err, device.ErrBadFrame) {
				bad++
				continue
			}
			finalErr = err
			break
		}
		punches = append(punches, p)
	}

	require.Error(t, finalErr, "sequence ends when the relay closes")
	assert.Equal(t, 1, bad)
	require.Len(t, punches, 3)
	assert.Equal(t, "7", punches[0].RawDeviceUserID)
	assert.Nil(t, punches[1], "null frame is a keepalive")
	assert.Equal(t, "9", punches[2].RawDeviceUserID)
	assert.Equal(t, at, punches[2].CapturedAt)
}

func TestWSDialer_Connect_Refused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	_, err = device.WSDialer{}.Connect(context.Background(), "127.0.0.1", port, 500*time.Millisecond)
	assert.Error(t, err)
}

func TestWSConn_LiveCaptureAfterDisconnect(t *testing.T) {
	host, port := newRelay(t, func(ctx context.Context, c *websocket.Conn) {
		_, _, _ = c.Read(ctx) // returns once the client closes
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := device.WSDialer{}.Connect(ctx, host, port, time.Second)
	require.NoError(t, err)
	_ = conn.Disconnect()
	assert.NoError(t, conn.Disconnect(), "second Disconnect is a no-op")

	for p, err := range conn.LiveCapture(ctx) {
		assert.Nil(t, p)
		assert.ErrorIs(t, err, device.ErrClosed)
		break
	}
}

func TestWSConn_LiveCapture_EndsWhenPeerStopsAnswering(t *testing.T) {
	// The relay never reads, so pings go unanswered, like a peer that lost
	// power with the TCP session still open.
	release := make(chan struct{})
	host, port := newRelay(t, func(ctx context.Context, c *websocket.Conn) {
		select {
		case <-release:
		case <-ctx.Done():
		}
	})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := device.WSDialer{
		PingInterval: 20 * time.Millisecond,
		PingTimeout:  50 * time.Millisecond,
	}.Connect(ctx, host, port, time.Second)
	require.NoError(t, err)
	defer conn.Disconnect()

	start := time.Now()
	var last error
	for p, err := range conn.LiveCapture(ctx) {
		assert.Nil(t, p)
		last = err
	}

	require.Error(t, last)
	assert.ErrorIs(t, last, device.ErrKeepalive)
	assert.Less(t, time.Since(start), 2*time.Second)
}
