package device

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/types"
)

// Keepalive defaults for WSDialer.
const (
	DefaultPingInterval = 30 * time.Second
	DefaultPingTimeout  = 5 * time.Second
)

// ErrKeepalive ends a live capture whose peer stopped answering pings.
var ErrKeepalive = errors.New("device keepalive failed")

// WSDialer connects to a device relay that streams live punches over a
// websocket at ws://addr:port/Path. During LiveCapture the connection is
// pinged every PingInterval; a pong not received within PingTimeout ends
// the capture so a half-open link is noticed.
type WSDialer struct {
	Path         string         // defaults to "/live"
	Location     *time.Location // zone of device wall-clock times; defaults to Local
	PingInterval time.Duration  // defaults to DefaultPingInterval
	PingTimeout  time.Duration  // defaults to DefaultPingTimeout
}

func (d WSDialer) Connect(ctx context.Context, addr string, port int, timeout time.Duration) (Conn, error) {
	path := d.Path
	if path == "" {
		path = "/live"
	}
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	url := "ws://" + net.JoinHostPort(addr, strconv.Itoa(port)) + path
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	c.SetReadLimit(maxFrame)

	conn := &wsConn{
		c:            c,
		loc:          loc,
		pingInterval: d.PingInterval,
		pingTimeout:  d.PingTimeout,
	}
	if conn.pingInterval <= 0 {
		conn.pingInterval = DefaultPingInterval
	}
	if conn.pingTimeout <= 0 {
		conn.pingTimeout = DefaultPingTimeout
	}
	return conn, nil
}

type wsConn struct {
	c            *websocket.Conn
	loc          *time.Location
	pingInterval time.Duration
	pingTimeout  time.Duration
	closed       atomic.Bool
}

// keepalive pings until ctx ends. A failed ping cancels the capture with
// ErrKeepalive as the cause.
func (w *wsConn) keepalive(ctx context.Context, cancel context.CancelCauseFunc) {
	t := time.NewTicker(w.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		pingCtx, done := context.WithTimeout(ctx, w.pingTimeout)
		err := w.c.Ping(pingCtx)
		done()
		if err != nil {
			if ctx.Err() == nil {
				cancel(fmt.Errorf("%w: %v", ErrKeepalive, err))
			}
			return
		}
	}
}

func (w *wsConn) LiveCapture(ctx context.Context) iter.Seq2[*types.Punch, error] {
	return func(yield func(*types.Punch, error) bool) {
		if w.closed.Load() {
			yield(nil, ErrClosed)
			return
		}

		readCtx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)
		go w.keepalive(readCtx, cancel)

		for {
			typ, data, err := w.c.Read(readCtx)
			if err != nil {
				switch cause := context.Cause(readCtx); {
				case w.closed.Load():
					err = ErrClosed
				case errors.Is(cause, ErrKeepalive):
					err = cause
				}
				yield(nil, fmt.Errorf("live capture read: %w", err))
				return
			}

			var p *types.Punch
			switch typ {
			case websocket.MessageBinary:
				p, err = decodeProto(data, w.loc)
			default:
				p, err = decodeJSON(data, w.loc)
			}
			if err != nil {
				// ErrBadFrame: report and keep reading.
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

func (w *wsConn) Disconnect() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	return w.c.Close(websocket.StatusNormalClosure, "")
}
