// Package device is the agent's view of the punch-clock: connect, consume a
// live feed of punches, disconnect.
package device

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/types"
)

// ErrClosed is reported by LiveCapture on a Conn that was disconnected.
var ErrClosed = errors.New("device connection closed")

// Dialer opens one live connection to a device.
type Dialer interface {
	Connect(ctx context.Context, addr string, port int, timeout time.Duration) (Conn, error)
}

// Conn is one device session.
type Conn interface {
	// LiveCapture yields punches until the connection fails. A nil punch
	// with a nil error is a keepalive and carries nothing. Errors wrapping
	// ErrBadFrame concern one frame and the sequence continues; any other
	// error ends it. The sequence cannot be restarted on the same Conn.
	LiveCapture(ctx context.Context) iter.Seq2[*types.Punch, error]

	// Disconnect is best-effort and may be called more than once.
	Disconnect() error
}
