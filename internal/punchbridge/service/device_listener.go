package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/BrandonDHaskell/punchbridge/internal/device"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/store"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/types"
)

type ListenerConfig struct {
	Addr           string
	Port           int
	ConnectTimeout time.Duration // default 5s
	ReconnectDelay time.Duration // default 10s
}

// DeviceListener keeps one live session to the punch clock and appends every
// punch to the queue. Connection faults never escape: it waits
// ReconnectDelay and dials again, forever.
type DeviceListener struct {
	dialer device.Dialer
	queue  store.PunchQueue
	cfg    ListenerConfig
	logger *log.Logger
	status StatusReporter

	run *runner
}

func NewDeviceListener(d device.Dialer, q store.PunchQueue, cfg ListenerConfig, logger *log.Logger, status StatusReporter) *DeviceListener {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 10 * time.Second
	}
	return &DeviceListener{
		dialer: d,
		queue:  q,
		cfg:    cfg,
		logger: logger,
		status: reporterOrNop(status),
		run:    newRunner(),
	}
}

// Start launches the session loop. Start after Stop does nothing.
func (l *DeviceListener) Start(ctx context.Context) {
	ctx, ok := l.run.begin(ctx)
	if !ok {
		return
	}
	l.run.run(ctx, l.loop)
}

// Stop cancels the session and waits for the loop to exit.
func (l *DeviceListener) Stop() {
	l.run.stop()
}

func (l *DeviceListener) loop(ctx context.Context) {
	for {
		l.session(ctx)
		l.status.SetServing(ComponentDevice, false)
		if ctx.Err() != nil {
			return
		}

		l.logger.Printf("device: retrying in %s", l.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.cfg.ReconnectDelay):
		}
	}
}

// session runs one connect/capture cycle and returns when the connection is
// gone.
func (l *DeviceListener) session(ctx context.Context) {
	l.logger.Printf("device: connecting to %s:%d", l.cfg.Addr, l.cfg.Port)
	conn, err := l.dialer.Connect(ctx, l.cfg.Addr, l.cfg.Port, l.cfg.ConnectTimeout)
	if err != nil {
		l.logger.Printf("device: connect failed: %v", err)
		return
	}
	defer func() { _ = conn.Disconnect() }()

	l.status.SetServing(ComponentDevice, true)
	l.logger.Printf("device: connected, listening for live punches")

	for p, err := range conn.LiveCapture(ctx) {
		if err != nil {
			if errors.Is(err, device.ErrBadFrame) {
				l.logger.Printf("device: skipping frame: %v", err)
				continue
			}
			if ctx.Err() == nil {
				l.logger.Printf("device: connection lost: %v", err)
			}
			return
		}
		if p == nil {
			continue
		}
		l.capture(ctx, *p)
	}
}

// capture appends one punch. A storage failure drops this punch so the
// listener can return to the live feed.
func (l *DeviceListener) capture(ctx context.Context, p types.Punch) {
	if err := p.Validate(); err != nil {
		l.logger.Printf("device: discarding punch at %s: %v",
			p.CapturedAt.Format(types.TimestampLayout), err)
		return
	}

	id, err := l.queue.Append(ctx, p)
	if err != nil {
		l.logger.Printf("device: DROPPED punch user=%s at=%s: queue append failed: %v",
			p.RawDeviceUserID, p.CapturedAt.Format(types.TimestampLayout), err)
		return
	}
	l.logger.Printf("device: buffered #%d user=%s at=%s status=%d",
		id, p.RawDeviceUserID, p.CapturedAt.Format(types.TimestampLayout), p.StatusCode)
}
