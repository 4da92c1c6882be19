package types

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidUserID = errors.New("device user id has no digits")

// TimestampLayout is the on-disk format of attendance.timestamp. Values are
// device wall-clock time with no zone.
const TimestampLayout = "2006-01-02 15:04:05"

type SyncState int

const (
	SyncPending SyncState = 0
	SyncSynced  SyncState = 1
)

func (s SyncState) String() string {
	if s == SyncSynced {
		return "synced"
	}
	return "pending"
}

// Punch is one live notification from the device, before it is queued.
type Punch struct {
	RawDeviceUserID string
	CapturedAt      time.Time
	StatusCode      int
	PunchType       int
}

// Validate rejects punches that could never be joined to a directory entry.
func (p Punch) Validate() error {
	if DigitsOnly(p.RawDeviceUserID) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, p.RawDeviceUserID)
	}
	return nil
}

// PunchRecord is a queued punch. LocalID is assigned on insert, never reused,
// and orders processing.
type PunchRecord struct {
	LocalID         int64
	RawDeviceUserID string
	CapturedAt      string // TimestampLayout
	StatusCode      int
	PunchType       int
	SyncState       SyncState
}

// QueueStats summarizes the queue for status reporting.
type QueueStats struct {
	Pending         int64  `json:"pending"`
	Synced          int64  `json:"synced"`
	OldestPendingAt string `json:"oldest_pending_at,omitempty"`
}
