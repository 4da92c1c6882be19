package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/BrandonDHaskell/punchbridge/internal/cloud"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/store"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/types"
)

type SyncConfig struct {
	Collection    string        // remote attendance collection
	AgentID       string        // recorded in lastModifiedBy
	BatchSize     int           // default 10
	IdleInterval  time.Duration // default 5s
	ErrorBackoff  time.Duration // default 10s
	UpsertTimeout time.Duration // default 15s
	Day           BusinessDay
	Polarity      PunchPolarity

	// Wake, when non-nil, cuts an idle sleep short. The timed poll still runs.
	Wake <-chan struct{}
}

// CycleResult counts what one RunCycle did with its batch.
type CycleResult struct {
	Fetched    int
	Uploaded   int
	Poisoned   int
	Unresolved int
}

// SyncWorker drains the punch queue into the remote attendance collection.
// Each record is marked synced right after its upsert succeeds, so a crash
// re-sends at most the record that was in flight.
type SyncWorker struct {
	queue  store.PunchQueue
	dir    store.Directory
	sink   cloud.AttendanceSink
	cfg    SyncConfig
	logger *log.Logger
	status StatusReporter

	// cursor is the last LocalID handled in the current pass. Records left
	// pending for lack of a mapping are stepped over until the pass ends,
	// then revisited from the head of the queue.
	cursor int64

	run *runner
}

func NewSyncWorker(q store.PunchQueue, dir store.Directory, sink cloud.AttendanceSink, cfg SyncConfig, logger *log.Logger, status StatusReporter) *SyncWorker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 5 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 10 * time.Second
	}
	if cfg.UpsertTimeout <= 0 {
		cfg.UpsertTimeout = 15 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "attendance"
	}
	return &SyncWorker{
		queue:  q,
		dir:    dir,
		sink:   sink,
		cfg:    cfg,
		logger: logger,
		status: reporterOrNop(status),
		run:    newRunner(),
	}
}

// Start launches the drain loop. A worker runs once; Start after Stop does
// nothing.
func (w *SyncWorker) Start(ctx context.Context) {
	ctx, ok := w.run.begin(ctx)
	if !ok {
		return
	}
	w.run.run(ctx, w.loop)
	w.logger.Printf("sync worker started (batch=%d idle=%s backoff=%s %s)",
		w.cfg.BatchSize, w.cfg.IdleInterval, w.cfg.ErrorBackoff, w.cfg.Polarity)
}

func (w *SyncWorker) Stop() {
	w.run.stop()
}

func (w *SyncWorker) loop(ctx context.Context) {
	for {
		res, err := w.RunCycle(ctx)
		if ctx.Err() != nil {
			return
		}

		var wait time.Duration
		var wake <-chan struct{}
		switch {
		case err != nil:
			w.status.SetServing(ComponentSync, false)
			w.logger.Printf("sync paused: %v; retrying in %s", err, w.cfg.ErrorBackoff)
			wait = w.cfg.ErrorBackoff
		case res.Fetched == 0:
			w.status.SetServing(ComponentSync, true)
			wait = w.cfg.IdleInterval
			wake = w.cfg.Wake
		default:
			w.status.SetServing(ComponentSync, true)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		case <-wake:
		}
	}
}

// RunCycle fetches one batch and processes it in LocalID order. The first
// error abandons the rest of the batch and restarts the next pass from the
// head of the queue.
func (w *SyncWorker) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	batch, err := w.fetch(ctx)
	if err != nil {
		w.cursor = 0
		return res, err
	}
	if len(batch) == 0 {
		w.cursor = 0
		return res, nil
	}
	res.Fetched = len(batch)

	for _, rec := range batch {
		if err := w.process(ctx, rec, &res); err != nil {
			w.cursor = 0
			return res, fmt.Errorf("record #%d: %w", rec.LocalID, err)
		}
		w.cursor = rec.LocalID
	}
	return res, nil
}

func (w *SyncWorker) fetch(ctx context.Context) ([]types.PunchRecord, error) {
	if w.cursor == 0 {
		return w.queue.FetchPendingBatch(ctx, w.cfg.BatchSize)
	}
	return w.queue.FetchPendingAfter(ctx, w.cursor, w.cfg.BatchSize)
}

func (w *SyncWorker) process(ctx context.Context, rec types.PunchRecord, res *CycleResult) error {
	deviceID := types.CanonicalDeviceID(rec.RawDeviceUserID)
	if deviceID == "" {
		if err := w.queue.MarkSynced(ctx, rec.LocalID); err != nil {
			return err
		}
		res.Poisoned++
		w.logger.Printf("sync: DROPPED record #%d: user id %q has no digits; marked synced without upload",
			rec.LocalID, rec.RawDeviceUserID)
		return nil
	}

	user, ok, err := w.dir.Lookup(ctx, deviceID)
	if err != nil {
		return err
	}
	if !ok {
		res.Unresolved++
		w.logger.Printf("sync: record #%d: no directory mapping for device id %s; leaving pending",
			rec.LocalID, deviceID)
		return nil
	}

	capturedAt, err := time.ParseInLocation(types.TimestampLayout, rec.CapturedAt, w.cfg.Day.loc())
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", rec.CapturedAt, err)
	}

	businessDate := w.cfg.Day.Date(capturedAt)
	docKey := DocKey(user.CloudID, businessDate)
	fields := w.payload(rec, deviceID, user, capturedAt, businessDate)

	upsertCtx, cancel := context.WithTimeout(ctx, w.cfg.UpsertTimeout)
	err = w.sink.MergeUpsert(upsertCtx, w.cfg.Collection, docKey, fields)
	cancel()
	if err != nil {
		return fmt.Errorf("upsert %s: %w", docKey, err)
	}

	if err := w.queue.MarkSynced(ctx, rec.LocalID); err != nil {
		return err
	}
	res.Uploaded++
	w.logger.Printf("sync: uploaded #%d -> %s (%s)", rec.LocalID, docKey, direction(w.cfg.Polarity, rec.StatusCode))
	return nil
}

// payload sets only one side of the day (check-in or check-out) so the two
// halves merge into the same document without clobbering each other.
func (w *SyncWorker) payload(rec types.PunchRecord, deviceID string, user types.UserMapping, capturedAt, businessDate time.Time) map[string]any {
	fields := map[string]any{
		"userId":         user.CloudID,
		"date":           businessDate,
		"businessDate":   businessDate.Format(DateLayout),
		"deviceUserId":   deviceID,
		"lastModifiedBy": "punchbridge:" + w.cfg.AgentID,
		"lastModifiedAt": cloud.ServerTimestamp,
	}
	if w.cfg.Polarity.IsCheckIn(rec.StatusCode) {
		fields["checkInTime"] = capturedAt
		fields["checkInStatus"] = rec.StatusCode
		fields["checkInPunchType"] = rec.PunchType
	} else {
		fields["checkOutTime"] = capturedAt
		fields["checkOutStatus"] = rec.StatusCode
		fields["checkOutPunchType"] = rec.PunchType
	}
	return fields
}

func direction(p PunchPolarity, status int) string {
	if p.IsCheckIn(status) {
		return "check-in"
	}
	return "check-out"
}
