package service

import (
	"context"
	"log"
	"time"
)

// DefaultRefreshTimeout bounds one directory refresh when none is configured.
const DefaultRefreshTimeout = 60 * time.Second

// Refresher is satisfied by DirectoryService.
type Refresher interface {
	Refresh(ctx context.Context) (RefreshResult, error)
}

// DirectoryScheduler runs a directory refresh at startup and then at every
// business-day boundary. The delay is recomputed from the wall clock each
// time, so a restart waits for the next boundary instead of firing missed
// ones. Each refresh is bounded by the refresh timeout.
type DirectoryScheduler struct {
	refresher Refresher
	day       BusinessDay
	logger    *log.Logger
	timeout   time.Duration

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	run *runner
}

type SchedulerOption func(*DirectoryScheduler)

// WithSchedulerClock overrides the clock, for tests.
func WithSchedulerClock(now func() time.Time, after func(time.Duration) <-chan time.Time) SchedulerOption {
	return func(s *DirectoryScheduler) {
		s.now = now
		s.after = after
	}
}

// WithRefreshTimeout caps each refresh; a hung remote fetch is abandoned
// and the cached snapshot kept.
func WithRefreshTimeout(d time.Duration) SchedulerOption {
	return func(s *DirectoryScheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewDirectoryScheduler(r Refresher, day BusinessDay, logger *log.Logger, opts ...SchedulerOption) *DirectoryScheduler {
	s := &DirectoryScheduler{
		refresher: r,
		day:       day,
		logger:    logger,
		timeout:   DefaultRefreshTimeout,
		now:       time.Now,
		after:     time.After,
		run:       newRunner(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start performs the startup refresh before returning, so callers can start
// the sync worker afterwards with a warm cache. It returns within the
// refresh timeout even when the remote hangs. The periodic loop then runs
// in the background until ctx is cancelled or Stop is called. Start after
// Stop does nothing.
func (s *DirectoryScheduler) Start(ctx context.Context) {
	ctx, ok := s.run.begin(ctx)
	if !ok {
		return
	}

	s.refresh(ctx)

	s.run.run(ctx, s.loop)
	s.logger.Printf("directory scheduler started (boundary=%02d:00)", s.day.BoundaryHour)
}

// Stop signals the loop to exit and waits for it. Safe to call repeatedly.
func (s *DirectoryScheduler) Stop() {
	s.run.stop()
}

func (s *DirectoryScheduler) loop(ctx context.Context) {
	for {
		now := s.now()
		next := s.day.NextBoundary(now)
		select {
		case <-ctx.Done():
			return
		case <-s.after(next.Sub(now)):
			s.refresh(ctx)
		}
	}
}

func (s *DirectoryScheduler) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Errors are logged by the refresher; the cache keeps its old snapshot.
	_, _ = s.refresher.Refresh(ctx)
}
