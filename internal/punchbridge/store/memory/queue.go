package memory

import (
	"context"
	"sync"

	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/types"
)

// Queue is an in-memory PunchQueue for tests. The Fail* fields, when set,
// are returned by the matching method.
type Queue struct {
	mu      sync.Mutex
	nextID  int64
	records []types.PunchRecord

	FailAppend error
	FailFetch  error
	FailMark   error
	FailStats  error
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Append(_ context.Context, p types.Punch) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.FailAppend != nil {
		return 0, q.FailAppend
	}
	q.nextID++
	q.records = append(q.records, types.PunchRecord{
		LocalID:         q.nextID,
		RawDeviceUserID: p.RawDeviceUserID,
		CapturedAt:      p.CapturedAt.Format(types.TimestampLayout),
		StatusCode:      p.StatusCode,
		PunchType:       p.PunchType,
	})
	return q.nextID, nil
}

// SetFailFetch changes FailFetch while another goroutine may be fetching.
func (q *Queue) SetFailFetch(err error) {
	q.mu.Lock()
	q.FailFetch = err
	q.mu.Unlock()
}

func (q *Queue) SetFailStats(err error) {
	q.mu.Lock()
	q.FailStats = err
	q.mu.Unlock()
}

// AppendRecord inserts a raw row, bypassing Punch formatting. Test-only helper.
func (q *Queue) AppendRecord(userID, capturedAt string, status int) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	q.records = append(q.records, types.PunchRecord{
		LocalID:         q.nextID,
		RawDeviceUserID: userID,
		CapturedAt:      capturedAt,
		StatusCode:      status,
	})
	return q.nextID
}

func (q *Queue) FetchPendingBatch(ctx context.Context, limit int) ([]types.PunchRecord, error) {
	return q.FetchPendingAfter(ctx, 0, limit)
}

func (q *Queue) FetchPendingAfter(_ context.Context, afterID int64, limit int) ([]types.PunchRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.FailFetch != nil {
		return nil, q.FailFetch
	}
	var out []types.PunchRecord
	for _, r := range q.records {
		if len(out) >= limit {
			break
		}
		if r.SyncState == types.SyncPending && r.LocalID > afterID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (q *Queue) MarkSynced(_ context.Context, localID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.FailMark != nil {
		return q.FailMark
	}
	for i := range q.records {
		if q.records[i].LocalID == localID {
			q.records[i].SyncState = types.SyncSynced
		}
	}
	return nil
}

func (q *Queue) Stats(_ context.Context) (types.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.FailStats != nil {
		return types.QueueStats{}, q.FailStats
	}
	var st types.QueueStats
	for _, r := range q.records {
		if r.SyncState == types.SyncSynced {
			st.Synced++
			continue
		}
		if st.Pending == 0 {
			st.OldestPendingAt = r.CapturedAt
		}
		st.Pending++
	}
	return st, nil
}

// Records returns a copy of every record. Test-only helper.
func (q *Queue) Records() []types.PunchRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]types.PunchRecord, len(q.records))
	copy(out, q.records)
	return out
}
