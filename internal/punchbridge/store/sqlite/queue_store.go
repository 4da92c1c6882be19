package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/punchbridge/internal/db"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/store"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/types"
)

const (
	appendRetryMin = 50 * time.Millisecond
	appendRetryMax = time.Second
)

type QueueStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
	notify *store.Notifier // optional
}

// NewQueueStore returns the durable punch queue. notify, when non-nil, is
// signalled after every successful Append.
func NewQueueStore(db *sql.DB, writer *dbpkg.Worker, notify *store.Notifier) *QueueStore {
	return &QueueStore{db: db, writer: writer, notify: notify}
}

// Append inserts p as pending with the device user id stored verbatim. Lock
// contention is retried until it clears or ctx ends; any other error is
// returned as-is.
func (s *QueueStore) Append(ctx context.Context, p types.Punch) (int64, error) {
	userID := p.RawDeviceUserID
	ts := p.CapturedAt.Format(types.TimestampLayout)

	var id int64
	insert := func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO attendance(user_id, timestamp, status, punch_type)
VALUES (?, ?, ?, ?);
`, userID, ts, p.StatusCode, p.PunchType)
		if err != nil {
			return fmt.Errorf("Append insert: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("Append last id: %w", err)
		}
		return nil
	}

	wait := appendRetryMin
	for {
		err := s.writer.Do(ctx, insert)
		if err == nil {
			break
		}
		if !dbpkg.IsTransient(err) {
			return 0, err
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("Append: %w (last: %v)", ctx.Err(), err)
		case <-time.After(wait):
		}
		wait = min(wait*2, appendRetryMax)
	}

	if s.notify != nil {
		s.notify.Signal()
	}
	return id, nil
}

func (s *QueueStore) FetchPendingBatch(ctx context.Context, limit int) ([]types.PunchRecord, error) {
	return s.FetchPendingAfter(ctx, 0, limit)
}

func (s *QueueStore) FetchPendingAfter(ctx context.Context, afterID int64, limit int) ([]types.PunchRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, timestamp, status, punch_type, synced
FROM attendance
WHERE synced = 0 AND id > ?
ORDER BY id ASC
LIMIT ?;
`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("FetchPendingBatch query: %w", err)
	}
	defer rows.Close()

	var out []types.PunchRecord
	for rows.Next() {
		var (
			r         types.PunchRecord
			userID    sql.NullString
			ts        sql.NullString
			status    sql.NullInt64
			punchType sql.NullInt64
			synced    int
		)
		if err := rows.Scan(&r.LocalID, &userID, &ts, &status, &punchType, &synced); err != nil {
			return nil, fmt.Errorf("FetchPendingBatch scan: %w", err)
		}
		r.RawDeviceUserID = userID.String
		r.CapturedAt = ts.String
		r.StatusCode = int(status.Int64)
		r.PunchType = int(punchType.Int64)
		r.SyncState = types.SyncState(synced)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("FetchPendingBatch rows: %w", err)
	}
	return out, nil
}

// MarkSynced is idempotent; the synced = 0 guard keeps synced rows immutable.
func (s *QueueStore) MarkSynced(ctx context.Context, localID int64) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
UPDATE attendance SET synced = 1 WHERE id = ? AND synced = 0;
`, localID); err != nil {
			return fmt.Errorf("MarkSynced: %w", err)
		}
		return nil
	})
}

func (s *QueueStore) Stats(ctx context.Context) (types.QueueStats, error) {
	var (
		st     types.QueueStats
		oldest sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
SELECT
  COALESCE(SUM(CASE WHEN synced = 0 THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN synced = 1 THEN 1 ELSE 0 END), 0),
  (SELECT timestamp FROM attendance WHERE synced = 0 ORDER BY id ASC LIMIT 1)
FROM attendance;
`).Scan(&st.Pending, &st.Synced, &oldest)
	if err != nil {
		return types.QueueStats{}, fmt.Errorf("Stats: %w", err)
	}
	st.OldestPendingAt = oldest.String
	return st, nil
}
