package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	dbpkg "github.com/BrandonDHaskell/punchbridge/internal/db"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/types"
)

// DirectoryStore persists the users table and serves lookups from an
// immutable in-memory snapshot that is swapped only after the replacing
// transaction commits.
type DirectoryStore struct {
	db       *sql.DB
	writer   *dbpkg.Worker
	snapshot atomic.Pointer[map[string]types.UserMapping]
}

func NewDirectoryStore(db *sql.DB, writer *dbpkg.Worker) *DirectoryStore {
	return &DirectoryStore{db: db, writer: writer}
}

// Load reads the persisted users table into the lookup snapshot. Called once
// at startup so a restart without network still resolves known ids.
func (s *DirectoryStore) Load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
SELECT device_id, cloud_id, name, shift_timing FROM users;
`)
	if err != nil {
		return fmt.Errorf("Load query: %w", err)
	}
	defer rows.Close()

	m := make(map[string]types.UserMapping)
	for rows.Next() {
		var (
			u                     types.UserMapping
			cloud, name, shiftTim sql.NullString
		)
		if err := rows.Scan(&u.DeviceID, &cloud, &name, &shiftTim); err != nil {
			return fmt.Errorf("Load scan: %w", err)
		}
		u.CloudID, u.DisplayName, u.ShiftTiming = cloud.String, name.String, shiftTim.String
		m[u.DeviceID] = u
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("Load rows: %w", err)
	}

	s.snapshot.Store(&m)
	return nil
}

// ReplaceAll deletes and rewrites the users table in one transaction.
// Duplicate DeviceIDs in users resolve last-write-wins.
func (s *DirectoryStore) ReplaceAll(ctx context.Context, users []types.UserMapping) error {
	next := make(map[string]types.UserMapping, len(users))
	for _, u := range users {
		next[u.DeviceID] = u
	}

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM users;`); err != nil {
			return fmt.Errorf("ReplaceAll clear: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
INSERT OR REPLACE INTO users(device_id, cloud_id, name, shift_timing)
VALUES (?, ?, ?, ?);
`)
		if err != nil {
			return fmt.Errorf("ReplaceAll prepare: %w", err)
		}
		defer stmt.Close()

		for _, u := range users {
			if _, err := stmt.ExecContext(ctx, u.DeviceID, u.CloudID, u.DisplayName, u.ShiftTiming); err != nil {
				return fmt.Errorf("ReplaceAll insert %s: %w", u.DeviceID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.snapshot.Store(&next)
	return nil
}

func (s *DirectoryStore) Lookup(ctx context.Context, deviceID string) (types.UserMapping, bool, error) {
	if m := s.snapshot.Load(); m != nil {
		u, ok := (*m)[deviceID]
		return u, ok, nil
	}

	var (
		u                     types.UserMapping
		cloud, name, shiftTim sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
SELECT device_id, cloud_id, name, shift_timing FROM users WHERE device_id = ?;
`, deviceID).Scan(&u.DeviceID, &cloud, &name, &shiftTim)
	if err == sql.ErrNoRows {
		return types.UserMapping{}, false, nil
	}
	if err != nil {
		return types.UserMapping{}, false, fmt.Errorf("Lookup query: %w", err)
	}
	u.CloudID, u.DisplayName, u.ShiftTiming = cloud.String, name.String, shiftTim.String
	return u, true, nil
}

func (s *DirectoryStore) Count(ctx context.Context) (int, error) {
	if m := s.snapshot.Load(); m != nil {
		return len(*m), nil
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}
