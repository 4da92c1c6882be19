package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/BrandonDHaskell/punchbridge/internal/db"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/types"
)

// openTestDB returns an in-memory SQLite connection with the production
// schema. Each test gets its own database; shared cache keeps it alive for
// the lifetime of the pool.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		t.Name(),
	)

	conn, err := sql.Open("sqlite", dsn)
	require.NoError(t, err, "sql.Open")

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	require.NoError(t, conn.Ping(), "ping")
	require.NoError(t, db.Migrate(context.Background(), conn), "migrate")

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn, closed on cleanup.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

func punchAt(userID, ts string, status int) types.Punch {
	at, err := time.Parse(types.TimestampLayout, ts)
	if err != nil {
		panic(err)
	}
	return types.Punch{RawDeviceUserID: userID, CapturedAt: at, StatusCode: status, PunchType: 1}
}
