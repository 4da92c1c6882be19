package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/punchbridge/internal/db"
	sqlitestore "github.com/BrandonDHaskell/punchbridge/internal/punchbridge/store/sqlite"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/types"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestQueueCommand_ReportsStatsAndHead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.db")
	ctx := context.Background()

	conn, err := db.Open(ctx, db.Config{Path: path})
	require.NoError(t, err)
	w := db.NewWorker(conn)
	q := sqlitestore.NewQueueStore(conn, w, nil)
	at := time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC)
	first, err := q.Append(ctx, types.Punch{RawDeviceUserID: "7", CapturedAt: at})
	require.NoError(t, err)
	_, err = q.Append(ctx, types.Punch{RawDeviceUserID: "8", CapturedAt: at.Add(time.Minute)})
	require.NoError(t, err)
	require.NoError(t, q.MarkSynced(ctx, first))
	w.Close()
	require.NoError(t, conn.Close())

	out, err := execute(t, "queue", "--db", path, "--head", "5")
	require.NoError(t, err)

	var report queueReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, int64(1), report.Pending)
	assert.Equal(t, int64(1), report.Synced)
	assert.Equal(t, "2024-01-01 19:01:00", report.OldestPendingAt)
	require.Len(t, report.Head, 1)
	assert.Equal(t, "8", report.Head[0].UserID)
}

func TestRunCommand_RequiresDeviceAddr(t *testing.T) {
	t.Setenv("PUNCHBRIDGE_DEVICE_ADDR", "")

	_, err := execute(t, "run", "--db", filepath.Join(t.TempDir(), "q.db"))
	assert.Error(t, err)
}

func TestRootCommand_RejectsInvalidConfig(t *testing.T) {
	t.Setenv("PUNCHBRIDGE_BATCH_SIZE", "0")

	_, err := execute(t, "queue", "--db", filepath.Join(t.TempDir(), "q.db"))
	assert.Error(t, err)
}

// orderLog records Start calls across fake workers.
type orderLog struct {
	mu     sync.Mutex
	events []string
}

func (o *orderLog) add(e string) {
	o.mu.Lock()
	o.events = append(o.events, e)
	o.mu.Unlock()
}

func (o *orderLog) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

type fakeWorker struct {
	name  string
	log   *orderLog
	block chan struct{} // Start waits on it when non-nil
}

func (f *fakeWorker) Start(context.Context) {
	f.log.add(f.name + ":start")
	if f.block != nil {
		<-f.block
	}
}

func (f *fakeWorker) Stop() { f.log.add(f.name + ":stop") }

func TestStartWorkers_ListenerRunsDuringStartupRefresh(t *testing.T) {
	events := &orderLog{}
	release := make(chan struct{})
	listener := &fakeWorker{name: "listener", log: events}
	scheduler := &fakeWorker{name: "scheduler", log: events, block: release}
	syncer := &fakeWorker{name: "sync", log: events}

	stopped := make(chan func())
	go func() { stopped <- startWorkers(context.Background(), listener, scheduler, syncer) }()

	require.Eventually(t, func() bool { return len(events.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"listener:start", "scheduler:start"}, events.snapshot(),
		"sync worker must wait for the startup refresh")

	close(release)
	stop := <-stopped
	stop()

	assert.Equal(t, []string{
		"listener:start", "scheduler:start", "sync:start",
		"sync:stop", "scheduler:stop", "listener:stop",
	}, events.snapshot())
}
