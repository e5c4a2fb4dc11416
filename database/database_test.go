package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haolipeng/agentsight/correlate"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEmitAllRecordKinds(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Emit(correlate.ExecRecord{
		Timestamp: 1, Event: correlate.EventExec, Comm: "ls", PID: 10, PPID: 1,
		Filename: "/usr/bin/ls", FullCommand: "ls -l",
	}))
	require.NoError(t, db.Emit(correlate.ExitRecord{
		Timestamp: 2, Event: correlate.EventExit, Comm: "ls", PID: 10, PPID: 1,
		ExitCode: 0, DurationMs: 15,
	}))
	require.NoError(t, db.Emit(correlate.ReadlineRecord{
		Timestamp: 3, Event: correlate.EventBashReadline, Comm: "bash", PID: 20,
		Command: "make test",
	}))
	require.NoError(t, db.Emit(correlate.FileOpenRecord{
		Timestamp: 4, Event: correlate.EventFileOpen, Comm: "cat", PID: 30,
		Count: 5, Filepath: "/etc/passwd", Reason: "process_exit",
	}))

	total, err := db.CountEvents("")
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	opens, err := db.CountEvents(correlate.EventFileOpen)
	require.NoError(t, err)
	assert.Equal(t, 1, opens)
}

func TestEmitUnknownRecord(t *testing.T) {
	db := newTestDB(t)
	assert.Error(t, db.Emit(struct{}{}))
}

func TestReopenExistingDatabase(t *testing.T) {
	dir := t.TempDir()

	db, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, db.Emit(correlate.ExecRecord{Timestamp: 1, Event: correlate.EventExec}))
	require.NoError(t, db.Close())

	db, err = New(dir)
	require.NoError(t, err)
	defer db.Close()

	n, err := db.CountEvents(correlate.EventExec)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
