package dedup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const t0 = uint64(1_000_000_000_000)

func TestRecordFirstOccurrenceEmits(t *testing.T) {
	w := NewWindow()

	fresh, expired := w.Record(100, "cat", "/etc/passwd", 0, t0)
	assert.True(t, fresh)
	assert.Empty(t, expired)
	assert.Equal(t, 1, w.Len())
}

func TestRecordSuppressesDuplicatesWithinWindow(t *testing.T) {
	w := NewWindow()

	fresh, _ := w.Record(100, "cat", "/etc/passwd", 0, t0)
	require.True(t, fresh)

	for i := 1; i < 5; i++ {
		fresh, expired := w.Record(100, "cat", "/etc/passwd", 0, t0+uint64(i))
		assert.False(t, fresh, "occurrence %d", i+1)
		assert.Empty(t, expired)
	}
	assert.Equal(t, 1, w.Len())
}

func TestWindowExpiryFlushesAggregate(t *testing.T) {
	w := NewWindow()

	for i := 0; i < 5; i++ {
		w.Record(100, "cat", "/etc/passwd", 0, t0)
	}

	// A later event for a different fingerprint sweeps the expired entry.
	fresh, expired := w.Record(200, "ls", "/tmp/x", 0, t0+WindowNs+1)
	assert.True(t, fresh)
	require.Len(t, expired, 1)
	agg := expired[0]
	assert.Equal(t, int32(100), agg.PID)
	assert.Equal(t, "cat", agg.Comm)
	assert.Equal(t, "/etc/passwd", agg.Filepath)
	assert.Equal(t, uint32(5), agg.Count)
	assert.Equal(t, WindowExpired, agg.Reason)
}

func TestWindowExpirySkipsSingletons(t *testing.T) {
	w := NewWindow()

	w.Record(100, "cat", "/etc/passwd", 0, t0)
	_, expired := w.Record(200, "ls", "/tmp/x", 0, t0+WindowNs+1)

	// Count 1 entries are removed silently, no aggregate.
	assert.Empty(t, expired)
	assert.Equal(t, 1, w.Len())
}

func TestDuplicateRefreshesWindow(t *testing.T) {
	w := NewWindow()

	w.Record(100, "cat", "/etc/passwd", 0, t0)
	// Seen again just before expiry: last_seen refreshes.
	halfway := t0 + WindowNs/2
	fresh, _ := w.Record(100, "cat", "/etc/passwd", 0, halfway)
	require.False(t, fresh)

	// The original timestamp has aged out but the refresh has not.
	_, expired := w.Record(200, "ls", "/tmp/x", 0, t0+WindowNs+1)
	assert.Empty(t, expired)
	assert.Equal(t, 2, w.Len())
}

func TestFlushProcess(t *testing.T) {
	w := NewWindow()

	for i := 0; i < 5; i++ {
		w.Record(100, "cat", "/etc/passwd", 0, t0)
	}
	w.Record(100, "cat", "/etc/hosts", 0, t0) // count 1, removed silently
	w.Record(200, "ls", "/tmp/x", 0, t0)      // other pid, untouched

	flushed := w.FlushProcess(100, t0+1)
	require.Len(t, flushed, 1)
	assert.Equal(t, uint32(5), flushed[0].Count)
	assert.Equal(t, "/etc/passwd", flushed[0].Filepath)
	assert.Equal(t, ProcessExit, flushed[0].Reason)

	// Everything owned by pid 100 is gone, pid 200 remains.
	assert.Equal(t, 1, w.Len())
	fresh, _ := w.Record(200, "ls", "/tmp/x", 0, t0+2)
	assert.False(t, fresh)
}

func TestFlushProcessAbsentPID(t *testing.T) {
	w := NewWindow()
	assert.Empty(t, w.FlushProcess(999, t0))
}

func TestTableFullFallsBackToPassthrough(t *testing.T) {
	w := NewWindow()

	for i := 0; i < maxEntries; i++ {
		fresh, _ := w.Record(100, "cat", fmt.Sprintf("/tmp/f%d", i), 0, t0)
		require.True(t, fresh)
	}
	require.Equal(t, maxEntries, w.Len())

	// Full table: the event is still emitted, just untracked.
	fresh, _ := w.Record(100, "cat", "/tmp/overflow", 0, t0)
	assert.True(t, fresh)
	assert.Equal(t, maxEntries, w.Len())

	// And repeats of it are not deduplicated.
	fresh, _ = w.Record(100, "cat", "/tmp/overflow", 0, t0+1)
	assert.True(t, fresh)
}

func TestFingerprintSeparatesPIDsAndPaths(t *testing.T) {
	assert.NotEqual(t, Fingerprint(100, "/etc/passwd"), Fingerprint(101, "/etc/passwd"))
	assert.NotEqual(t, Fingerprint(100, "/etc/passwd"), Fingerprint(100, "/etc/hosts"))
	assert.Equal(t, Fingerprint(100, "/etc/passwd"), Fingerprint(100, "/etc/passwd"))
}
