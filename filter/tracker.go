// Package filter decides which processes the pipeline tracks and which
// events it reports, based on the configured filter mode and the process
// ancestry observed so far.
package filter

// The tracker is a fixed-capacity open-addressed set. Size must stay a
// power of two so probe indices can be masked instead of taken modulo.
const (
	trackerSize = 2048
	trackerMask = trackerSize - 1
)

type trackedEntry struct {
	pid     int32
	ppid    int32
	tracked bool
	active  bool // false = empty slot
}

// Tracker is a bounded set of tracked process IDs with linear probing.
// Once full, inserts fail explicitly; existing entries are never evicted.
// Removal flips the active flag, so a removed-then-reinserted pid may land
// in a different probe position; lookups follow the same probe rule either
// way.
type Tracker struct {
	entries [trackerSize]trackedEntry
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

func pidHash(pid int32) uint32 {
	return uint32(pid) & trackerMask
}

func (t *Tracker) find(pid int32) *trackedEntry {
	hash := pidHash(pid)
	for i := uint32(0); i < trackerSize; i++ {
		entry := &t.entries[(hash+i)&trackerMask]
		if !entry.active {
			return nil // empty slot, not present
		}
		if entry.pid == pid {
			return entry
		}
	}
	return nil
}

// Add inserts a tracked entry for pid. It reports false only when the
// table is full. Adding a pid that is already present succeeds without
// modifying the existing entry.
func (t *Tracker) Add(pid, ppid int32) bool {
	if t.find(pid) != nil {
		return true
	}

	hash := pidHash(pid)
	for i := uint32(0); i < trackerSize; i++ {
		entry := &t.entries[(hash+i)&trackerMask]
		if !entry.active {
			entry.pid = pid
			entry.ppid = ppid
			entry.tracked = true
			entry.active = true
			return true
		}
	}
	return false // table full
}

// Remove deactivates the entry for pid. Removing an absent pid is a no-op.
func (t *Tracker) Remove(pid int32) {
	if entry := t.find(pid); entry != nil {
		entry.active = false
	}
}

// IsTracked reports whether an active, tracked entry exists for pid.
func (t *Tracker) IsTracked(pid int32) bool {
	entry := t.find(pid)
	return entry != nil && entry.tracked
}
