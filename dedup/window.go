// Package dedup aggregates repeated file-open events for the same
// (pid, filepath) pair within a time window, so a burst of identical opens
// produces one record with a count instead of thousands of lines.
package dedup

import (
	log "github.com/sirupsen/logrus"
)

const (
	maxEntries = 1024
	// WindowNs is how long a fingerprint stays live without being seen
	// again before its aggregate is flushed.
	WindowNs = 60_000_000_000
)

// Reason says why an aggregate was flushed.
type Reason int

const (
	// WindowExpired means the entry aged out of the dedup window.
	WindowExpired Reason = iota
	// ProcessExit means the owning process exited mid-window.
	ProcessExit
)

// Aggregate is a flushed entry whose count exceeded one.
type Aggregate struct {
	PID      int32
	Comm     string
	Filepath string
	Flags    int32
	Count    uint32
	Reason   Reason
}

type entry struct {
	hash     uint64
	lastSeen uint64
	count    uint32
	pid      int32
	comm     string
	filepath string
	flags    int32
}

// Window is the bounded dedup table. When full, new fingerprints pass
// through un-deduplicated rather than evicting live entries.
type Window struct {
	entries []entry
}

// NewWindow returns an empty dedup window.
func NewWindow() *Window {
	return &Window{entries: make([]entry, 0, maxEntries)}
}

// Len returns the number of live entries.
func (w *Window) Len() int {
	return len(w.entries)
}

// Fingerprint hashes a (pid, filepath) pair with the same polynomial hash
// the kernel-side tooling uses. Not collision-free; two colliding pairs
// aggregate together, which is acceptable for a dedup heuristic.
func Fingerprint(pid int32, filepath string) uint64 {
	hash := uint64(5381)
	hash = ((hash << 5) + hash) + uint64(uint32(pid))
	for i := 0; i < len(filepath); i++ {
		hash = ((hash << 5) + hash) + uint64(filepath[i])
	}
	return hash
}

// Record classifies one file-open occurrence. It first sweeps out entries
// older than the window, returning their aggregates, then either counts
// the occurrence into a live entry (fresh=false, the event is suppressed)
// or starts a new entry (fresh=true, the event is reported with count 1).
// A full table also reports fresh=true: passthrough beats dropping.
func (w *Window) Record(pid int32, comm, filepath string, flags int32, timestampNs uint64) (fresh bool, expired []Aggregate) {
	expired = w.sweep(timestampNs)

	hash := Fingerprint(pid, filepath)
	for i := range w.entries {
		if w.entries[i].hash == hash {
			w.entries[i].count++
			w.entries[i].lastSeen = timestampNs
			log.Debugf("dedup: aggregating file open for pid %d, count now %d", pid, w.entries[i].count)
			return false, expired
		}
	}

	if len(w.entries) < maxEntries {
		w.entries = append(w.entries, entry{
			hash:     hash,
			lastSeen: timestampNs,
			count:    1,
			pid:      pid,
			comm:     comm,
			filepath: filepath,
			flags:    flags,
		})
		return true, expired
	}

	log.Debugf("dedup: table full (%d entries), passing event through untracked", maxEntries)
	return true, expired
}

// sweep removes entries whose window has expired, collecting aggregates
// for those seen more than once.
func (w *Window) sweep(timestampNs uint64) []Aggregate {
	var flushed []Aggregate
	for i := 0; i < len(w.entries); i++ {
		if timestampNs-w.entries[i].lastSeen <= WindowNs {
			continue
		}
		if w.entries[i].count > 1 {
			flushed = append(flushed, w.aggregate(i, WindowExpired))
		}
		w.removeAt(i)
		i--
	}
	return flushed
}

// FlushProcess drains every entry owned by pid, returning aggregates for
// those with a count above one. Called on process exit so no aggregate
// count is silently lost.
func (w *Window) FlushProcess(pid int32, timestampNs uint64) []Aggregate {
	var flushed []Aggregate
	for i := 0; i < len(w.entries); i++ {
		if w.entries[i].pid != pid {
			continue
		}
		if w.entries[i].count > 1 {
			flushed = append(flushed, w.aggregate(i, ProcessExit))
		}
		w.removeAt(i)
		i--
	}
	if len(flushed) > 0 {
		log.Debugf("dedup: flushed %d aggregates for exiting pid %d", len(flushed), pid)
	}
	return flushed
}

func (w *Window) aggregate(i int, reason Reason) Aggregate {
	e := &w.entries[i]
	return Aggregate{
		PID:      e.pid,
		Comm:     e.comm,
		Filepath: e.filepath,
		Flags:    e.flags,
		Count:    e.count,
		Reason:   reason,
	}
}

// removeAt swaps the last entry into position i.
func (w *Window) removeAt(i int) {
	last := len(w.entries) - 1
	w.entries[i] = w.entries[last]
	w.entries = w.entries[:last]
}
