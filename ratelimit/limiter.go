// Package ratelimit caps how many file-open events a single process can
// push into the output stream per second, deferring a single warning to
// the next record the process emits.
package ratelimit

import (
	log "github.com/sirupsen/logrus"
)

const (
	maxWindows = 256
	// Threshold is the number of file-open events a pid may emit per
	// second before further events in that second are dropped.
	Threshold = 30
)

type window struct {
	pid      int32
	second   uint64
	count    uint32
	warnNext bool
}

// Limiter keeps one per-second window per pid. The table is fixed-size;
// when full, new pids are simply not rate limited (fail-open).
type Limiter struct {
	windows []window
}

// NewLimiter returns an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{windows: make([]window, 0, maxWindows)}
}

// Check counts one file-open event for pid at the given timestamp. It
// reports whether the event must be dropped and whether a warning deferred
// from the previous second should be attached to the event that survives.
func (l *Limiter) Check(pid int32, timestampNs uint64) (drop, warn bool) {
	second := timestampNs / 1_000_000_000

	var w *window
	for i := range l.windows {
		if l.windows[i].pid == pid {
			w = &l.windows[i]
			break
		}
	}

	if w == nil {
		if len(l.windows) >= maxWindows {
			log.Debugf("ratelimit: window table full, not limiting pid %d", pid)
			return false, false
		}
		l.windows = append(l.windows, window{pid: pid, second: second})
		w = &l.windows[len(l.windows)-1]
	}

	if w.second != second {
		if w.warnNext {
			warn = true
			w.warnNext = false
		}
		w.second = second
		w.count = 0
	}

	w.count++
	if w.count > Threshold {
		w.warnNext = true
		return true, warn
	}
	return false, warn
}

// CloseProcess removes the window for an exiting pid and reports whether a
// deferred warning was still pending. The caller surfaces that warning on
// the exit record; it is never reported again.
func (l *Limiter) CloseProcess(pid int32) bool {
	for i := range l.windows {
		if l.windows[i].pid != pid {
			continue
		}
		pending := l.windows[i].warnNext
		last := len(l.windows) - 1
		l.windows[i] = l.windows[last]
		l.windows = l.windows[:last]
		return pending
	}
	return false
}
