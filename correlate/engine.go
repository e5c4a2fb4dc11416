// Package correlate turns raw kernel events into the filtered,
// deduplicated, rate-limited output stream. One Engine instance owns all
// correlation state and must be driven from a single goroutine.
package correlate

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/haolipeng/agentsight/dedup"
	"github.com/haolipeng/agentsight/filter"
	"github.com/haolipeng/agentsight/ratelimit"
	"github.com/haolipeng/agentsight/types"
)

// Warning strings attached to records when a process exceeded the
// per-second file-open limit.
var (
	rateLimitInlineWarning = fmt.Sprintf("Previous second exceeded %d file limit", ratelimit.Threshold)
	rateLimitExitWarning   = fmt.Sprintf("Process had %d+ file ops per second", ratelimit.Threshold)
)

// ProcessSnapshot is one pre-existing process handed to Seed before live
// events start flowing.
type ProcessSnapshot struct {
	PID  int32
	PPID int32
	Comm string
}

// Engine is the single decision point of the pipeline. Events are handled
// strictly in arrival order; each raw event yields zero or more output
// records on the sink.
type Engine struct {
	filter        *filter.Engine
	tracker       *filter.Tracker
	dedup         *dedup.Window
	limiter       *ratelimit.Limiter
	sink          Sink
	minDurationNs uint64
}

// NewEngine builds an engine around a filter config. minDurationMs, when
// nonzero, suppresses exit records for processes that lived shorter than
// that.
func NewEngine(cfg filter.Config, minDurationMs uint64, sink Sink) *Engine {
	tracker := filter.NewTracker()
	return &Engine{
		filter:        filter.NewEngine(cfg, tracker),
		tracker:       tracker,
		dedup:         dedup.NewWindow(),
		limiter:       ratelimit.NewLimiter(),
		sink:          sink,
		minDurationNs: minDurationMs * 1_000_000,
	}
}

// Seed applies the filter to a snapshot of already-running processes so
// existing process trees are tracked from the first live event. It returns
// how many were added to the tracker.
func (e *Engine) Seed(snapshot []ProcessSnapshot) int {
	tracked := 0
	for _, p := range snapshot {
		if !e.filter.ShouldTrack(p.Comm, p.PID, p.PPID) {
			continue
		}
		if e.tracker.Add(p.PID, p.PPID) {
			tracked++
		} else {
			log.Debugf("tracker full, cannot seed pid %d", p.PID)
		}
	}
	return tracked
}

// HandleEvent consumes one decoded event. Sink failures are returned;
// every other outcome (suppression, capacity degradation) is not an error.
func (e *Engine) HandleEvent(ev types.Event) error {
	switch v := ev.(type) {
	case *types.ExecEvent:
		return e.handleExec(v)
	case *types.ExitEvent:
		return e.handleExit(v)
	case *types.ReadlineEvent:
		return e.handleReadline(v)
	case *types.FileOpenEvent:
		return e.handleFileOpen(v)
	case *types.FileCloseEvent:
		return nil
	default:
		return fmt.Errorf("unhandled event type %T", ev)
	}
}

func (e *Engine) handleExec(ev *types.ExecEvent) error {
	if e.filter.ShouldTrack(ev.Comm, ev.PID, ev.PPID) {
		if !e.tracker.Add(ev.PID, ev.PPID) {
			log.Debugf("tracker full, cannot add pid %d", ev.PID)
		}
	} else {
		if e.filter.Mode() == filter.ModeFilter {
			return nil
		}
		// PROC mode registers every process so ancestry keeps propagating,
		// even though file ops are reported selectively.
		if e.filter.Mode() == filter.ModeProc {
			if !e.tracker.Add(ev.PID, ev.PPID) {
				log.Debugf("tracker full, cannot add pid %d", ev.PID)
			}
		}
	}

	return e.sink.Emit(ExecRecord{
		Timestamp:   ev.TimestampNs,
		Event:       EventExec,
		Comm:        ev.Comm,
		PID:         ev.PID,
		PPID:        ev.PPID,
		Filename:    ev.Filename,
		FullCommand: ev.FullCommand,
	})
}

func (e *Engine) handleExit(ev *types.ExitEvent) error {
	// Tracked status must be read before removal; removal itself is
	// unconditional, as is draining the dedup and rate-limit state for the
	// pid.
	wasTracked := e.tracker.IsTracked(ev.PID)
	e.tracker.Remove(ev.PID)
	hadWarning := e.limiter.CloseProcess(ev.PID)
	flushed := e.dedup.FlushProcess(ev.PID, ev.TimestampNs)

	report := wasTracked || e.filter.Mode() != filter.ModeFilter
	if report && e.minDurationNs > 0 && ev.DurationNs > 0 && ev.DurationNs < e.minDurationNs {
		report = false
	}

	if report {
		rec := ExitRecord{
			Timestamp: ev.TimestampNs,
			Event:     EventExit,
			Comm:      ev.Comm,
			PID:       ev.PID,
			PPID:      ev.PPID,
			ExitCode:  ev.ExitCode,
		}
		if ev.DurationNs > 0 {
			rec.DurationMs = ev.DurationNs / 1_000_000
		}
		if hadWarning {
			rec.RateLimitWarning = rateLimitExitWarning
		}
		if err := e.sink.Emit(rec); err != nil {
			return err
		}
	}

	return e.emitAggregates(flushed, ev.TimestampNs)
}

func (e *Engine) handleReadline(ev *types.ReadlineEvent) error {
	if !e.filter.ShouldReportReadline(ev.PID) {
		return nil
	}
	return e.sink.Emit(ReadlineRecord{
		Timestamp: ev.TimestampNs,
		Event:     EventBashReadline,
		Comm:      ev.Comm,
		PID:       ev.PID,
		Command:   ev.Command,
	})
}

func (e *Engine) handleFileOpen(ev *types.FileOpenEvent) error {
	if !e.filter.ShouldReportFileOps(ev.PID) {
		return nil
	}

	// Rate limiting runs before dedup bookkeeping: a dropped event was
	// never "seen" and must not refresh or create a dedup entry.
	drop, warn := e.limiter.Check(ev.PID, ev.TimestampNs)
	if drop {
		return nil
	}

	fresh, expired := e.dedup.Record(ev.PID, ev.Comm, ev.Filepath, ev.Flags, ev.TimestampNs)
	if err := e.emitAggregates(expired, ev.TimestampNs); err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	rec := FileOpenRecord{
		Timestamp: ev.TimestampNs,
		Event:     EventFileOpen,
		Comm:      ev.Comm,
		PID:       ev.PID,
		Count:     1,
		Filepath:  ev.Filepath,
		Flags:     ev.Flags,
	}
	if warn {
		rec.RateLimitWarning = rateLimitInlineWarning
	}
	return e.sink.Emit(rec)
}

// emitAggregates reports dedup entries flushed as a side effect of the
// current event, stamped with the current event's timestamp.
func (e *Engine) emitAggregates(aggs []dedup.Aggregate, timestampNs uint64) error {
	for _, agg := range aggs {
		rec := FileOpenRecord{
			Timestamp: timestampNs,
			Event:     EventFileOpen,
			Comm:      agg.Comm,
			PID:       agg.PID,
			Count:     agg.Count,
			Filepath:  agg.Filepath,
			Flags:     agg.Flags,
		}
		switch agg.Reason {
		case dedup.WindowExpired:
			rec.WindowExpired = true
		case dedup.ProcessExit:
			rec.Reason = "process_exit"
		}
		if err := e.sink.Emit(rec); err != nil {
			return err
		}
	}
	return nil
}
