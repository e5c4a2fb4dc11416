package filter

import "fmt"

// Mode selects how aggressively processes are filtered.
type Mode int

const (
	// ModeAll traces every process and every file operation.
	ModeAll Mode = iota
	// ModeProc traces every process but only reports file operations for
	// tracked pids.
	ModeProc
	// ModeFilter traces only processes matching the configured filters and
	// their descendants.
	ModeFilter
)

func (m Mode) String() string {
	switch m {
	case ModeAll:
		return "all"
	case ModeProc:
		return "proc"
	case ModeFilter:
		return "filter"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts the numeric mode used on the command line.
func ParseMode(v int) (Mode, error) {
	if v < 0 || v > 2 {
		return 0, fmt.Errorf("invalid filter mode %d (must be 0, 1, or 2)", v)
	}
	return Mode(v), nil
}

// Config is the immutable filter configuration. Commands is an exact-match
// allowlist of command names; TargetPID, when nonzero, tracks that pid
// regardless of its command.
type Config struct {
	Mode      Mode
	Commands  []string
	TargetPID int32
}

// Engine applies the configured mode against the ancestry tracker. It holds
// no mutable state of its own.
type Engine struct {
	cfg     Config
	tracker *Tracker
}

// NewEngine binds a config to a tracker.
func NewEngine(cfg Config, tracker *Tracker) *Engine {
	return &Engine{cfg: cfg, tracker: tracker}
}

// Mode returns the configured filter mode.
func (e *Engine) Mode() Mode {
	return e.cfg.Mode
}

// Tracker returns the ancestry tracker the engine consults.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

func (e *Engine) commandMatches(comm string) bool {
	for _, c := range e.cfg.Commands {
		if comm == c {
			return true
		}
	}
	return false
}

// ShouldTrack decides whether a newly observed process is of interest.
// ALL and PROC track everything; FILTER tracks the target pid, children of
// tracked processes, and allowlisted commands.
func (e *Engine) ShouldTrack(comm string, pid, ppid int32) bool {
	switch e.cfg.Mode {
	case ModeAll, ModeProc:
		return true
	case ModeFilter:
		if e.cfg.TargetPID > 0 && pid == e.cfg.TargetPID {
			return true
		}
		if e.tracker.IsTracked(ppid) {
			return true
		}
		if len(e.cfg.Commands) > 0 && e.commandMatches(comm) {
			return true
		}
	}
	return false
}

// ShouldReportFileOps reports whether file operations for pid go to the
// output stream.
func (e *Engine) ShouldReportFileOps(pid int32) bool {
	if e.cfg.Mode == ModeAll {
		return true
	}
	return e.tracker.IsTracked(pid)
}

// ShouldReportReadline reports whether shell readline events for pid go to
// the output stream.
func (e *Engine) ShouldReportReadline(pid int32) bool {
	if e.cfg.Mode == ModeFilter {
		return e.tracker.IsTracked(pid)
	}
	return true
}
