package correlate

// Output record types, one per event kind. Field order matches the wire
// order of the JSON stream consumers already parse.

// EventExec and friends are the values of the "event" field.
const (
	EventExec         = "EXEC"
	EventExit         = "EXIT"
	EventBashReadline = "BASH_READLINE"
	EventFileOpen     = "FILE_OPEN"
)

// ExecRecord reports a process exec.
type ExecRecord struct {
	Timestamp   uint64 `json:"timestamp"`
	Event       string `json:"event"`
	Comm        string `json:"comm"`
	PID         int32  `json:"pid"`
	PPID        int32  `json:"ppid"`
	Filename    string `json:"filename"`
	FullCommand string `json:"full_command"`
}

// ExitRecord reports a process exit.
type ExitRecord struct {
	Timestamp        uint64 `json:"timestamp"`
	Event            string `json:"event"`
	Comm             string `json:"comm"`
	PID              int32  `json:"pid"`
	PPID             int32  `json:"ppid"`
	ExitCode         uint32 `json:"exit_code"`
	DurationMs       uint64 `json:"duration_ms,omitempty"`
	RateLimitWarning string `json:"rate_limit_warning,omitempty"`
}

// ReadlineRecord reports a command line read by an interactive shell.
type ReadlineRecord struct {
	Timestamp uint64 `json:"timestamp"`
	Event     string `json:"event"`
	Comm      string `json:"comm"`
	PID       int32  `json:"pid"`
	Command   string `json:"command"`
}

// FileOpenRecord reports one or more opens of a filepath by a process.
// Count is above one only for aggregates flushed out of the dedup window;
// WindowExpired or Reason say why such an aggregate was flushed.
type FileOpenRecord struct {
	Timestamp        uint64 `json:"timestamp"`
	Event            string `json:"event"`
	Comm             string `json:"comm"`
	PID              int32  `json:"pid"`
	Count            uint32 `json:"count"`
	Filepath         string `json:"filepath"`
	Flags            int32  `json:"flags"`
	RateLimitWarning string `json:"rate_limit_warning,omitempty"`
	WindowExpired    bool   `json:"window_expired,omitempty"`
	Reason           string `json:"reason,omitempty"`
}
