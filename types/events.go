// Package types defines the fixed binary record format delivered by the
// kernel-side probes and the decoded, per-kind event variants the rest of
// the pipeline consumes.
package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Raw event type discriminants, matching the kernel-side layout.
const (
	EventTypeProcess      = 0
	EventTypeBashReadline = 1
	EventTypeFileOp       = 2
)

// Fixed field sizes shared with the kernel-side record.
const (
	TaskCommLen    = 16
	MaxFilenameLen = 127
	MaxCommandLen  = 256
)

// rawEvent mirrors the kernel record byte-for-byte (little-endian).
// The 256-byte payload is a union: filename for process events, command
// text for readline events, and a {filepath, fd, flags, is_open} struct
// for file operations.
type rawEvent struct {
	Type        uint32
	PID         int32
	PPID        int32
	ExitCode    uint32
	DurationNs  uint64
	TimestampNs uint64
	Comm        [TaskCommLen]byte
	FullCommand [MaxCommandLen]byte
	Payload     [MaxCommandLen]byte
	ExitEvent   uint8
	_           [7]byte
}

// Offsets into the file-operation payload union.
const (
	fileOpFDOffset     = 128
	fileOpFlagsOffset  = 132
	fileOpIsOpenOffset = 136
)

// RawEventSize is the exact wire size of one kernel record.
const RawEventSize = 568

// Header carries the fields common to every event kind.
type Header struct {
	TimestampNs uint64
	PID         int32
	PPID        int32
	Comm        string
}

// EventHeader implements the Event interface.
func (h Header) EventHeader() Header { return h }

// Event is the decoded, tagged form of one kernel record.
type Event interface {
	EventHeader() Header
}

// ExecEvent reports a process exec.
type ExecEvent struct {
	Header
	Filename    string
	FullCommand string
}

// ExitEvent reports a process exit.
type ExitEvent struct {
	Header
	ExitCode   uint32
	DurationNs uint64
}

// ReadlineEvent reports a command line read by an interactive shell.
type ReadlineEvent struct {
	Header
	Command string
}

// FileOpenEvent reports an open/openat syscall.
type FileOpenEvent struct {
	Header
	Filepath string
	FD       int32
	Flags    int32
}

// FileCloseEvent reports a close syscall. The pipeline observes these only
// to discard them; they never produce output records.
type FileCloseEvent struct {
	Header
	Filepath string
	FD       int32
}

// Decode parses one raw kernel record into its tagged event variant.
func Decode(sample []byte) (Event, error) {
	if len(sample) < RawEventSize {
		return nil, fmt.Errorf("short event record: %d bytes, want %d", len(sample), RawEventSize)
	}

	var raw rawEvent
	if err := binary.Read(bytes.NewReader(sample), binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("parse event record: %w", err)
	}

	hdr := Header{
		TimestampNs: raw.TimestampNs,
		PID:         raw.PID,
		PPID:        raw.PPID,
		Comm:        cString(raw.Comm[:]),
	}

	switch raw.Type {
	case EventTypeProcess:
		if raw.ExitEvent != 0 {
			return &ExitEvent{
				Header:     hdr,
				ExitCode:   raw.ExitCode,
				DurationNs: raw.DurationNs,
			}, nil
		}
		return &ExecEvent{
			Header:      hdr,
			Filename:    cString(raw.Payload[:MaxFilenameLen]),
			FullCommand: cString(raw.FullCommand[:]),
		}, nil

	case EventTypeBashReadline:
		return &ReadlineEvent{
			Header:  hdr,
			Command: cString(raw.Payload[:MaxCommandLen]),
		}, nil

	case EventTypeFileOp:
		filepath := cString(raw.Payload[:MaxFilenameLen])
		fd := int32(binary.LittleEndian.Uint32(raw.Payload[fileOpFDOffset:]))
		flags := int32(binary.LittleEndian.Uint32(raw.Payload[fileOpFlagsOffset:]))
		if raw.Payload[fileOpIsOpenOffset] == 0 {
			return &FileCloseEvent{Header: hdr, Filepath: filepath, FD: fd}, nil
		}
		return &FileOpenEvent{
			Header:   hdr,
			Filepath: filepath,
			FD:       fd,
			Flags:    flags,
		}, nil

	default:
		return nil, fmt.Errorf("unknown event type %d", raw.Type)
	}
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
