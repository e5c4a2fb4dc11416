//go:build linux
// +build linux

// Linux event source backed by the eBPF ring buffer. The probe programs
// live in bpf/process.bpf.c; the generated bindings provide the maps and
// programs referenced below.

package main

//go:generate go run github.com/cilium/ebpf/cmd/bpf2go -cc clang process bpf/process.bpf.c -- -I./bpf

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
)

const bashPath = "/usr/bin/bash"

// ringbufSource adapts the eBPF ring buffer reader to the EventSource
// interface, turning read deadlines into bounded polls.
type ringbufSource struct {
	reader *ringbuf.Reader
}

func (s *ringbufSource) Poll(timeout time.Duration) (Record, error) {
	s.reader.SetDeadline(time.Now().Add(timeout))
	record, err := s.reader.Read()
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return Record{}, ErrPollTimeout
		}
		if errors.Is(err, ringbuf.ErrClosed) {
			return Record{}, ErrSourceClosed
		}
		return Record{}, err
	}
	return Record{RawSample: record.RawSample}, nil
}

func (s *ringbufSource) Close() error {
	return s.reader.Close()
}

var objs processObjects

// InitEventSource loads the BPF programs, attaches them, and returns the
// event source plus a cleanup function detaching everything in reverse
// order.
func InitEventSource() (EventSource, func(), error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, nil, fmt.Errorf("failed to remove memlock rlimit: %w", err)
	}

	if err := loadProcessObjects(&objs, nil); err != nil {
		return nil, nil, fmt.Errorf("failed to load BPF objects: %w", err)
	}

	reader, err := ringbuf.NewReader(objs.Rb)
	if err != nil {
		objs.Close()
		return nil, nil, fmt.Errorf("failed to create ring buffer reader: %w", err)
	}

	var cleanupFuncs []func()
	cleanupFuncs = append(cleanupFuncs, func() {
		reader.Close()
		objs.Close()
	})
	cleanup := func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			cleanupFuncs[i]()
		}
	}

	tracepoints := []struct {
		group, name string
		prog        *ebpf.Program
	}{
		{"sched", "sched_process_exec", objs.HandleExec},
		{"sched", "sched_process_exit", objs.HandleExit},
		{"syscalls", "sys_enter_openat", objs.TraceOpenat},
		{"syscalls", "sys_enter_open", objs.TraceOpen},
	}
	for _, tp := range tracepoints {
		l, err := link.Tracepoint(tp.group, tp.name, tp.prog, nil)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to attach %s/%s tracepoint: %w", tp.group, tp.name, err)
		}
		cleanupFuncs = append(cleanupFuncs, func() { l.Close() })
	}

	// The readline uprobe is best-effort: bash may be absent or built
	// without the symbol.
	if ex, err := link.OpenExecutable(bashPath); err == nil {
		up, err := ex.Uretprobe("readline", objs.BashReadline, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not attach bash readline uprobe: %v\n", err)
		} else {
			cleanupFuncs = append(cleanupFuncs, func() { up.Close() })
		}
	}

	return &ringbufSource{reader: reader}, cleanup, nil
}
