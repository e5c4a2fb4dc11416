// Package main wires the kernel event source to the correlation engine.
//
// The source sits behind a platform-independent interface so the pipeline
// can be developed off-Linux and driven from mock sources in tests.
package main

import (
	"errors"
	"time"
)

// ErrPollTimeout is returned by Poll when no event arrived within the
// timeout. It is not a failure; the consumer loop uses it to check the
// shutdown flag between waits.
var ErrPollTimeout = errors.New("event source: poll timed out")

// ErrSourceClosed is returned once the source has been shut down.
var ErrSourceClosed = errors.New("event source: closed")

// Record is one raw sample delivered by the kernel. The payload is the
// fixed binary layout decoded by the types package.
type Record struct {
	RawSample []byte
}

// EventSource delivers raw kernel records. The source is unreliable by
// contract: it may drop events under backpressure and never redelivers.
type EventSource interface {
	// Poll blocks until an event arrives or the timeout elapses, returning
	// ErrPollTimeout in the latter case.
	Poll(timeout time.Duration) (Record, error)
	// Close releases the source; subsequent polls return ErrSourceClosed.
	Close() error
}
