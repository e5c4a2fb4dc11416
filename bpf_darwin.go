//go:build darwin
// +build darwin

// Stub for development on MacOS. The monitoring functionality itself is
// Linux-only.

package main

import "errors"

// InitEventSource is not available off Linux.
func InitEventSource() (EventSource, func(), error) {
	return nil, nil, errors.New("BPF monitoring is only available on Linux")
}
