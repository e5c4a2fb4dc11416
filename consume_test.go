package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haolipeng/agentsight/correlate"
	"github.com/haolipeng/agentsight/filter"
	"github.com/haolipeng/agentsight/types"
)

// fakeSource hands out queued records, then a terminal error.
type fakeSource struct {
	records  []Record
	finalErr error
}

func (s *fakeSource) Poll(timeout time.Duration) (Record, error) {
	if len(s.records) == 0 {
		return Record{}, s.finalErr
	}
	rec := s.records[0]
	s.records = s.records[1:]
	return rec, nil
}

func (s *fakeSource) Close() error { return nil }

func rawExec(ts uint64, pid, ppid int32, comm, filename, fullCommand string) Record {
	var buf [types.RawEventSize]byte
	binary.LittleEndian.PutUint32(buf[0:], types.EventTypeProcess)
	binary.LittleEndian.PutUint32(buf[4:], uint32(pid))
	binary.LittleEndian.PutUint32(buf[8:], uint32(ppid))
	binary.LittleEndian.PutUint64(buf[24:], ts)
	copy(buf[32:48], comm)
	copy(buf[48:48+types.MaxCommandLen], fullCommand)
	copy(buf[304:], filename)
	return Record{RawSample: buf[:]}
}

func rawExit(ts uint64, pid, ppid int32, comm string, exitCode uint32) Record {
	var buf [types.RawEventSize]byte
	binary.LittleEndian.PutUint32(buf[0:], types.EventTypeProcess)
	binary.LittleEndian.PutUint32(buf[4:], uint32(pid))
	binary.LittleEndian.PutUint32(buf[8:], uint32(ppid))
	binary.LittleEndian.PutUint32(buf[12:], exitCode)
	binary.LittleEndian.PutUint64(buf[24:], ts)
	copy(buf[32:48], comm)
	buf[560] = 1
	return Record{RawSample: buf[:]}
}

func TestConsumeEndToEnd(t *testing.T) {
	var out bytes.Buffer
	engine := correlate.NewEngine(
		filter.Config{Mode: filter.ModeAll}, 0,
		correlate.NewLineSink(&out),
	)

	source := &fakeSource{
		records: []Record{
			rawExec(100, 200, 1, "ls", "/usr/bin/ls", "ls -l"),
			{RawSample: []byte{1, 2, 3}}, // malformed, dropped
			rawExit(200, 200, 1, "ls", 0),
		},
		finalErr: ErrSourceClosed,
	}

	sig := make(chan os.Signal)
	require.NoError(t, consume(source, engine, sig))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	var execRec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &execRec))
	assert.Equal(t, "EXEC", execRec["event"])
	assert.Equal(t, "ls -l", execRec["full_command"])

	var exitRec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &exitRec))
	assert.Equal(t, "EXIT", exitRec["event"])
	assert.Equal(t, float64(200), exitRec["pid"])
}

func TestConsumeFatalSourceError(t *testing.T) {
	engine := correlate.NewEngine(
		filter.Config{Mode: filter.ModeAll}, 0,
		correlate.NewLineSink(&bytes.Buffer{}),
	)
	source := &fakeSource{finalErr: errors.New("ring buffer gone")}

	err := consume(source, engine, make(chan os.Signal))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ring buffer gone")
}

func TestConsumeStopsOnSignal(t *testing.T) {
	engine := correlate.NewEngine(
		filter.Config{Mode: filter.ModeAll}, 0,
		correlate.NewLineSink(&bytes.Buffer{}),
	)
	source := &fakeSource{finalErr: ErrPollTimeout}

	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGTERM
	require.NoError(t, consume(source, engine, sig))
}
