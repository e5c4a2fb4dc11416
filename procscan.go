package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/haolipeng/agentsight/correlate"
)

// scanProcesses snapshots (pid, ppid, comm) for every live process so the
// engine can seed its ancestry tracker before live events flow. Processes
// that disappear mid-scan are skipped.
func scanProcesses() ([]correlate.ProcessSnapshot, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("failed to read /proc: %w", err)
	}

	var snapshot []correlate.ProcessSnapshot
	for _, entry := range entries {
		pid, err := strconv.ParseInt(entry.Name(), 10, 32)
		if err != nil || pid <= 0 {
			continue
		}

		comm, err := readProcComm(int32(pid))
		if err != nil {
			continue
		}
		ppid, err := readProcPPID(int32(pid))
		if err != nil {
			continue
		}

		snapshot = append(snapshot, correlate.ProcessSnapshot{
			PID:  int32(pid),
			PPID: ppid,
			Comm: comm,
		})
	}
	return snapshot, nil
}

func readProcComm(pid int32) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// readProcPPID parses the ppid out of /proc/<pid>/stat. The comm field can
// contain spaces and parentheses, so fields are counted from the last ')'.
func readProcPPID(pid int32) (int32, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, err
	}

	stat := string(data)
	end := strings.LastIndexByte(stat, ')')
	if end < 0 || end+2 >= len(stat) {
		return 0, fmt.Errorf("malformed stat for pid %d", pid)
	}

	fields := strings.Fields(stat[end+2:])
	if len(fields) < 2 {
		return 0, fmt.Errorf("malformed stat for pid %d", pid)
	}

	ppid, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid ppid for pid %d: %w", pid, err)
	}
	return int32(ppid), nil
}
