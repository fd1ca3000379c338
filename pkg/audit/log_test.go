package audit_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-run/warden/pkg/audit"
)

func TestFileLog_RecordAppendsOneLinePerEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log, err := audit.NewFileLog(path)
	require.NoError(t, err)

	require.NoError(t, log.Record(audit.Entry{SessionID: "s1", Verb: "deny", RuleID: "R1"}))
	require.NoError(t, log.Record(audit.Entry{SessionID: "s1", Verb: "allow"}))
	require.NoError(t, log.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var first audit.Entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "deny", first.Verb)
	assert.Equal(t, "R1", first.RuleID)
	assert.NotEmpty(t, first.Timestamp)
	assert.NotEmpty(t, first.Hash)
}

func TestFileLog_HashExcludesHashField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log, err := audit.NewFileLog(path)
	require.NoError(t, err)
	defer log.Close()

	fixed := "2026-01-01T00:00:00Z"
	require.NoError(t, log.Record(audit.Entry{Timestamp: fixed, SessionID: "s1", Verb: "halt"}))
	require.NoError(t, log.Record(audit.Entry{Timestamp: fixed, SessionID: "s1", Verb: "halt"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := splitLines(data)
	require.Len(t, lines, 2)

	var a, b audit.Entry
	require.NoError(t, json.Unmarshal(lines[0], &a))
	require.NoError(t, json.Unmarshal(lines[1], &b))
	assert.Equal(t, a.Hash, b.Hash, "identical entries must hash identically regardless of the stored Hash field itself")
}

func TestNoopLog_NeverErrors(t *testing.T) {
	var log audit.NoopLog
	assert.NoError(t, log.Record(audit.Entry{Verb: "allow"}))
	assert.NoError(t, log.Close())
}

func splitLines(data []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				out = append(out, data[start:i])
			}
			start = i + 1
		}
	}
	return out
}
