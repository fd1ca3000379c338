// Package audit implements the engine's append-only decision log.
//
// Per the error handling design, every denial, halt, trust violation, and
// engine error that reaches the response path is also written here so an
// operator can reconstruct why a request was denied without re-running it.
// The log is best-effort: a failure to write it never changes the response
// already computed by the synthesizer.
package audit

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/warden-run/warden/pkg/crypto"
)

// Entry is one line of the audit log.
type Entry struct {
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
	Scope     string `json:"scope"` // "global" or "project"
	EventKind string `json:"event_kind"`
	RuleID    string `json:"rule_id,omitempty"`
	Verb      string `json:"verb,omitempty"` // halt|deny|ask|allow_override|add_context|allow
	Reason    string `json:"reason,omitempty"`
	Severity  string `json:"severity,omitempty"`
	Detail    any    `json:"detail,omitempty"`
	Hash      string `json:"hash"` // content hash of the entry, excluding this field
}

// Log records audit entries. Implementations MUST NOT block the request
// path on slow I/O; Record is called once the final decision and its
// response body are computed, before the response is written to stdout.
type Log interface {
	Record(e Entry) error
	Close() error
}

// FileLog appends JSON lines to a file opened with O_APPEND. Each call to
// Record acquires a mutex rather than relying solely on O_APPEND atomicity,
// since writes may exceed the platform's atomic-write guarantee.
type FileLog struct {
	mu     sync.Mutex
	file   *os.File
	hasher crypto.Hasher
}

// NewFileLog opens (or creates) the audit log at path for appending.
func NewFileLog(path string) (*FileLog, error) {
	//nolint:gosec // G302: audit log is operator-readable by design
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileLog{file: f, hasher: crypto.NewCanonicalHasher()}, nil
}

// Record appends one entry as a single JSON line.
func (l *FileLog) Record(e Entry) error {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	hashInput := e
	hashInput.Hash = ""
	h, err := l.hasher.Hash(hashInput)
	if err != nil {
		return err
	}
	e.Hash = h

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.file.Write(data)
	return err
}

// Close flushes and closes the underlying file.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// NoopLog discards every entry. Used when no audit log path is configured.
type NoopLog struct{}

func (NoopLog) Record(Entry) error { return nil }
func (NoopLog) Close() error       { return nil }
