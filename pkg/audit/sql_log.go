package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"  // postgres driver, registered for NewPostgresLog
	_ "modernc.org/sqlite" // pure-Go sqlite driver, registered for NewSQLiteLog

	"github.com/warden-run/warden/pkg/crypto"
)

// sqlLog is a Log backend that persists entries to a SQL table instead
// of an append-only file, for deployments that want the audit trail
// queryable (e.g. "every halt for this session") rather than grepped.
// Both supported drivers share this implementation; only the
// placeholder style and migration DDL differ.
type sqlLog struct {
	db          *sql.DB
	placeholder func(i int) string
	hasher      crypto.Hasher
}

func newSQLLog(db *sql.DB, createTable string, placeholder func(int) string) (*sqlLog, error) {
	if _, err := db.Exec(createTable); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return &sqlLog{db: db, placeholder: placeholder, hasher: crypto.NewCanonicalHasher()}, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS warden_audit_log (
	id TEXT PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	session_id TEXT,
	scope TEXT,
	event_kind TEXT,
	rule_id TEXT,
	verb TEXT,
	reason TEXT,
	severity TEXT,
	detail JSONB,
	hash TEXT NOT NULL
)`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS warden_audit_log (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	session_id TEXT,
	scope TEXT,
	event_kind TEXT,
	rule_id TEXT,
	verb TEXT,
	reason TEXT,
	severity TEXT,
	detail TEXT,
	hash TEXT NOT NULL
)`

// NewPostgresLog opens a Log backend against an already-connected
// *sql.DB using the postgres driver.
func NewPostgresLog(db *sql.DB) (Log, error) {
	return newSQLLog(db, postgresSchema, func(i int) string { return fmt.Sprintf("$%d", i) })
}

// NewSQLiteLog opens a Log backend against an already-connected *sql.DB
// using the pure-Go sqlite driver. Useful for a single-host operator
// deployment that wants a queryable audit trail without standing up a
// separate database server.
func NewSQLiteLog(db *sql.DB) (Log, error) {
	return newSQLLog(db, sqliteSchema, func(i int) string { return "?" })
}

func (l *sqlLog) Record(e Entry) error {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	hashInput := e
	hashInput.Hash = ""
	h, err := l.hasher.Hash(hashInput)
	if err != nil {
		return fmt.Errorf("audit: hash entry: %w", err)
	}
	e.Hash = h

	var detail []byte
	if e.Detail != nil {
		detail, err = json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("audit: marshal detail: %w", err)
		}
	}

	query := fmt.Sprintf(
		`INSERT INTO warden_audit_log (id, timestamp, session_id, scope, event_kind, rule_id, verb, reason, severity, detail, hash)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		l.placeholder(1), l.placeholder(2), l.placeholder(3), l.placeholder(4), l.placeholder(5),
		l.placeholder(6), l.placeholder(7), l.placeholder(8), l.placeholder(9), l.placeholder(10), l.placeholder(11),
	)

	_, err = l.db.ExecContext(context.Background(), query,
		uuid.NewString(), e.Timestamp, e.SessionID, e.Scope, e.EventKind,
		e.RuleID, e.Verb, e.Reason, e.Severity, nullableBytes(detail), e.Hash,
	)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

func (l *sqlLog) Close() error {
	return l.db.Close()
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
