package audit_test

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-run/warden/pkg/audit"
)

func TestPostgresLog_RecordInsertsOneRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS warden_audit_log").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO warden_audit_log").WillReturnResult(sqlmock.NewResult(1, 1))

	log, err := audit.NewPostgresLog(db)
	require.NoError(t, err)
	defer log.Close()

	err = log.Record(audit.Entry{
		SessionID: "s1",
		Scope:     "project",
		EventKind: "PreToolUse",
		RuleID:    "R1",
		Verb:      "deny",
		Reason:    "blocked",
		Severity:  "HIGH",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteLog_RecordInsertsOneRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS warden_audit_log").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO warden_audit_log").WillReturnResult(sqlmock.NewResult(1, 1))

	log, err := audit.NewSQLiteLog(db)
	require.NoError(t, err)
	defer log.Close()

	err = log.Record(audit.Entry{SessionID: "s2", Verb: "allow"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
