package rulebook_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-run/warden/pkg/rulebook"
)

func writeRulebook(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rulebook.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_ParsesArrayFormSignal(t *testing.T) {
	path := writeRulebook(t, `
signals:
  git_status:
    command: ["git", "status", "--short"]
`)
	rb, err := rulebook.Load(path)
	require.NoError(t, err)

	spec := rb.Signals["git_status"]
	assert.Equal(t, []string{"git", "status", "--short"}, spec.Command)
}

func TestLoad_RejectsUnsupportedSchemaVersion(t *testing.T) {
	path := writeRulebook(t, `
schema_version: "2.0.0"
`)
	_, err := rulebook.Load(path)
	require.Error(t, err)
}

func TestLoad_AcceptsMissingSchemaVersion(t *testing.T) {
	path := writeRulebook(t, `
signals: {}
`)
	_, err := rulebook.Load(path)
	require.NoError(t, err)
}

func TestLoad_RejectsShellFormWithoutAllowShell(t *testing.T) {
	path := writeRulebook(t, `
signals:
  dangerous:
    mode: shell
    command: ["echo hi | wc -l"]
`)
	_, err := rulebook.Load(path)
	require.Error(t, err)
}

func TestLoad_AcceptsShellFormWithAllowShell(t *testing.T) {
	path := writeRulebook(t, `
signals:
  piped:
    mode: shell
    allow_shell: true
    command: ["echo hi | wc -l"]
`)
	rb, err := rulebook.Load(path)
	require.NoError(t, err)
	assert.Equal(t, rulebook.ModeShell, rb.Signals["piped"].Mode)
}

func TestLoad_RejectsPlaceholderInArgv0(t *testing.T) {
	path := writeRulebook(t, `
signals:
  bad:
    command: ["{{tool_name}}"]
`)
	_, err := rulebook.Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsMissingFile(t *testing.T) {
	_, err := rulebook.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}
