package rulebook_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-run/warden/pkg/rulebook"
)

func TestParseStringForm(t *testing.T) {
	spec, err := rulebook.ParseStringForm(`git status --short`)
	require.NoError(t, err)
	assert.Equal(t, []string{"git"}, spec.Command)
	assert.Equal(t, []string{"status", "--short"}, spec.Args)
}

func TestParseStringForm_RejectsCommandSubstitution(t *testing.T) {
	_, err := rulebook.ParseStringForm(`echo $(whoami)`)
	require.Error(t, err)
}

func TestParseStringForm_RejectsBackticks(t *testing.T) {
	_, err := rulebook.ParseStringForm("echo `whoami`")
	require.Error(t, err)
}

func TestParseStringForm_RejectsGlobs(t *testing.T) {
	_, err := rulebook.ParseStringForm(`rm *.tmp`)
	require.Error(t, err)
}

func TestValidateSpecPaths_RejectsPlaceholderInArgv0(t *testing.T) {
	spec := rulebook.CommandSpec{Command: []string{"{{tool_name}}"}}
	err := rulebook.ValidateSpecPaths(spec)
	require.Error(t, err)
}

func TestTrustReference_InterpreterInvocationHashesTheScript(t *testing.T) {
	spec := rulebook.CommandSpec{Command: []string{"python3"}, Args: []string{"check.py", "--strict"}}
	ref := spec.TrustReference()
	assert.Equal(t, "python3", ref.Interpreter)
	assert.Equal(t, "check.py", ref.FilePath)
	assert.Equal(t, []string{"--strict"}, ref.Args)
}

func TestTrustReference_DirectCommandHashesArgv0(t *testing.T) {
	spec := rulebook.CommandSpec{Command: []string{"git"}, Args: []string{"status", "--short"}}
	ref := spec.TrustReference()
	assert.Equal(t, "git", ref.FilePath)
	assert.Empty(t, ref.Interpreter)
}

func TestTrustReference_InterpreterFlagIsNotTreatedAsScript(t *testing.T) {
	spec := rulebook.CommandSpec{Command: []string{"python3"}, Args: []string{"--version"}}
	ref := spec.TrustReference()
	assert.Equal(t, "python3", ref.FilePath)
	assert.Empty(t, ref.Interpreter)
}

func TestTrustReference_EmptyArgvFallsBackToInline(t *testing.T) {
	spec := rulebook.CommandSpec{Raw: "git status"}
	ref := spec.TrustReference()
	assert.Equal(t, "git status", ref.Inline)
}
