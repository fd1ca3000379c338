package metadata_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-run/warden/pkg/metadata"
)

const sampleRule = `# METADATA
# scope: package
# title: Block dangerous bash
# routing:
#   required_events: ["PreToolUse"]
#   required_tools: ["Bash"]
#   required_signals: ["git_status"]
# custom:
#   severity: CRITICAL
#   id: BASH-001-HALT
package bash_guard

deny contains decision if { ... }
`

func TestExtract(t *testing.T) {
	rule, err := metadata.Extract("bash_guard.rego", []byte(sampleRule))
	require.NoError(t, err)
	assert.Equal(t, metadata.ScopePackage, rule.Scope)
	assert.Equal(t, []string{"PreToolUse"}, rule.Routing.RequiredEvents)
	assert.Equal(t, []string{"Bash"}, rule.Routing.RequiredTools)
	assert.Equal(t, "BASH-001-HALT", rule.Custom.ID)
	assert.NoError(t, rule.Validate())
}

func TestExtract_NoBlock(t *testing.T) {
	_, err := metadata.Extract("x.rego", []byte("package x\n"))
	assert.True(t, errors.Is(err, metadata.ErrNoMetadata))
}

func TestValidate_MissingRequiredEventsRejected(t *testing.T) {
	rule := &metadata.Rule{Scope: metadata.ScopePackage, SourcePath: "bad.rego"}
	err := rule.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing routing.required_events")
}
