package rulebook_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-run/warden/pkg/rulebook"
)

func TestExpandBuiltins_SkipsDisabledBuiltins(t *testing.T) {
	rb := &rulebook.Rulebook{
		Builtins: map[string]map[string]any{
			rulebook.BuiltinGitBlockNoVerify: {"enabled": false},
		},
	}
	rules, err := rulebook.ExpandBuiltins(rb)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestExpandBuiltins_EmitsGitBlockNoVerify(t *testing.T) {
	rb := &rulebook.Rulebook{
		Builtins: map[string]map[string]any{
			rulebook.BuiltinGitBlockNoVerify: {"enabled": true},
		},
	}
	rules, err := rulebook.ExpandBuiltins(rb)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "builtin_git_block_no_verify.gen.rego", rules[0].Filename)
	assert.Contains(t, rules[0].Source, "BUILTIN-GIT-NO-VERIFY")
	assert.Contains(t, rules[0].Source, "package")
}

func TestExpandBuiltins_ProtectedPathsInjectsConfiguredPaths(t *testing.T) {
	rb := &rulebook.Rulebook{
		Builtins: map[string]map[string]any{
			rulebook.BuiltinProtectedPaths: {
				"enabled": true,
				"paths":   []any{"/etc", "/root/.ssh"},
			},
		},
	}
	rules, err := rulebook.ExpandBuiltins(rb)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Contains(t, rules[0].Source, "/etc")
	assert.Contains(t, rules[0].Source, "/root/.ssh")
}

func TestExpandBuiltins_MultipleBuiltinsEachProduceARule(t *testing.T) {
	rb := &rulebook.Rulebook{
		Builtins: map[string]map[string]any{
			rulebook.BuiltinGitBlockNoVerify: {"enabled": true},
			rulebook.BuiltinSystemProtection: {
				"enabled":     true,
				"directories": []any{"/etc", "/usr"},
			},
		},
	}
	rules, err := rulebook.ExpandBuiltins(rb)
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}
