package router_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warden-run/warden/pkg/metadata"
	"github.com/warden-run/warden/pkg/router"
)

func TestBuild_ToolSpecificRule(t *testing.T) {
	rules := []*metadata.Rule{
		{
			Custom:  metadata.Custom{ID: "BASH-001"},
			Routing: metadata.Routing{RequiredEvents: []string{"PreToolUse"}, RequiredTools: []string{"Bash"}},
		},
	}
	r := router.Build(rules)

	matched, _ := r.Match("PreToolUse", "Bash")
	assert.Len(t, matched, 1)
	assert.Equal(t, "BASH-001", matched[0].RuleID)

	matched, _ = r.Match("PreToolUse", "Read")
	assert.Empty(t, matched)
}

func TestBuild_ToolUnspecifiedFiresForEveryToolSeen(t *testing.T) {
	rules := []*metadata.Rule{
		{
			Custom:  metadata.Custom{ID: "GLOBAL-PROMPT-CHECK"},
			Routing: metadata.Routing{RequiredEvents: []string{"PreToolUse"}},
		},
		{
			Custom:  metadata.Custom{ID: "BASH-ONLY"},
			Routing: metadata.Routing{RequiredEvents: []string{"PreToolUse"}, RequiredTools: []string{"Bash"}},
		},
	}
	r := router.Build(rules)

	matched, _ := r.Match("PreToolUse", "Bash")
	ids := []string{matched[0].RuleID, matched[1].RuleID}
	assert.ElementsMatch(t, []string{"GLOBAL-PROMPT-CHECK", "BASH-ONLY"}, ids)
}

func TestMatch_UnionsRequiredSignals(t *testing.T) {
	rules := []*metadata.Rule{
		{
			Custom:  metadata.Custom{ID: "R1"},
			Routing: metadata.Routing{RequiredEvents: []string{"PreToolUse"}, RequiredTools: []string{"Bash"}, RequiredSignals: []string{"git_status"}},
		},
		{
			Custom:  metadata.Custom{ID: "R2"},
			Routing: metadata.Routing{RequiredEvents: []string{"PreToolUse"}, RequiredTools: []string{"Bash"}, RequiredSignals: []string{"git_status", "ci_state"}},
		},
	}
	r := router.Build(rules)
	_, signals := r.Match("PreToolUse", "Bash")
	assert.ElementsMatch(t, []string{"git_status", "ci_state"}, signals)
}
