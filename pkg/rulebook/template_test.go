package rulebook_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warden-run/warden/pkg/event"
	"github.com/warden-run/warden/pkg/rulebook"
)

func TestExpand(t *testing.T) {
	ctx := rulebook.TemplateContext{
		Event: &event.Event{
			SessionID: "s1",
			ToolName:  "Bash",
			ToolInput: map[string]any{"command": "git status"},
		},
		Matches: []string{"full", "git"},
		Now:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	got := rulebook.Expand("{{tool_name}} ran {{tool_input.command}} for {{session_id}} matched {{match.1}}", ctx)
	assert.Equal(t, "Bash ran git status for s1 matched git", got)
}

func TestExpand_UnknownPlaceholderIsEmpty(t *testing.T) {
	got := rulebook.Expand("{{nonsense}}", rulebook.TemplateContext{})
	assert.Equal(t, "", got)
}

func TestValidateNoPlaceholders(t *testing.T) {
	assert.NoError(t, rulebook.ValidateNoPlaceholders("/usr/bin/git"))
	assert.Error(t, rulebook.ValidateNoPlaceholders("{{env.HOME}}/bin/git"))
}
