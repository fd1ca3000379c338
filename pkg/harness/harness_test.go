package harness_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-run/warden/pkg/decision"
	"github.com/warden-run/warden/pkg/harness"
)

func TestClaudeAdapter_SafeBashAllows(t *testing.T) {
	adapter, err := harness.For(harness.Claude)
	require.NoError(t, err)

	raw := []byte(`{"hook_event_name":"PreToolUse","session_id":"s1","cwd":"/tmp","tool_name":"Bash","tool_input":{"command":"git status"}}`)
	ev, err := adapter.ParseEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "Bash", ev.ToolName)

	out, err := adapter.FormatResponse(ev.HookEventName, decision.Final{Kind: decision.KindAllow})
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(out, &resp))
	hso := resp["hookSpecificOutput"].(map[string]any)
	assert.Equal(t, "allow", hso["permissionDecision"])
	assert.Equal(t, "PreToolUse", hso["hookEventName"])
}

func TestClaudeAdapter_HaltDeniesWithReason(t *testing.T) {
	adapter, _ := harness.For(harness.Claude)
	out, err := adapter.FormatResponse("PreToolUse", decision.Final{
		Kind:          decision.KindHalt,
		PrimaryReason: "EMERGENCY HALT: rm -rf /",
		PrimaryRuleID: "BASH-001-HALT",
	})
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(out, &resp))
	hso := resp["hookSpecificOutput"].(map[string]any)
	assert.Equal(t, "deny", hso["permissionDecision"])
	assert.Contains(t, hso["permissionDecisionReason"], "EMERGENCY HALT")
}

func TestOpenCodeAdapter_AskConvertsToDeny(t *testing.T) {
	adapter, _ := harness.For(harness.OpenCode)
	out, err := adapter.FormatResponse("pretooluse", decision.Final{
		Kind:          decision.KindAsk,
		PrimaryReason: "this touches production config",
	})
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "deny", resp["decision"])
	assert.Contains(t, resp["reason"], "Approval Required")
	assert.Contains(t, resp["reason"], "this touches production config")
}

func TestClaudeAdapter_MalformedEventRejected(t *testing.T) {
	adapter, _ := harness.For(harness.Claude)
	_, err := adapter.ParseEvent([]byte(`{"session_id":"s1"}`))
	require.Error(t, err)
}

func TestCursorAdapter_AgentContextFallsBackToReason(t *testing.T) {
	adapter, _ := harness.For(harness.Cursor)
	out, err := adapter.FormatResponse("", decision.Final{Kind: decision.KindDeny, PrimaryReason: "blocked"})
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "deny", resp["permission"])
	assert.Equal(t, "blocked", resp["agentMessage"])
}
