package harness

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/warden-run/warden/pkg/decision"
	"github.com/warden-run/warden/pkg/event"
)

// claudeAdapter implements the majority "permission-envelope" host
// protocol: hookSpecificOutput.permissionDecision in {allow,deny,ask}.
type claudeAdapter struct{}

type claudeEvent struct {
	HookEventName string         `json:"hook_event_name"`
	SessionID     string         `json:"session_id"`
	CWD           string         `json:"cwd"`
	ToolName      string         `json:"tool_name"`
	ToolInput     map[string]any `json:"tool_input"`
	ToolResponse  any            `json:"tool_response,omitempty"`
	Prompt        string         `json:"prompt,omitempty"`
	FilePath      string         `json:"file_path,omitempty"`
}

func (claudeAdapter) ParseEvent(raw []byte) (*event.Event, error) {
	var ce claudeEvent
	if err := json.Unmarshal(raw, &ce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ce.HookEventName == "" {
		return nil, fmt.Errorf("%w: missing hook_event_name", ErrMalformedEvent)
	}
	return &event.Event{
		HookEventName: ce.HookEventName,
		SessionID:     ce.SessionID,
		CWD:           ce.CWD,
		ToolName:      normalizeToolName(ce.ToolName),
		ToolInput:     ce.ToolInput,
		ToolResponse:  ce.ToolResponse,
		Prompt:        ce.Prompt,
		FilePath:      ce.FilePath,
	}, nil
}

func (claudeAdapter) FormatResponse(eventKind string, final decision.Final) ([]byte, error) {
	var permissionDecision string
	switch final.Kind {
	case decision.KindHalt, decision.KindDeny:
		permissionDecision = "deny"
	case decision.KindAsk:
		permissionDecision = "ask"
	default:
		permissionDecision = "allow"
	}

	hookOutput := map[string]any{
		"hookEventName":            eventKind,
		"permissionDecision":       permissionDecision,
		"permissionDecisionReason": final.PrimaryReason,
	}

	resp := map[string]any{"hookSpecificOutput": hookOutput}

	if len(final.Context) > 0 {
		hookOutput["additionalContext"] = strings.Join(final.Context, "\n")
	}

	return json.Marshal(resp)
}
