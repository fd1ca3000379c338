package harness

import (
	"encoding/json"
	"fmt"

	"github.com/warden-run/warden/pkg/decision"
	"github.com/warden-run/warden/pkg/event"
)

// cursorAdapter implements the Cursor-style host protocol: two distinct
// messages, userMessage and agentMessage.
type cursorAdapter struct{}

type cursorEvent struct {
	HookEventName string         `json:"hookEventName"`
	SessionID     string         `json:"sessionId"`
	Cwd           string         `json:"workspaceRoot"`
	ToolName      string         `json:"toolName"`
	ToolInput     map[string]any `json:"toolInput"`
}

func (cursorAdapter) ParseEvent(raw []byte) (*event.Event, error) {
	var ce cursorEvent
	if err := json.Unmarshal(raw, &ce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ce.HookEventName == "" {
		return nil, fmt.Errorf("%w: missing hookEventName", ErrMalformedEvent)
	}
	return &event.Event{
		HookEventName: ce.HookEventName,
		SessionID:     ce.SessionID,
		CWD:           ce.Cwd,
		ToolName:      normalizeToolName(ce.ToolName),
		ToolInput:     ce.ToolInput,
	}, nil
}

func (cursorAdapter) FormatResponse(_ string, final decision.Final) ([]byte, error) {
	var permission string
	switch final.Kind {
	case decision.KindHalt, decision.KindDeny:
		permission = "deny"
	case decision.KindAsk:
		permission = "ask"
	default:
		permission = "allow"
	}

	agentMessage := final.PrimaryContext
	if agentMessage == "" {
		agentMessage = final.PrimaryReason
	}

	return json.Marshal(map[string]any{
		"permission":   permission,
		"userMessage":  final.PrimaryReason,
		"agentMessage": agentMessage,
	})
}
