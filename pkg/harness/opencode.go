package harness

import (
	"encoding/json"
	"fmt"

	"github.com/warden-run/warden/pkg/decision"
	"github.com/warden-run/warden/pkg/event"
)

// opencodeAdapter implements the plugin-style host protocol. Its plugin
// runtime translates a "deny" decision into a thrown error, and has no
// native concept of "ask" — per §8 scenario 5, ask is converted to deny
// with an explanatory wrapper message.
type opencodeAdapter struct{}

type opencodeEvent struct {
	Kind      string         `json:"kind"`
	SessionID string         `json:"session_id"`
	Cwd       string         `json:"cwd"`
	Tool      string         `json:"tool"`
	Input     map[string]any `json:"input"`
}

func (opencodeAdapter) ParseEvent(raw []byte) (*event.Event, error) {
	var oe opencodeEvent
	if err := json.Unmarshal(raw, &oe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if oe.Kind == "" {
		return nil, fmt.Errorf("%w: missing kind", ErrMalformedEvent)
	}
	return &event.Event{
		HookEventName: oe.Kind,
		SessionID:     oe.SessionID,
		CWD:           oe.Cwd,
		ToolName:      normalizeToolName(oe.Tool),
		ToolInput:     oe.Input,
	}, nil
}

func (opencodeAdapter) FormatResponse(_ string, final decision.Final) ([]byte, error) {
	decisionStr := "allow"
	reason := final.PrimaryReason

	switch final.Kind {
	case decision.KindHalt:
		decisionStr = "deny"
	case decision.KindDeny:
		decisionStr = "deny"
	case decision.KindAsk:
		decisionStr = "deny"
		reason = fmt.Sprintf("Approval Required\n\n%s\n\nThis operation requires manual approval.", final.PrimaryReason)
	}

	resp := map[string]any{
		"decision": decisionStr,
		"reason":   reason,
	}
	if len(final.Context) > 0 {
		resp["context"] = final.Context
	}
	return json.Marshal(resp)
}
