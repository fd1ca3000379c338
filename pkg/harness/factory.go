package harness

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/warden-run/warden/pkg/decision"
	"github.com/warden-run/warden/pkg/event"
)

// factoryAdapter implements the "continue-envelope" host protocol:
// {continue, stopReason} plus an optional additionalContext field on
// events that support context injection.
type factoryAdapter struct{}

type factoryEvent struct {
	Event     string         `json:"event"`
	SessionID string         `json:"session_id"`
	Cwd       string         `json:"cwd"`
	Tool      string         `json:"tool"`
	ToolInput map[string]any `json:"tool_input"`
}

func (factoryAdapter) ParseEvent(raw []byte) (*event.Event, error) {
	var fe factoryEvent
	if err := json.Unmarshal(raw, &fe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if fe.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrMalformedEvent)
	}
	return &event.Event{
		HookEventName: fe.Event,
		SessionID:     fe.SessionID,
		CWD:           fe.Cwd,
		ToolName:      normalizeToolName(fe.Tool),
		ToolInput:     fe.ToolInput,
	}, nil
}

func (factoryAdapter) FormatResponse(_ string, final decision.Final) ([]byte, error) {
	cont := true
	var stopReason string
	switch final.Kind {
	case decision.KindHalt, decision.KindDeny:
		cont = false
		stopReason = final.PrimaryReason
	case decision.KindAsk:
		cont = false
		stopReason = final.Question
		if stopReason == "" {
			stopReason = final.PrimaryReason
		}
	}

	resp := map[string]any{"continue": cont}
	if stopReason != "" {
		resp["stopReason"] = stopReason
	}
	if len(final.Context) > 0 {
		resp["hookSpecificOutput"] = map[string]any{"additionalContext": strings.Join(final.Context, "\n")}
	}

	return json.Marshal(resp)
}
