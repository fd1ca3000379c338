// Package harness implements one adapter per supported host. An adapter
// is the only code permitted to know a host's JSON vocabulary; the rest
// of the engine operates entirely on event.Event and decision.Final.
package harness

import (
	"fmt"

	"github.com/warden-run/warden/pkg/decision"
	"github.com/warden-run/warden/pkg/event"
)

// Name identifies a supported host.
type Name string

const (
	Claude  Name = "claude"
	Cursor  Name = "cursor"
	Factory Name = "factory"
	OpenCode Name = "opencode"
)

// Adapter translates between one host's hook protocol and the engine's
// internal event/decision types.
type Adapter interface {
	ParseEvent(raw []byte) (*event.Event, error)
	// FormatResponse renders the host's response envelope. eventKind is
	// the original event's hook-event-name, needed by hosts whose
	// envelope echoes it back (it is not itself part of FinalDecision).
	FormatResponse(eventKind string, final decision.Final) ([]byte, error)
}

// ErrMalformedEvent is returned (wrapped) when stdin does not parse or
// the event-tag field is absent or empty, per §7.1. The tag's value is
// not checked against a list of known event kinds.
var ErrMalformedEvent = fmt.Errorf("malformed event")

// For selects the adapter for a named host.
func For(name Name) (Adapter, error) {
	switch name {
	case Claude:
		return claudeAdapter{}, nil
	case Cursor:
		return cursorAdapter{}, nil
	case Factory:
		return factoryAdapter{}, nil
	case OpenCode:
		return opencodeAdapter{}, nil
	default:
		return nil, fmt.Errorf("harness: unknown host %q", name)
	}
}

// toolNameAliases is the fixed, enumerated lowercase->PascalCase mapping
// the preprocessor applies; every adapter also applies it at parse time
// (a no-op for already-cased names) so downstream code always sees
// canonical casing.
var toolNameAliases = map[string]string{
	"bash":  "Bash",
	"read":  "Read",
	"write": "Write",
	"edit":  "Edit",
	"grep":  "Grep",
	"glob":  "Glob",
}

func normalizeToolName(name string) string {
	if canonical, ok := toolNameAliases[name]; ok {
		return canonical
	}
	return name
}
