// Package hookingress listens on a local Unix socket for newline-delimited
// JSON lifecycle messages reported by the agent CLI running inside a
// session's execution unit, and forwards validated messages to a Dispatcher
// (the Session Manager) over a bounded in-process channel.
package hookingress

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventKind is the set of lifecycle events an agent hook can report.
type EventKind string

const (
	EventUserPromptSubmit EventKind = "UserPromptSubmit"
	EventPreToolUse       EventKind = "PreToolUse"
	EventPermissionRequest EventKind = "PermissionRequest"
	EventStop             EventKind = "Stop"
	EventIdlePrompt       EventKind = "IdlePrompt"
)

// HookMessage is one line of newline-delimited JSON received on the hook
// socket, matching the wire schema in spec.md §3/§6.
type HookMessage struct {
	SessionID uuid.UUID       `json:"session_id"`
	Event     EventKind       `json:"event"`
	ToolName  string          `json:"tool_name,omitempty"` // set only when Event == PreToolUse
	Timestamp time.Time       `json:"timestamp"`
}

// UnmarshalJSON supports both the flat shape above and the tagged
// `{"type":"PreToolUse","data":{"tool_name":"bash"}}` shape used by the
// original hook emitter, so either encoding of a PreToolUse event parses.
func (m *HookMessage) UnmarshalJSON(data []byte) error {
	type wire struct {
		SessionID uuid.UUID       `json:"session_id"`
		Event     json.RawMessage `json:"event"`
		ToolName  string          `json:"tool_name"`
		Timestamp time.Time       `json:"timestamp"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.SessionID = w.SessionID
	m.ToolName = w.ToolName
	m.Timestamp = w.Timestamp

	// Try the simple string form first: "event": "Stop"
	var simple EventKind
	if err := json.Unmarshal(w.Event, &simple); err == nil {
		m.Event = simple
		return nil
	}

	// Fall back to the tagged-union form: "event": {"type":"PreToolUse","data":{"tool_name":"bash"}}
	var tagged struct {
		Type string `json:"type"`
		Data struct {
			ToolName string `json:"tool_name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Event, &tagged); err != nil {
		return err
	}
	m.Event = EventKind(tagged.Type)
	m.ToolName = tagged.Data.ToolName
	return nil
}

// Dispatcher receives validated hook messages. The Session Manager
// implements this to drive WorkingStatus transitions (spec.md §4.1/§4.3).
type Dispatcher interface {
	DispatchHook(msg HookMessage)
}
