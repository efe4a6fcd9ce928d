package sessionmgr

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shepherdjerred/clauderon/internal/hookingress"
)

// DispatchHook implements hookingress.Dispatcher. It advances a session's
// WorkingStatus in response to agent lifecycle signals and, while the
// session is Running, Idle or Working, mirrors it into the coarse Status
// (P8: Idle -> Working -> Idle on a prompt/tool/stop cycle). Unknown session ids are logged and dropped; a hook message
// racing a session's deletion is expected, not an error.
func (m *Manager) DispatchHook(msg hookingress.HookMessage) {
	ctx := context.Background()
	sess, err := m.store.GetSession(ctx, msg.SessionID)
	if err != nil {
		m.log.Debug("hook for unknown session dropped", "session_id", msg.SessionID, "event", msg.Event)
		return
	}

	next, ok := nextWorkingStatus(msg.Event)
	if !ok {
		m.log.Debug("unrecognized hook event", "session_id", msg.SessionID, "event", msg.Event)
		return
	}
	if next == sess.WorkingStatus {
		return
	}

	old := sess.WorkingStatus
	sess.WorkingStatus = next
	sess.UpdatedAt = time.Now().UTC()
	if sess.Status == StatusRunning || sess.Status == StatusIdle || sess.Status == StatusWorking {
		sess.Status = workingStatusToStatus(next)
	}

	if err := m.store.SaveSession(ctx, sess); err != nil {
		m.log.Warn("failed to persist working status", "session_id", msg.SessionID, "error", err)
		return
	}

	payload, _ := json.Marshal(struct {
		Old WorkingStatus `json:"old"`
		New WorkingStatus `json:"new"`
	}{Old: old, New: next})
	m.recordEvent(ctx, msg.SessionID, EventHook, payload)
	m.notify(StateEvent{Type: StateEventUpdate, SessionID: msg.SessionID, Snapshot: &sess})
}

// nextWorkingStatus maps a hook event kind to the WorkingStatus it drives
// a session into.
func nextWorkingStatus(event hookingress.EventKind) (WorkingStatus, bool) {
	switch event {
	case hookingress.EventUserPromptSubmit, hookingress.EventPreToolUse:
		return WorkingWorking, true
	case hookingress.EventStop, hookingress.EventIdlePrompt:
		return WorkingIdle, true
	case hookingress.EventPermissionRequest:
		return WorkingAwaitingPermission, true
	default:
		return "", false
	}
}

func workingStatusToStatus(ws WorkingStatus) Status {
	switch ws {
	case WorkingWorking, WorkingAwaitingPermission:
		return StatusWorking
	default:
		return StatusIdle
	}
}
