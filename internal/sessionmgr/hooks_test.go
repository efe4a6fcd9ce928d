package sessionmgr_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdjerred/clauderon/internal/hookingress"
	"github.com/shepherdjerred/clauderon/internal/sessionmgr"
)

func TestDispatchHookTransitionsWorkingStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.mgr.Create(ctx, h.createOpts("iota"))
	require.NoError(t, err)
	require.Equal(t, sessionmgr.WorkingIdle, sess.WorkingStatus)

	h.mgr.DispatchHook(hookingress.HookMessage{
		SessionID: sess.ID, Event: hookingress.EventUserPromptSubmit, Timestamp: time.Now(),
	})
	working, err := h.mgr.Get(ctx, sess.ID.String())
	require.NoError(t, err)
	assert.Equal(t, sessionmgr.WorkingWorking, working.WorkingStatus)
	assert.Equal(t, sessionmgr.StatusWorking, working.Status)

	h.mgr.DispatchHook(hookingress.HookMessage{
		SessionID: sess.ID, Event: hookingress.EventStop, Timestamp: time.Now(),
	})
	idle, err := h.mgr.Get(ctx, sess.ID.String())
	require.NoError(t, err)
	assert.Equal(t, sessionmgr.WorkingIdle, idle.WorkingStatus)
	assert.Equal(t, sessionmgr.StatusIdle, idle.Status)
}

func TestDispatchHookPermissionRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.mgr.Create(ctx, h.createOpts("kappa"))
	require.NoError(t, err)

	h.mgr.DispatchHook(hookingress.HookMessage{
		SessionID: sess.ID, Event: hookingress.EventPermissionRequest, Timestamp: time.Now(),
	})
	got, err := h.mgr.Get(ctx, sess.ID.String())
	require.NoError(t, err)
	assert.Equal(t, sessionmgr.WorkingAwaitingPermission, got.WorkingStatus)
}

func TestDispatchHookUnknownSessionIsNoop(t *testing.T) {
	h := newHarness(t)
	h.mgr.DispatchHook(hookingress.HookMessage{
		Event: hookingress.EventStop, Timestamp: time.Now(),
	})
}
