package sessionmgr_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdjerred/clauderon/internal/gitbackend"
	"github.com/shepherdjerred/clauderon/internal/sessionmgr"
)

func TestReconcilerHealsMissingExecutionUnit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.mgr.Create(ctx, h.createOpts("zeta"))
	require.NoError(t, err)

	// Simulate the execution unit crashing out from under the session,
	// without the manager being told.
	require.NoError(t, h.exec.Delete(ctx, sess.ExecutionUnitID))

	r := sessionmgr.NewReconciler(h.mgr)
	pass, err := r.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, pass.Reports, 1)
	assert.Equal(t, sess.ID, pass.Reports[0].SessionID)
	assert.True(t, pass.Reports[0].Healed)
	assert.False(t, pass.Reports[0].GaveUp)

	healed, err := h.mgr.Get(ctx, sess.ID.String())
	require.NoError(t, err)
	exists, _ := h.exec.Exists(ctx, healed.ExecutionUnitID)
	assert.True(t, exists)
}

func TestReconcilerGivesUpAfterMaxAttempts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.mgr.Create(ctx, h.createOpts("eta"))
	require.NoError(t, err)

	// Delete the worktree out from under the session; the reconciler
	// refuses to silently recreate it, so every pass stays unhealthy
	// until the attempt ceiling is hit.
	gb, err := gitbackend.New()
	require.NoError(t, err)
	require.NoError(t, gb.DeleteWorktree(ctx, h.repo, sess.WorktreePath))

	r := sessionmgr.NewReconciler(h.mgr)
	var last sessionmgr.ReconcileReport
	for i := 0; i < sessionmgr.MaxReconcileAttempts+1; i++ {
		pass, err := r.ReconcileAll(ctx)
		require.NoError(t, err)
		require.Len(t, pass.Reports, 1)
		last = pass.Reports[0]
	}

	assert.True(t, last.GaveUp)
	failed, err := h.mgr.Get(ctx, sess.ID.String())
	require.NoError(t, err)
	assert.Equal(t, sessionmgr.StatusFailed, failed.Status)
}

func TestReconcilerNoopWhenHealthy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.mgr.Create(ctx, h.createOpts("theta"))
	require.NoError(t, err)

	r := sessionmgr.NewReconciler(h.mgr)
	pass, err := r.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, pass.Reports, 1)
	assert.False(t, pass.Reports[0].Healed)
	assert.False(t, pass.Reports[0].GaveUp)
	for _, p := range pass.Reports[0].Probes {
		assert.Truef(t, p.Healthy, "probe %s should be healthy", p.Name)
	}
	assert.Empty(t, pass.Orphans)
}

func TestReconcilerReportsOrphanedExecutionUnits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.mgr.Create(ctx, h.createOpts("iota"))
	require.NoError(t, err)

	// A unit with no backing session at all: e.g. left behind by a crash
	// between Create's execution-unit step and its session-persist step.
	require.NoError(t, h.exec.createOrphan(ctx, "clauderon-orphaned-unit"))

	r := sessionmgr.NewReconciler(h.mgr)
	pass, err := r.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Contains(t, pass.Orphans, "clauderon-orphaned-unit")
}
