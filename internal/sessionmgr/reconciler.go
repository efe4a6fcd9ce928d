package sessionmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/shepherdjerred/clauderon/internal/agentadapter"
	"github.com/shepherdjerred/clauderon/internal/execbackend"
)

// ProbeResult is one reconciler probe's finding for a single session.
type ProbeResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// ReconcileReport summarizes one reconciliation pass over one session.
type ReconcileReport struct {
	SessionID uuid.UUID     `json:"sessionId"`
	Probes    []ProbeResult `json:"probes"`
	Healed    bool          `json:"healed"`
	GaveUp    bool          `json:"gaveUp"`
}

// ReconcilePass is the result of one ReconcileAll call: a per-session
// report plus the execution units discovered on the backends that
// don't belong to any live session (spec step 4, "orphan detection").
type ReconcilePass struct {
	Reports []ReconcileReport `json:"reports"`
	Orphans []string          `json:"orphans,omitempty"`
}

// Reconciler periodically (and on-demand) compares each live session's
// declared state against the real world and reports drift: a worktree
// deleted out of band, an execution unit that crashed, a proxy that is
// not bound, or an orphaned execution unit with no matching session. Of
// these it restarts only a crashed execution unit; a missing worktree or
// proxy is not re-created, and counts toward the attempt ceiling. It runs
// five probes per session, in order:
//  1. worktree existence (gitbackend)
//  2. execution unit existence (execbackend)
//  3. proxy port binding (proxymgr)
//  4. orphan detection (execution units with no matching live session)
//  5. attempt-count ceiling (MaxReconcileAttempts before giving up)
type Reconciler struct {
	mgr    *Manager
	log    *slog.Logger
	notify chan struct{}
}

// NewReconciler creates a reconciler bound to mgr.
func NewReconciler(mgr *Manager) *Reconciler {
	return &Reconciler{
		mgr:    mgr,
		log:    mgr.log.With("component", "reconciler"),
		notify: make(chan struct{}, 1),
	}
}

// Notify wakes the reconciler to run a pass immediately. Non-blocking;
// coalesces multiple signals into one pass.
func (r *Reconciler) Notify() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Run blocks, reconciling every 30 seconds or whenever Notify fires,
// until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.notify:
		case <-ticker.C:
		}
		if pass, err := r.ReconcileAll(ctx); err != nil {
			r.log.Error("reconciliation pass failed", "error", err)
		} else if len(pass.Orphans) > 0 {
			r.log.Warn("reconciler found orphaned execution units", "orphans", pass.Orphans)
		}
	}
}

// ReconcileAll runs one pass over every live session.
func (r *Reconciler) ReconcileAll(ctx context.Context) (ReconcilePass, error) {
	sessions, err := r.mgr.List(ctx)
	if err != nil {
		return ReconcilePass{}, fmt.Errorf("listing sessions for reconciliation: %w", err)
	}

	orphans, err := r.collectOrphans(ctx, sessions)
	if err != nil {
		r.log.Warn("orphan detection failed", "error", err)
	}

	reports := make([]ReconcileReport, 0, len(sessions))
	for _, sess := range sessions {
		if sess.Status == StatusArchived || sess.Status == StatusPending || sess.Status == StatusCreating {
			continue
		}
		reports = append(reports, r.reconcileOne(ctx, sess, orphans))
	}

	orphanNames := make([]string, 0, len(orphans))
	for name := range orphans {
		orphanNames = append(orphanNames, name)
	}
	sort.Strings(orphanNames)

	return ReconcilePass{Reports: reports, Orphans: orphanNames}, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, sess Session, orphans map[string]bool) ReconcileReport {
	report := ReconcileReport{SessionID: sess.ID}

	primary := sess.PrimaryRepo()
	worktreeOK := r.mgr.git.WorktreeExists(ctx, primary.RepoPath, sess.WorktreePath)
	report.Probes = append(report.Probes, ProbeResult{Name: "worktree", Healthy: worktreeOK})

	unitOK := false
	if backend, err := r.mgr.backendFor(sess); err == nil && sess.ExecutionUnitID != "" {
		unitOK, _ = backend.Exists(ctx, sess.ExecutionUnitID)
	}
	report.Probes = append(report.Probes, ProbeResult{Name: "execution_unit", Healthy: unitOK})

	proxyOK := sess.ProxyPort != 0 && r.mgr.proxies.IsBound(sess.ProxyPort)
	report.Probes = append(report.Probes, ProbeResult{Name: "proxy", Healthy: proxyOK})

	orphaned := orphans[sess.ExecutionUnitID]
	report.Probes = append(report.Probes, ProbeResult{Name: "orphan", Healthy: !orphaned})

	allHealthy := worktreeOK && unitOK && proxyOK && !orphaned
	report.Probes = append(report.Probes, ProbeResult{
		Name:    "attempts",
		Healthy: sess.ReconcileAttempts < MaxReconcileAttempts,
		Detail:  fmt.Sprintf("%d/%d", sess.ReconcileAttempts, MaxReconcileAttempts),
	})

	if allHealthy {
		if sess.ResourceState != ResourcePresent {
			sess.ResourceState = ResourcePresent
			sess.ReconcileAttempts = 0
			sess.UpdatedAt = time.Now().UTC()
			if err := r.mgr.store.SaveSession(ctx, sess); err != nil {
				r.log.Warn("failed to persist healed session", "session_id", sess.ID, "error", err)
			}
			report.Healed = true
		}
		return report
	}

	if !worktreeOK {
		sess.ResourceState = ResourceMissing
	} else if orphaned {
		sess.ResourceState = ResourceOrphaned
	} else {
		sess.ResourceState = ResourceMissing
	}

	if sess.ReconcileAttempts >= MaxReconcileAttempts {
		sess.Status = StatusFailed
		sess.UpdatedAt = time.Now().UTC()
		if err := r.mgr.store.SaveSession(ctx, sess); err != nil {
			r.log.Warn("failed to persist failed session", "session_id", sess.ID, "error", err)
		}
		r.mgr.recordEvent(ctx, sess.ID, EventReconcileAttempt, mustJSON(report))
		r.mgr.notify(StateEvent{Type: StateEventUpdate, SessionID: sess.ID, Snapshot: &sess})
		report.GaveUp = true
		r.log.Warn("reconciler gave up on session", "session_id", sess.ID, "attempts", sess.ReconcileAttempts)
		return report
	}

	healed := r.attemptHeal(ctx, &sess, worktreeOK, unitOK, proxyOK)
	sess.ReconcileAttempts++
	sess.UpdatedAt = time.Now().UTC()
	if err := r.mgr.store.SaveSession(ctx, sess); err != nil {
		r.log.Warn("failed to persist reconciled session", "session_id", sess.ID, "error", err)
	}
	r.mgr.recordEvent(ctx, sess.ID, EventReconcileAttempt, mustJSON(report))
	r.mgr.notify(StateEvent{Type: StateEventUpdate, SessionID: sess.ID, Snapshot: &sess})
	report.Healed = healed
	return report
}

// attemptHeal tries to restore a missing execution unit. It never
// touches the worktree (a missing worktree means the user deleted real
// work out of band; recreating it silently would be surprising), and a
// missing proxy is only logged, not re-created.
func (r *Reconciler) attemptHeal(ctx context.Context, sess *Session, worktreeOK, unitOK, proxyOK bool) bool {
	if !worktreeOK {
		return false
	}

	healedAny := false
	if !proxyOK {
		if _, ok := r.mgr.proxies.Get(sess.ID); !ok {
			r.log.Info("reconciler found proxy missing; not re-created", "session_id", sess.ID)
		}
	}
	if !unitOK {
		backend, err := r.mgr.backendFor(*sess)
		if err != nil {
			return false
		}
		adapter, err := r.mgr.adapterFor(*sess)
		if err != nil {
			return false
		}
		if sess.ExecutionUnitID != "" {
			_ = backend.Delete(ctx, sess.ExecutionUnitID)
		}
		argv := adapter.StartCommand(agentadapter.StartOptions{SessionID: sess.ID.String()})
		unitID, err := backend.Create(ctx, unitName(sess.ID), sess.WorktreePath, argv, execbackend.CreateOptions{}, nil)
		if err != nil {
			r.log.Warn("reconciler failed to restart execution unit", "session_id", sess.ID, "error", err)
			return healedAny
		}
		sess.ExecutionUnitID = unitID
		healedAny = true
	}
	return healedAny
}

// unitLister is implemented by execution backends that can enumerate
// their own live units, so collectOrphans works against any backend
// (including test fakes) rather than a fixed set of concrete types.
type unitLister interface {
	ListUnitNames(ctx context.Context) ([]string, error)
}

// collectOrphans returns the set of execution unit identifiers observed
// on each configured backend that do not correspond to any live
// session's ExecutionUnitID.
func (r *Reconciler) collectOrphans(ctx context.Context, sessions []Session) (map[string]bool, error) {
	known := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		if s.ExecutionUnitID != "" {
			known[s.ExecutionUnitID] = true
		}
	}

	orphans := make(map[string]bool)
	for _, backend := range r.mgr.backends {
		lister, ok := backend.(unitLister)
		if !ok {
			continue
		}
		names, err := lister.ListUnitNames(ctx)
		if err != nil {
			return orphans, err
		}
		for _, n := range names {
			if !known[n] {
				orphans[n] = true
			}
		}
	}
	return orphans, nil
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
