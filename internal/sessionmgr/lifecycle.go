package sessionmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shepherdjerred/clauderon/internal/agentadapter"
	"github.com/shepherdjerred/clauderon/internal/authproxy"
	"github.com/shepherdjerred/clauderon/internal/clauderr"
	"github.com/shepherdjerred/clauderon/internal/execbackend"
	"github.com/shepherdjerred/clauderon/internal/proxymgr"
)

// Delete tears down a session's resources (execution unit, proxy,
// worktree) and marks it Deleted in the store. Deletion is idempotent at
// every backend step: a resource that is already gone is not an error.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return err
	}

	if backend, err := m.backendFor(sess); err == nil && sess.ExecutionUnitID != "" {
		if err := backend.Delete(ctx, sess.ExecutionUnitID); err != nil {
			m.log.Warn("failed to delete execution unit", "session_id", id, "error", err)
		}
	}
	m.proxies.Destroy(sess.ID)
	if primary := sess.PrimaryRepo(); primary.RepoPath != "" {
		if err := m.git.DeleteWorktree(ctx, primary.RepoPath, sess.WorktreePath); err != nil {
			m.log.Warn("failed to delete worktree", "session_id", id, "error", err)
		}
	}

	sess.Status = StatusDeleted
	sess.UpdatedAt = time.Now().UTC()
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("marking session %s deleted: %w", id, err)
	}

	m.recordEvent(ctx, id, EventDeleted, nil)
	m.notify(StateEvent{Type: StateEventRemoved, SessionID: id})
	m.log.Info("session deleted", "session_id", id)
	return nil
}

// Archive stops a session's execution unit and proxy but preserves its
// worktree, so it can later be Unarchived without re-cloning.
func (m *Manager) Archive(ctx context.Context, id uuid.UUID) error {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if sess.Status == StatusArchived {
		return nil
	}

	if backend, err := m.backendFor(sess); err == nil && sess.ExecutionUnitID != "" {
		if err := backend.Delete(ctx, sess.ExecutionUnitID); err != nil {
			return fmt.Errorf("stopping execution unit: %w", err)
		}
	}
	m.proxies.Destroy(sess.ID)

	sess.ExecutionUnitID = ""
	sess.ProxyPort = 0
	sess.Status = StatusArchived
	sess.ResourceState = ResourceMissing
	sess.UpdatedAt = time.Now().UTC()
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("persisting archived session %s: %w", id, err)
	}

	m.recordEvent(ctx, id, EventArchived, nil)
	m.notify(StateEvent{Type: StateEventUpdate, SessionID: id, Snapshot: &sess})
	m.log.Info("session archived", "session_id", id)
	return nil
}

// UnarchiveOpts carries the proxy configuration needed to re-provision a
// session, since archiving tears the proxy down and forgets its rules.
type UnarchiveOpts struct {
	Rules          []authproxy.Rule
	CredentialRefs map[string]string
}

// Unarchive re-provisions an execution unit and proxy for a previously
// archived session, reusing its existing worktree and branch.
func (m *Manager) Unarchive(ctx context.Context, id uuid.UUID, opts UnarchiveOpts) (Session, error) {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.Status != StatusArchived {
		return Session{}, clauderr.InvalidInput(fmt.Sprintf("session %s is not archived", id))
	}

	adapter, err := m.adapterFor(sess)
	if err != nil {
		return Session{}, clauderr.InvalidInput(err.Error())
	}
	backend, err := m.backendFor(sess)
	if err != nil {
		return Session{}, clauderr.InvalidInput(err.Error())
	}

	proxy, err := m.proxies.Create(ctx, proxymgr.CreateOpts{
		SessionID:      sess.ID,
		Rules:          opts.Rules,
		CredentialRefs: opts.CredentialRefs,
		AccessMode:     string(sess.AccessMode),
		Agent:          string(sess.AgentType),
	})
	if err != nil {
		return Session{}, fmt.Errorf("starting auth proxy: %w", err)
	}

	argv := adapter.StartCommand(agentadapter.StartOptions{SessionID: sess.ID.String()})
	unitID, err := backend.Create(ctx, unitName(sess.ID), sess.WorktreePath, argv, execbackend.CreateOptions{},
		&execbackend.ProxyConfig{CACertPEM: m.proxies.CACertPEM(), Port: proxy.Port})
	if err != nil {
		m.proxies.Destroy(sess.ID)
		return Session{}, fmt.Errorf("creating execution unit: %w", err)
	}

	sess.ExecutionUnitID = unitID
	sess.ProxyPort = proxy.Port
	sess.Status = StatusRunning
	sess.WorkingStatus = WorkingIdle
	sess.ResourceState = ResourcePresent
	sess.UpdatedAt = time.Now().UTC()
	if err := m.store.SaveSession(ctx, sess); err != nil {
		backend.Delete(ctx, unitID)
		m.proxies.Destroy(sess.ID)
		return Session{}, fmt.Errorf("persisting unarchived session %s: %w", id, err)
	}

	m.recordEvent(ctx, id, EventUnarchived, nil)
	m.notify(StateEvent{Type: StateEventUpdate, SessionID: id, Snapshot: &sess})
	m.log.Info("session unarchived", "session_id", id)
	return sess, nil
}

// Refresh sends a follow-up prompt to an already-running session by
// restarting its agent process with --resume (or the agent's equivalent),
// keeping the same worktree, execution unit name, and proxy.
func (m *Manager) Refresh(ctx context.Context, id uuid.UUID, prompt string, images []string) error {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if sess.Status != StatusRunning && sess.Status != StatusIdle && sess.Status != StatusWorking {
		return clauderr.InvalidInput(fmt.Sprintf("session %s is not running", id))
	}

	adapter, err := m.adapterFor(sess)
	if err != nil {
		return clauderr.InvalidInput(err.Error())
	}
	backend, err := m.backendFor(sess)
	if err != nil {
		return clauderr.InvalidInput(err.Error())
	}

	argv := adapter.StartCommand(agentadapter.StartOptions{
		Prompt:    prompt,
		Images:    images,
		SessionID: sess.ID.String(),
	})

	if sess.ExecutionUnitID != "" {
		if err := backend.Delete(ctx, sess.ExecutionUnitID); err != nil {
			m.log.Warn("failed to stop execution unit before refresh", "session_id", id, "error", err)
		}
	}

	var proxyCfg *execbackend.ProxyConfig
	if proxy, ok := m.proxies.Get(sess.ID); ok {
		proxyCfg = &execbackend.ProxyConfig{CACertPEM: m.proxies.CACertPEM(), Port: proxy.Port}
	}

	unitID, err := backend.Create(ctx, unitName(sess.ID), sess.WorktreePath, argv, execbackend.CreateOptions{}, proxyCfg)
	if err != nil {
		return fmt.Errorf("restarting execution unit: %w", err)
	}

	old := sess.Status
	sess.ExecutionUnitID = unitID
	sess.Status = StatusWorking
	sess.WorkingStatus = WorkingWorking
	sess.UpdatedAt = time.Now().UTC()
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("persisting refreshed session %s: %w", id, err)
	}

	payload, _ := json.Marshal(StatusChangedPayload{Old: old, New: StatusWorking})
	m.recordEvent(ctx, id, EventStatusChanged, payload)
	m.notify(StateEvent{Type: StateEventUpdate, SessionID: id, Snapshot: &sess})
	m.log.Info("session refreshed", "session_id", id)
	return nil
}

// Attach returns the argv a client should exec locally to attach an
// interactive terminal to the session's execution unit.
func (m *Manager) Attach(ctx context.Context, id uuid.UUID) ([]string, error) {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	backend, err := m.backendFor(sess)
	if err != nil {
		return nil, clauderr.InvalidInput(err.Error())
	}
	return backend.AttachCommand(ctx, sess.ExecutionUnitID)
}
