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

// Create provisions a brand-new session: a git worktree, an auth proxy,
// and an execution unit, in that order. If any step fails, everything
// already created is torn down in reverse order (execution unit, then
// proxy together with its allocated port, which proxymgr.Destroy takes
// care of, then worktree) so a failed Create never leaves orphaned
// resources (P2).
func (m *Manager) Create(ctx context.Context, opts CreateOpts) (Session, error) {
	if len(opts.Repositories) == 0 {
		return Session{}, clauderr.InvalidInput("a session requires at least one repository")
	}
	if _, err := m.backendFor(Session{BackendType: opts.BackendType}); err != nil {
		return Session{}, clauderr.InvalidInput(err.Error())
	}
	adapter, err := m.adapterFor(Session{AgentType: opts.AgentType})
	if err != nil {
		return Session{}, clauderr.InvalidInput(err.Error())
	}
	if !m.git.IsRepository(ctx, opts.Repositories[0].RepoPath) {
		return Session{}, clauderr.InvalidInput(fmt.Sprintf("%s is not a git repository", opts.Repositories[0].RepoPath))
	}

	now := time.Now().UTC()
	sess := Session{
		ID:            uuid.New(),
		Name:          opts.Name,
		Repositories:  opts.Repositories,
		WorktreePath:  m.sessionWorktreePath(opts.Name),
		Branch:        sanitizeBranchName(opts.Name),
		AgentType:     opts.AgentType,
		BackendType:   opts.BackendType,
		Status:        StatusCreating,
		WorkingStatus: WorkingUnknown,
		AccessMode:    opts.AccessMode,
		ResourceState: ResourceMissing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if sess.AccessMode == "" {
		sess.AccessMode = AccessReadWrite
	}

	primary := sess.PrimaryRepo()
	if err := m.git.CreateWorktree(ctx, primary.RepoPath, sess.WorktreePath, sess.Branch); err != nil {
		return Session{}, fmt.Errorf("creating worktree: %w", err)
	}

	backend, _ := m.backendFor(sess)
	argv := adapter.StartCommand(agentadapter.StartOptions{
		Prompt: opts.Prompt,
		Images: opts.Images,
	})

	proxy, err := m.proxies.Create(ctx, proxymgr.CreateOpts{
		SessionID:      sess.ID,
		Rules:          opts.Rules,
		CredentialRefs: opts.CredentialRefs,
		AccessMode:     string(sess.AccessMode),
		Agent:          string(sess.AgentType),
	})
	if err != nil {
		_ = m.git.DeleteWorktree(ctx, primary.RepoPath, sess.WorktreePath)
		return Session{}, fmt.Errorf("starting auth proxy: %w", err)
	}

	createOpts := execbackend.CreateOptions{Images: opts.Images}
	if sess.AgentType == AgentCodex {
		authJSON, err := authproxy.DummyAuthJSON(sess.ID.String())
		if err != nil {
			m.proxies.Destroy(sess.ID)
			_ = m.git.DeleteWorktree(ctx, primary.RepoPath, sess.WorktreePath)
			return Session{}, fmt.Errorf("rendering codex auth: %w", err)
		}
		createOpts.CodexAuth = &execbackend.CodexAuth{
			AuthJSON:   authJSON,
			ConfigTOML: authproxy.DummyConfigTOML(),
		}
	}

	unitID, err := backend.Create(ctx, unitName(sess.ID), sess.WorktreePath, argv, createOpts,
		&execbackend.ProxyConfig{CACertPEM: m.proxies.CACertPEM(), Port: proxy.Port})
	if err != nil {
		m.proxies.Destroy(sess.ID)
		_ = m.git.DeleteWorktree(ctx, primary.RepoPath, sess.WorktreePath)
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
		_ = m.git.DeleteWorktree(ctx, primary.RepoPath, sess.WorktreePath)
		return Session{}, fmt.Errorf("persisting session: %w", err)
	}
	if err := m.store.AddRecentRepo(ctx, primary.RepoPath, primary.Subdirectory); err != nil {
		m.log.Warn("failed to record recent repo", "error", err)
	}

	payload, _ := json.Marshal(sess)
	m.recordEvent(ctx, sess.ID, EventCreated, payload)
	m.notify(StateEvent{Type: StateEventUpdate, SessionID: sess.ID, Snapshot: &sess})

	m.log.Info("session created", "session_id", sess.ID, "name", sess.Name, "agent", sess.AgentType, "backend", sess.BackendType)
	return sess, nil
}

// unitName derives the execution unit's name from the session id, stable
// for the lifetime of the session and safe as a container/tmux name.
func unitName(id uuid.UUID) string {
	return "clauderon-" + id.String()
}
