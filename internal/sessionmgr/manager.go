package sessionmgr

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/shepherdjerred/clauderon/internal/agentadapter"
	"github.com/shepherdjerred/clauderon/internal/authproxy"
	"github.com/shepherdjerred/clauderon/internal/clauderr"
	"github.com/shepherdjerred/clauderon/internal/execbackend"
	"github.com/shepherdjerred/clauderon/internal/gitbackend"
	"github.com/shepherdjerred/clauderon/internal/proxymgr"
)

// Store is the persistence contract the manager depends on. It matches
// internal/store.Store; declared locally so tests can supply a fake
// without importing the store package.
type Store interface {
	ListSessions(ctx context.Context) ([]Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (Session, error)
	SaveSession(ctx context.Context, sess Session) error
	DeleteSession(ctx context.Context, id uuid.UUID) error

	RecordEvent(ctx context.Context, event Event) error
	GetEvents(ctx context.Context, sessionID uuid.UUID) ([]Event, error)
	GetAllEvents(ctx context.Context) ([]Event, error)

	AddRecentRepo(ctx context.Context, repoPath, subdirectory string) error
	GetRecentRepos(ctx context.Context) ([]RecentRepo, error)

	GetSessionRepositories(ctx context.Context, sessionID uuid.UUID) ([]RepoRef, error)
	SaveSessionRepositories(ctx context.Context, sessionID uuid.UUID, repos []RepoRef) error
}

// StateEventType describes what kind of change a StateEvent carries.
type StateEventType int

const (
	StateEventUpdate StateEventType = iota
	StateEventRemoved
)

// StateEvent is broadcast to subscribers whenever a session changes.
type StateEvent struct {
	Type      StateEventType
	SessionID uuid.UUID
	Snapshot  *Session // nil for StateEventRemoved
}

// CreateOpts parameterizes session creation.
type CreateOpts struct {
	Name         string
	Repositories []RepoRef
	AgentType    AgentType
	BackendType  BackendType
	AccessMode   AccessMode

	Rules          []authproxy.Rule
	CredentialRefs map[string]string

	Prompt string
	Images []string
}

// Manager is the Session Manager: it owns the session state machine and
// coordinates the git, execution, and proxy backends so that a Session
// record in the store always corresponds to real, healthy resources.
type Manager struct {
	log   *slog.Logger
	store Store

	git      *gitbackend.Backend
	backends map[BackendType]execbackend.Backend
	proxies  *proxymgr.Manager
	adapters []agentadapter.Adapter

	worktreeRoot string

	mu          sync.RWMutex
	subscribers map[chan StateEvent]struct{}
}

// New wires a Session Manager from its collaborators. backends must
// contain an entry for every BackendType the daemon supports.
func New(
	log *slog.Logger,
	store Store,
	git *gitbackend.Backend,
	backends map[BackendType]execbackend.Backend,
	proxies *proxymgr.Manager,
	worktreeRoot string,
	adapters ...agentadapter.Adapter,
) *Manager {
	return &Manager{
		log:          log.With("component", "sessionmgr"),
		store:        store,
		git:          git,
		backends:     backends,
		proxies:      proxies,
		adapters:     adapters,
		worktreeRoot: worktreeRoot,
		subscribers:  make(map[chan StateEvent]struct{}),
	}
}

// Subscribe returns a channel that receives a StateEvent for every
// session change. The channel is buffered and drops the oldest pending
// event rather than blocking a slow consumer; callers must Unsubscribe.
func (m *Manager) Subscribe() chan StateEvent {
	ch := make(chan StateEvent, 32)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel.
func (m *Manager) Unsubscribe(ch chan StateEvent) {
	m.mu.Lock()
	delete(m.subscribers, ch)
	m.mu.Unlock()
}

func (m *Manager) notify(evt StateEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ch := range m.subscribers {
		select {
		case ch <- evt:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}
}

// List returns every live (non-deleted) session, oldest first.
func (m *Manager) List(ctx context.Context) ([]Session, error) {
	all, err := m.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	live := make([]Session, 0, len(all))
	for _, s := range all {
		if s.IsLive() {
			live = append(live, s)
		}
	}
	return live, nil
}

// Get returns a single session looked up by id or by name. idOrName is
// tried as a UUID first; if it doesn't parse as one, every live session's
// Name is checked for an exact match. Returns a NotFound clauderr.Error
// if neither resolves.
func (m *Manager) Get(ctx context.Context, idOrName string) (Session, error) {
	if id, err := uuid.Parse(idOrName); err == nil {
		sess, err := m.store.GetSession(ctx, id)
		if err != nil {
			return Session{}, clauderr.Wrap(clauderr.CodeNotFound, fmt.Sprintf("session %q", idOrName), err)
		}
		return sess, nil
	}

	all, err := m.List(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("listing sessions: %w", err)
	}
	for _, s := range all {
		if s.Name == idOrName {
			return s, nil
		}
	}
	return Session{}, clauderr.NotFound(fmt.Sprintf("session %q", idOrName))
}

// ProxyIsBound reports whether a proxy is currently live on port, for
// callers (such as tests) that need to check without going through the
// reconciler.
func (m *Manager) ProxyIsBound(port int) bool {
	return m.proxies.IsBound(port)
}

func (m *Manager) backendFor(sess Session) (execbackend.Backend, error) {
	b, ok := m.backends[sess.BackendType]
	if !ok {
		return nil, fmt.Errorf("no execution backend registered for %q", sess.BackendType)
	}
	return b, nil
}

func (m *Manager) adapterFor(sess Session) (agentadapter.Adapter, error) {
	a, ok := agentadapter.ByName(string(sess.AgentType), m.adapters...)
	if !ok {
		return nil, fmt.Errorf("no agent adapter registered for %q", sess.AgentType)
	}
	return a, nil
}

func (m *Manager) recordEvent(ctx context.Context, sessionID uuid.UUID, kind EventKind, payload []byte) {
	if err := m.store.RecordEvent(ctx, Event{SessionID: sessionID, Kind: kind, Payload: payload}); err != nil {
		m.log.Warn("failed to record event", "session_id", sessionID, "kind", kind, "error", err)
	}
}

// sessionWorktreePath derives a deterministic worktree directory for a
// session name, rooted under worktreeRoot.
func (m *Manager) sessionWorktreePath(name string) string {
	return filepath.Join(m.worktreeRoot, name)
}

func sanitizeBranchName(name string) string {
	replacer := strings.NewReplacer(" ", "-", "/", "-")
	return "clauderon/" + replacer.Replace(strings.ToLower(name))
}
