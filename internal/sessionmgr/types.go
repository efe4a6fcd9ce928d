// Package sessionmgr implements the Session Manager: the state machine,
// reconciler, and event log that keep declared sessions in agreement with
// the real world (worktrees, execution units, proxies) across restarts and
// partial failures.
package sessionmgr

import (
	"time"

	"github.com/google/uuid"
)

// AgentType identifies which AI coding agent CLI a session drives.
type AgentType string

const (
	AgentClaude AgentType = "claude"
	AgentCodex  AgentType = "codex"
	AgentGemini AgentType = "gemini"
)

// BackendType identifies which execution backend hosts a session.
type BackendType string

const (
	BackendContainer    BackendType = "container"
	BackendMultiplexer  BackendType = "multiplexer-pane"
)

// Status is the coarse lifecycle state of a session.
type Status string

const (
	StatusPending  Status = "pending"
	StatusCreating Status = "creating"
	StatusRunning  Status = "running"
	StatusIdle     Status = "idle"
	StatusWorking  Status = "working"
	StatusArchived Status = "archived"
	StatusFailed   Status = "failed"
	StatusDeleted  Status = "deleted"
)

// WorkingStatus is the finer Claude-style status driven by hook/stream
// signals, independent of the coarse Status above.
type WorkingStatus string

const (
	WorkingIdle               WorkingStatus = "idle"
	WorkingWorking            WorkingStatus = "working"
	WorkingAwaitingPermission WorkingStatus = "awaiting_permission"
	WorkingUnknown            WorkingStatus = "unknown"
)

// AccessMode governs the auth proxy's filter for a session.
type AccessMode string

const (
	AccessReadWrite AccessMode = "read_write"
	AccessReadOnly  AccessMode = "read_only"
)

// ResourceState reflects the reconciler's most recent observation of
// backend health for a session's execution unit.
type ResourceState string

const (
	ResourcePresent  ResourceState = "present"
	ResourceMissing  ResourceState = "missing"
	ResourceOrphaned ResourceState = "orphaned"
)

// MaxReconcileAttempts bounds how many times the reconciler will try to
// restore a session before giving up and moving it to Failed.
const MaxReconcileAttempts = 3

// RepoRef is one (repo_path, subdirectory) pair. Sessions support multiple
// repositories; legacy single-repo sessions have exactly one.
type RepoRef struct {
	RepoPath   string `json:"repoPath"`
	Subdirectory string `json:"subdirectory"`
}

// Session is the central entity managed by the Session Manager.
type Session struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Repositories []RepoRef    `json:"repositories"`
	WorktreePath string       `json:"worktreePath"`
	Branch      string        `json:"branch"`
	// ExecutionUnitID is the backend-specific identifier (container id or
	// multiplexer session name) of this session's execution unit.
	ExecutionUnitID string    `json:"executionUnitId"`
	AgentType   AgentType     `json:"agentType"`
	BackendType BackendType   `json:"backendType"`
	Status      Status        `json:"status"`
	WorkingStatus WorkingStatus `json:"workingStatus"`
	AccessMode  AccessMode    `json:"accessMode"`
	ResourceState ResourceState `json:"resourceState"`

	// ProxyPort is 0 when no proxy is currently bound.
	ProxyPort int `json:"proxyPort,omitempty"`

	ReconcileAttempts int `json:"reconcileAttempts"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PrimaryRepo returns the first repository, or the zero value if the
// session has none (should not happen for live sessions).
func (s Session) PrimaryRepo() RepoRef {
	if len(s.Repositories) == 0 {
		return RepoRef{}
	}
	return s.Repositories[0]
}

// IsLive reports whether the session still participates in uniqueness
// invariants (P1): anything other than Deleted.
func (s Session) IsLive() bool {
	return s.Status != StatusDeleted
}

// EventKind identifies the kind of append-only log entry.
type EventKind string

const (
	EventCreated             EventKind = "created"
	EventStatusChanged       EventKind = "status_changed"
	EventArchived            EventKind = "archived"
	EventUnarchived          EventKind = "unarchived"
	EventDeleted             EventKind = "deleted"
	EventReconcileAttempt    EventKind = "reconcile_attempt"
	EventProxyAuditReference EventKind = "proxy_audit_reference"
	EventHook                EventKind = "hook_event"
)

// Event is an append-only log entry for a session.
type Event struct {
	ID        int64     `json:"id,omitempty"`
	SessionID uuid.UUID `json:"sessionId"`
	Kind      EventKind `json:"kind"`
	Payload   []byte    `json:"payload,omitempty"` // JSON-encoded, kind-specific
	Timestamp time.Time `json:"timestamp"`
}

// StatusChangedPayload is the JSON payload of an EventStatusChanged event.
type StatusChangedPayload struct {
	Old Status `json:"old"`
	New Status `json:"new"`
}

// RecentRepo is a recently used repository, bounded to MaxRecentRepos entries.
type RecentRepo struct {
	RepoPath     string    `json:"repoPath"`
	Subdirectory string    `json:"subdirectory"`
	LastUsed     time.Time `json:"lastUsed"`
}

// MaxRecentRepos bounds the recent-repository list.
const MaxRecentRepos = 20
