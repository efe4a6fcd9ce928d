// Package store provides durable persistence for sessions, the append-only
// event log, recently used repositories, and the session/repository
// junction table, backed by an embedded SQLite database.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/shepherdjerred/clauderon/internal/sessionmgr"
)

// Store is the persistence interface the Session Manager depends on.
// SQLiteStore is the only production implementation; tests may supply an
// in-memory fake.
type Store interface {
	ListSessions(ctx context.Context) ([]sessionmgr.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (sessionmgr.Session, error)
	SaveSession(ctx context.Context, sess sessionmgr.Session) error
	DeleteSession(ctx context.Context, id uuid.UUID) error

	RecordEvent(ctx context.Context, event sessionmgr.Event) error
	GetEvents(ctx context.Context, sessionID uuid.UUID) ([]sessionmgr.Event, error)
	GetAllEvents(ctx context.Context) ([]sessionmgr.Event, error)

	AddRecentRepo(ctx context.Context, repoPath, subdirectory string) error
	GetRecentRepos(ctx context.Context) ([]sessionmgr.RecentRepo, error)

	GetSessionRepositories(ctx context.Context, sessionID uuid.UUID) ([]sessionmgr.RepoRef, error)
	SaveSessionRepositories(ctx context.Context, sessionID uuid.UUID, repos []sessionmgr.RepoRef) error
}
