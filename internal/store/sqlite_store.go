package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shepherdjerred/clauderon/internal/sessionmgr"
)

// timeFormat is the text-column encoding used for all timestamps; it sorts
// lexicographically in the same order as chronologically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store directly against database/sql; there is no
// generated query layer, so each method hand-writes its SQL.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an already-open, already-migrated database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]sessionmgr.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, worktree_path, branch, execution_unit_id, agent_type, backend_type,
		       status, working_status, access_mode, resource_state,
		       proxy_port, reconcile_attempts, created_at, updated_at
		FROM sessions
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []sessionmgr.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}

	for i := range out {
		repos, err := s.GetSessionRepositories(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Repositories = repos
	}
	return out, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id uuid.UUID) (sessionmgr.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, worktree_path, branch, execution_unit_id, agent_type, backend_type,
		       status, working_status, access_mode, resource_state,
		       proxy_port, reconcile_attempts, created_at, updated_at
		FROM sessions WHERE id = ?`, id.String())

	sess, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return sessionmgr.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return sessionmgr.Session{}, fmt.Errorf("getting session %s: %w", id, err)
	}

	repos, err := s.GetSessionRepositories(ctx, sess.ID)
	if err != nil {
		return sessionmgr.Session{}, err
	}
	sess.Repositories = repos
	return sess, nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess sessionmgr.Session) error {
	now := sess.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, name, worktree_path, branch, execution_unit_id, agent_type, backend_type,
			status, working_status, access_mode, resource_state,
			proxy_port, reconcile_attempts, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			worktree_path = excluded.worktree_path,
			branch = excluded.branch,
			execution_unit_id = excluded.execution_unit_id,
			agent_type = excluded.agent_type,
			backend_type = excluded.backend_type,
			status = excluded.status,
			working_status = excluded.working_status,
			access_mode = excluded.access_mode,
			resource_state = excluded.resource_state,
			proxy_port = excluded.proxy_port,
			reconcile_attempts = excluded.reconcile_attempts,
			updated_at = excluded.updated_at`,
		sess.ID.String(), sess.Name, sess.WorktreePath, sess.Branch, sess.ExecutionUnitID,
		string(sess.AgentType), string(sess.BackendType),
		string(sess.Status), string(sess.WorkingStatus),
		string(sess.AccessMode), string(sess.ResourceState),
		sess.ProxyPort, sess.ReconcileAttempts,
		formatTimeOrNow(sess.CreatedAt), now.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", sess.ID, err)
	}

	return s.SaveSessionRepositories(ctx, sess.ID, sess.Repositories)
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, event sessionmgr.Event) error {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (session_id, kind, payload, timestamp)
		VALUES (?, ?, ?, ?)`,
		event.SessionID.String(), string(event.Kind), event.Payload, ts.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("recording event for session %s: %w", event.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) GetEvents(ctx context.Context, sessionID uuid.UUID) ([]sessionmgr.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, kind, payload, timestamp
		FROM events WHERE session_id = ? ORDER BY id ASC`, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("listing events for session %s: %w", sessionID, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLiteStore) GetAllEvents(ctx context.Context) ([]sessionmgr.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, kind, payload, timestamp
		FROM events ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing all events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLiteStore) AddRecentRepo(ctx context.Context, repoPath, subdirectory string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recent_repos (repo_path, subdirectory, last_used)
		VALUES (?, ?, ?)
		ON CONFLICT(repo_path, subdirectory) DO UPDATE SET last_used = excluded.last_used`,
		repoPath, subdirectory, time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("recording recent repo %q: %w", repoPath, err)
	}

	// Trim to MaxRecentRepos, oldest first.
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM recent_repos
		WHERE (repo_path, subdirectory) NOT IN (
			SELECT repo_path, subdirectory FROM recent_repos
			ORDER BY last_used DESC LIMIT ?
		)`, sessionmgr.MaxRecentRepos)
	if err != nil {
		return fmt.Errorf("trimming recent repos: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRecentRepos(ctx context.Context) ([]sessionmgr.RecentRepo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT repo_path, subdirectory, last_used FROM recent_repos
		ORDER BY last_used DESC LIMIT ?`, sessionmgr.MaxRecentRepos)
	if err != nil {
		return nil, fmt.Errorf("listing recent repos: %w", err)
	}
	defer rows.Close()

	var out []sessionmgr.RecentRepo
	for rows.Next() {
		var r sessionmgr.RecentRepo
		var lastUsed string
		if err := rows.Scan(&r.RepoPath, &r.Subdirectory, &lastUsed); err != nil {
			return nil, fmt.Errorf("scanning recent repo row: %w", err)
		}
		r.LastUsed, err = time.Parse(timeFormat, lastUsed)
		if err != nil {
			return nil, fmt.Errorf("parsing last_used: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetSessionRepositories(ctx context.Context, sessionID uuid.UUID) ([]sessionmgr.RepoRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT repo_path, subdirectory FROM session_repositories
		WHERE session_id = ? ORDER BY position ASC`, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("listing repositories for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []sessionmgr.RepoRef
	for rows.Next() {
		var r sessionmgr.RepoRef
		if err := rows.Scan(&r.RepoPath, &r.Subdirectory); err != nil {
			return nil, fmt.Errorf("scanning repository row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveSessionRepositories(ctx context.Context, sessionID uuid.UUID, repos []sessionmgr.RepoRef) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_repositories WHERE session_id = ?`, sessionID.String()); err != nil {
		return fmt.Errorf("clearing repositories for session %s: %w", sessionID, err)
	}

	for i, r := range repos {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_repositories (session_id, position, repo_path, subdirectory)
			VALUES (?, ?, ?, ?)`, sessionID.String(), i, r.RepoPath, r.Subdirectory); err != nil {
			return fmt.Errorf("inserting repository %d for session %s: %w", i, sessionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing repository save: %w", err)
	}
	return nil
}

// scanner abstracts over *sql.Row and *sql.Rows so scanSession serves both
// GetSession (single row) and ListSessions (row iterator).
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (sessionmgr.Session, error) {
	var sess sessionmgr.Session
	var id, agentType, backendType, status, workingStatus, accessMode, resourceState string
	var createdAt, updatedAt string

	err := row.Scan(
		&id, &sess.Name, &sess.WorktreePath, &sess.Branch, &sess.ExecutionUnitID,
		&agentType, &backendType, &status, &workingStatus, &accessMode, &resourceState,
		&sess.ProxyPort, &sess.ReconcileAttempts, &createdAt, &updatedAt,
	)
	if err != nil {
		return sessionmgr.Session{}, err
	}

	sess.ID, err = uuid.Parse(id)
	if err != nil {
		return sessionmgr.Session{}, fmt.Errorf("parsing session id %q: %w", id, err)
	}
	sess.AgentType = sessionmgr.AgentType(agentType)
	sess.BackendType = sessionmgr.BackendType(backendType)
	sess.Status = sessionmgr.Status(status)
	sess.WorkingStatus = sessionmgr.WorkingStatus(workingStatus)
	sess.AccessMode = sessionmgr.AccessMode(accessMode)
	sess.ResourceState = sessionmgr.ResourceState(resourceState)

	sess.CreatedAt, err = time.Parse(timeFormat, createdAt)
	if err != nil {
		return sessionmgr.Session{}, fmt.Errorf("parsing created_at: %w", err)
	}
	sess.UpdatedAt, err = time.Parse(timeFormat, updatedAt)
	if err != nil {
		return sessionmgr.Session{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return sess, nil
}

func scanEvents(rows *sql.Rows) ([]sessionmgr.Event, error) {
	var out []sessionmgr.Event
	for rows.Next() {
		var e sessionmgr.Event
		var sessionID, kind, ts string
		if err := rows.Scan(&e.ID, &sessionID, &kind, &e.Payload, &ts); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		id, err := uuid.Parse(sessionID)
		if err != nil {
			return nil, fmt.Errorf("parsing event session id %q: %w", sessionID, err)
		}
		e.SessionID = id
		e.Kind = sessionmgr.EventKind(kind)
		e.Timestamp, err = time.Parse(timeFormat, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing event timestamp: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func formatTimeOrNow(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.Format(timeFormat)
}
