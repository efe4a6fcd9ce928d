package apiserver_test

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shepherdjerred/clauderon/internal/sessionmgr"
)

// memStore is a minimal in-memory sessionmgr.Store for exercising the API
// server without a real database.
type memStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]sessionmgr.Session
	events   []sessionmgr.Event
	repos    map[uuid.UUID][]sessionmgr.RepoRef
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[uuid.UUID]sessionmgr.Session),
		repos:    make(map[uuid.UUID][]sessionmgr.RepoRef),
	}
}

type notFoundErr struct{ id uuid.UUID }

func (e notFoundErr) Error() string { return "session not found: " + e.id.String() }

func (s *memStore) ListSessions(context.Context) ([]sessionmgr.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sessionmgr.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out, nil
}

func (s *memStore) GetSession(_ context.Context, id uuid.UUID) (sessionmgr.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return sessionmgr.Session{}, notFoundErr{id}
	}
	return sess, nil
}

func (s *memStore) SaveSession(_ context.Context, sess sessionmgr.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *memStore) DeleteSession(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *memStore) RecordEvent(_ context.Context, event sessionmgr.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memStore) GetEvents(_ context.Context, sessionID uuid.UUID) ([]sessionmgr.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sessionmgr.Event
	for _, e := range s.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) GetAllEvents(context.Context) ([]sessionmgr.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sessionmgr.Event{}, s.events...), nil
}

func (s *memStore) AddRecentRepo(context.Context, string, string) error { return nil }

func (s *memStore) GetRecentRepos(context.Context) ([]sessionmgr.RecentRepo, error) { return nil, nil }

func (s *memStore) GetSessionRepositories(_ context.Context, sessionID uuid.UUID) ([]sessionmgr.RepoRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repos[sessionID], nil
}

func (s *memStore) SaveSessionRepositories(_ context.Context, sessionID uuid.UUID, repos []sessionmgr.RepoRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[sessionID] = repos
	return nil
}
