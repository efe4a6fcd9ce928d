// Package console tracks, per session, which attached client currently
// holds the interactive channel. Keystrokes are only forwarded from the
// active client; output fans out to every attached client.
package console

import (
	"sync"

	"github.com/google/uuid"
)

type sessionState struct {
	activeClientID uuid.UUID
	hasActive      bool
	// clients preserves insertion order so that unregistering the active
	// client promotes the next-oldest observer, not an arbitrary one.
	clients []uuid.UUID
}

func (s *sessionState) indexOf(clientID uuid.UUID) int {
	for i, id := range s.clients {
		if id == clientID {
			return i
		}
	}
	return -1
}

// State is the shared, mutex-guarded registry of per-session console
// attachment state.
type State struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionState
}

// New creates an empty registry.
func New() *State {
	return &State{sessions: make(map[uuid.UUID]*sessionState)}
}

// RegisterClient attaches clientID to sessionID, returning true if it
// became the active (first) client.
func (s *State) RegisterClient(sessionID, clientID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionFor(sessionID)
	if sess.indexOf(clientID) == -1 {
		sess.clients = append(sess.clients, clientID)
	}
	if !sess.hasActive {
		sess.activeClientID = clientID
		sess.hasActive = true
		return true
	}
	return false
}

// SetActive explicitly promotes clientID to active controller of sessionID.
func (s *State) SetActive(sessionID, clientID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionFor(sessionID)
	if sess.indexOf(clientID) == -1 {
		sess.clients = append(sess.clients, clientID)
	}
	sess.activeClientID = clientID
	sess.hasActive = true
}

// IsActive reports whether clientID currently holds the active channel
// for sessionID.
func (s *State) IsActive(sessionID, clientID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || !sess.hasActive {
		return false
	}
	return sess.activeClientID == clientID
}

// UnregisterClient detaches clientID from sessionID. If it was active,
// the next-oldest remaining client (by registration order) is promoted.
// Once no clients remain, the session's console state is garbage
// collected entirely.
func (s *State) UnregisterClient(sessionID, clientID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return
	}

	if i := sess.indexOf(clientID); i != -1 {
		sess.clients = append(sess.clients[:i], sess.clients[i+1:]...)
	}

	if sess.hasActive && sess.activeClientID == clientID {
		if len(sess.clients) > 0 {
			sess.activeClientID = sess.clients[0]
		} else {
			sess.hasActive = false
		}
	}

	if len(sess.clients) == 0 {
		delete(s.sessions, sessionID)
	}
}

func (s *State) sessionFor(sessionID uuid.UUID) *sessionState {
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &sessionState{}
		s.sessions[sessionID] = sess
	}
	return sess
}
