// Package portalloc allocates the TCP ports each session's auth proxy
// listens on, from a fixed range with a rotating cursor so that recently
// released ports are not immediately reused.
package portalloc

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

const (
	// BasePort is the first port in the allocatable range.
	BasePort = 18100
	// MaxSessions bounds the range to [BasePort, BasePort+MaxSessions).
	MaxSessions = 500
)

// Allocator hands out proxy ports in [BasePort, BasePort+MaxSessions),
// scanning from a rotating cursor under a single writer lock.
type Allocator struct {
	mu         sync.Mutex
	nextCursor int
	allocated  map[int]uuid.UUID
}

// New creates an empty allocator.
func New() *Allocator {
	return &Allocator{allocated: make(map[int]uuid.UUID)}
}

// Allocate reserves the next free port for sessionID. Fails with
// NoPortsAvailable once all MaxSessions ports are in use.
func (a *Allocator) Allocate(sessionID uuid.UUID) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for range MaxSessions {
		idx := a.nextCursor
		a.nextCursor = (a.nextCursor + 1) % MaxSessions
		port := BasePort + idx

		if _, taken := a.allocated[port]; !taken {
			a.allocated[port] = sessionID
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available proxy ports (all %d in use): %w", MaxSessions, ErrNoPortsAvailable)
}

// Release frees port, making it eligible for a future Allocate call. It is
// a no-op if the port was not allocated (P4 idempotence).
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allocated, port)
}

// GetSessionID returns the session bound to port, if any.
func (a *Allocator) GetSessionID(port int) (uuid.UUID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.allocated[port]
	return id, ok
}
