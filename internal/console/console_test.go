package console_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/shepherdjerred/clauderon/internal/console"
)

func TestState(t *testing.T) {
	t.Run("first client becomes active, later ones observers", func(t *testing.T) {
		s := console.New()
		sessionID := uuid.New()
		a, b := uuid.New(), uuid.New()

		assert.True(t, s.RegisterClient(sessionID, a))
		assert.False(t, s.RegisterClient(sessionID, b))

		assert.True(t, s.IsActive(sessionID, a))
		assert.False(t, s.IsActive(sessionID, b))
	})

	t.Run("SetActive promotes an observer", func(t *testing.T) {
		s := console.New()
		sessionID := uuid.New()
		a, b := uuid.New(), uuid.New()
		s.RegisterClient(sessionID, a)
		s.RegisterClient(sessionID, b)

		s.SetActive(sessionID, b)
		assert.True(t, s.IsActive(sessionID, b))
		assert.False(t, s.IsActive(sessionID, a))
	})

	t.Run("unregistering active promotes next client in insertion order", func(t *testing.T) {
		s := console.New()
		sessionID := uuid.New()
		a, b, c := uuid.New(), uuid.New(), uuid.New()
		s.RegisterClient(sessionID, a)
		s.RegisterClient(sessionID, b)
		s.RegisterClient(sessionID, c)

		s.UnregisterClient(sessionID, a)
		assert.True(t, s.IsActive(sessionID, b))
	})

	t.Run("session state is garbage collected when empty", func(t *testing.T) {
		s := console.New()
		sessionID := uuid.New()
		a := uuid.New()
		s.RegisterClient(sessionID, a)
		s.UnregisterClient(sessionID, a)

		assert.False(t, s.IsActive(sessionID, a))
		// Re-registering after garbage collection starts a fresh session,
		// so the same client becomes active again.
		assert.True(t, s.RegisterClient(sessionID, a))
	})

	t.Run("unregistering unknown session is a no-op", func(t *testing.T) {
		s := console.New()
		s.UnregisterClient(uuid.New(), uuid.New())
	})
}
