package portalloc_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdjerred/clauderon/internal/authproxy/portalloc"
)

func TestAllocator(t *testing.T) {
	t.Run("distinct sessions get distinct ports", func(t *testing.T) {
		a := portalloc.New()
		s1, s2 := uuid.New(), uuid.New()

		p1, err := a.Allocate(s1)
		require.NoError(t, err)
		p2, err := a.Allocate(s2)
		require.NoError(t, err)

		assert.NotEqual(t, p1, p2)
		got1, ok := a.GetSessionID(p1)
		require.True(t, ok)
		assert.Equal(t, s1, got1)
	})

	t.Run("release makes port available again", func(t *testing.T) {
		a := portalloc.New()
		s := uuid.New()
		p, err := a.Allocate(s)
		require.NoError(t, err)

		a.Release(p)
		_, ok := a.GetSessionID(p)
		assert.False(t, ok)
	})

	t.Run("fails once range exhausted", func(t *testing.T) {
		a := portalloc.New()
		for range portalloc.MaxSessions {
			_, err := a.Allocate(uuid.New())
			require.NoError(t, err)
		}

		_, err := a.Allocate(uuid.New())
		require.Error(t, err)
		assert.True(t, errors.Is(err, portalloc.ErrNoPortsAvailable))
	})

	t.Run("ports stay within the declared range", func(t *testing.T) {
		a := portalloc.New()
		for range 20 {
			p, err := a.Allocate(uuid.New())
			require.NoError(t, err)
			assert.GreaterOrEqual(t, p, portalloc.BasePort)
			assert.Less(t, p, portalloc.BasePort+portalloc.MaxSessions)
		}
	})
}
