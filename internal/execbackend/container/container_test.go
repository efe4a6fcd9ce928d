package container_test

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdjerred/clauderon/internal/execbackend"
	"github.com/shepherdjerred/clauderon/internal/execbackend/container"
)

func newTestBackend(t *testing.T) *container.Backend {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	b, err := container.New("alpine:latest")
	require.NoError(t, err)
	return b
}

func TestBackend(t *testing.T) {
	t.Run("create, exists, delete round-trip", func(t *testing.T) {
		b := newTestBackend(t)
		ctx := context.Background()
		name := "clauderon-test-" + time.Now().Format("150405.000")

		id, err := b.Create(ctx, name, t.TempDir(), []string{"sleep", "30"}, execbackend.CreateOptions{}, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Delete(ctx, id) })

		exists, err := b.Exists(ctx, id)
		require.NoError(t, err)
		assert.True(t, exists)

		require.NoError(t, b.Delete(ctx, id))
		exists, err = b.Exists(ctx, id)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		b := newTestBackend(t)
		ctx := context.Background()
		require.NoError(t, b.Delete(ctx, "clauderon-test-nonexistent"))
		require.NoError(t, b.Delete(ctx, "clauderon-test-nonexistent"))
	})

	t.Run("attach command targets the container name", func(t *testing.T) {
		b := newTestBackend(t)
		argv, err := b.AttachCommand(context.Background(), "clauderon-test-foo")
		require.NoError(t, err)
		assert.Equal(t, []string{"docker", "attach", "clauderon-test-foo"}, argv)
	})

	t.Run("codex auth files are written when CodexAuth is set", func(t *testing.T) {
		b := newTestBackend(t)
		ctx := context.Background()
		name := "clauderon-test-codex-" + time.Now().Format("150405.000")

		id, err := b.Create(ctx, name, t.TempDir(), []string{"sleep", "30"}, execbackend.CreateOptions{
			CodexAuth: &execbackend.CodexAuth{
				AuthJSON:   `{"tokens":{"account_id":"test"}}`,
				ConfigTOML: "cli_auth_credentials_store = \"file\"\n",
			},
		}, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Delete(ctx, id) })

		out, err := exec.CommandContext(ctx, "docker", "exec", id, "cat", "/root/.codex/auth.json").CombinedOutput()
		require.NoError(t, err)
		assert.Contains(t, string(out), `"account_id":"test"`)

		out, err = exec.CommandContext(ctx, "docker", "exec", id, "cat", "/root/.codex/config.toml").CombinedOutput()
		require.NoError(t, err)
		assert.Contains(t, string(out), "cli_auth_credentials_store")
	})
}
