// Package multiplexer implements execbackend.Backend on top of tmux:
// each execution unit is a detached tmux session running the agent CLI
// directly on the host, with no container isolation. Identifiers are
// tmux session names.
package multiplexer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/shepherdjerred/clauderon/internal/clauderr"
	"github.com/shepherdjerred/clauderon/internal/execbackend"
)

const commandTimeout = 15 * time.Second

// Backend drives tmux session lifecycle via the tmux CLI.
type Backend struct {
	tmuxPath string
}

// New locates the tmux binary on PATH.
func New() (*Backend, error) {
	path, err := exec.LookPath("tmux")
	if err != nil {
		return nil, clauderr.Wrap(clauderr.CodeBackendFailure, "tmux binary not found on PATH", err)
	}
	return &Backend{tmuxPath: path}, nil
}

var _ execbackend.Backend = (*Backend)(nil)

// Create starts a detached tmux session named name in workdir running
// argv. proxy, if set, is exported into the pane's environment before
// the agent command starts so HTTPS_PROXY routes through the session's
// auth proxy even on the host.
func (b *Backend) Create(ctx context.Context, name, workdir string, argv []string, _ execbackend.CreateOptions, proxy *execbackend.ProxyConfig) (string, error) {
	shellCmd := shellQuote(argv)
	if proxy != nil {
		shellCmd = fmt.Sprintf("HTTPS_PROXY=http://127.0.0.1:%d HTTP_PROXY=http://127.0.0.1:%d %s",
			proxy.Port, proxy.Port, shellCmd)
	}

	if _, err := b.run(ctx, "new-session", "-d", "-s", name, "-c", workdir, shellCmd); err != nil {
		return "", clauderr.BackendFailure("tmux", fmt.Sprintf("creating session %q", name), err)
	}
	return name, nil
}

func (b *Backend) Exists(ctx context.Context, id string) (bool, error) {
	_, err := b.run(ctx, "has-session", "-t", id)
	return err == nil, nil
}

func (b *Backend) Delete(ctx context.Context, id string) error {
	exists, _ := b.Exists(ctx, id)
	if !exists {
		return nil
	}
	if _, err := b.run(ctx, "kill-session", "-t", id); err != nil {
		return clauderr.BackendFailure("tmux", fmt.Sprintf("killing session %q", id), err)
	}
	return nil
}

func (b *Backend) AttachCommand(_ context.Context, id string) ([]string, error) {
	return []string{"tmux", "attach-session", "-t", id}, nil
}

func (b *Backend) GetOutput(ctx context.Context, id string, nLines int) (string, error) {
	out, err := b.run(ctx, "capture-pane", "-p", "-t", id, "-S", "-"+strconv.Itoa(nLines))
	if err != nil {
		return "", clauderr.BackendFailure("tmux", fmt.Sprintf("capturing pane for session %q", id), err)
	}
	return out, nil
}

// ListUnitNames returns every tmux session name, used by the
// reconciler to detect orphans not referenced by any live session.
func (b *Backend) ListUnitNames(ctx context.Context) ([]string, error) {
	out, err := b.run(ctx, "list-sessions", "-F", "#{session_name}")
	if err != nil {
		// No sessions at all produces a non-zero exit from tmux.
		return nil, nil
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func (b *Backend) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.tmuxPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tmux %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// shellQuote joins argv into a single shell command string suitable for
// tmux new-session's trailing shell-command argument.
func shellQuote(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}
