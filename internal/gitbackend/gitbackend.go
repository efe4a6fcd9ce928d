// Package gitbackend creates and destroys git worktrees against a main
// repository checkout, driving the system git binary as a subprocess.
package gitbackend

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/shepherdjerred/clauderon/internal/clauderr"
)

const commandTimeout = 30 * time.Second

// Backend drives worktree lifecycle; each call names the main repository
// checkout it operates on.
type Backend struct {
	gitPath string
}

// New locates the git binary on PATH. Returns an error if git is not
// installed, so callers fail fast at startup rather than at first use.
func New() (*Backend, error) {
	path, err := exec.LookPath("git")
	if err != nil {
		return nil, clauderr.Wrap(clauderr.CodeBackendFailure, "git binary not found on PATH", err)
	}
	return &Backend{gitPath: path}, nil
}

// CreateWorktree creates a new worktree at worktreePath, checked out to a
// new branch, against repoPath. repoPath must already be a git repository;
// callers validate that before calling.
func (b *Backend) CreateWorktree(ctx context.Context, repoPath, worktreePath, branch string) error {
	if err := os.MkdirAll(filepath.Dir(worktreePath), 0o755); err != nil {
		return clauderr.Wrap(clauderr.CodeIoFailure, "creating worktree parent directory", err)
	}

	_, err := b.run(ctx, repoPath, "worktree", "add", "-b", branch, worktreePath, "HEAD")
	if err != nil {
		return clauderr.BackendFailure("git", fmt.Sprintf("creating worktree for branch %q", branch), err)
	}
	return nil
}

// DeleteWorktree force-removes the worktree and prunes its metadata from
// repoPath. It is not an error if the worktree directory is already gone:
// in that case only `git worktree prune` runs, matching the idempotent
// delete semantics the Session Manager depends on.
func (b *Backend) DeleteWorktree(ctx context.Context, repoPath, worktreePath string) error {
	if _, err := os.Stat(worktreePath); os.IsNotExist(err) {
		_, _ = b.run(ctx, repoPath, "worktree", "prune")
		return nil
	}

	if _, err := b.run(ctx, repoPath, "worktree", "remove", "--force", worktreePath); err != nil {
		return clauderr.BackendFailure("git", "removing worktree", err)
	}
	return nil
}

// WorktreeExists reports whether worktreePath is a directory with a .git
// file/directory pointing back at a worktree of repoPath.
func (b *Backend) WorktreeExists(ctx context.Context, repoPath, worktreePath string) bool {
	if info, err := os.Stat(worktreePath); err != nil || !info.IsDir() {
		return false
	}
	out, err := b.run(ctx, repoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(worktreePath)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "worktree ") && strings.TrimPrefix(line, "worktree ") == abs {
			return true
		}
	}
	return false
}

// GetBranch returns the current branch checked out in worktreePath.
func (b *Backend) GetBranch(ctx context.Context, worktreePath string) (string, error) {
	out, err := b.run(ctx, worktreePath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", clauderr.BackendFailure("git", "reading current branch", err)
	}
	return strings.TrimSpace(out), nil
}

// IsRepository reports whether path is inside a git working tree.
func (b *Backend) IsRepository(ctx context.Context, path string) bool {
	_, err := b.run(ctx, path, "rev-parse", "--is-inside-work-tree")
	return err == nil
}

func (b *Backend) run(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.gitPath, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
