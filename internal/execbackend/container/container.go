// Package container implements execbackend.Backend on top of the docker
// CLI. Each execution unit is one long-running container whose name is
// the opaque identifier the Session Manager stores.
package container

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

const commandTimeout = 30 * time.Second

// Backend drives container lifecycle via the docker CLI.
type Backend struct {
	dockerPath string
	image      string
}

// New locates the docker binary on PATH and configures the image used
// for every created execution unit.
func New(image string) (*Backend, error) {
	path, err := exec.LookPath("docker")
	if err != nil {
		return nil, clauderr.Wrap(clauderr.CodeBackendFailure, "docker binary not found on PATH", err)
	}
	return &Backend{dockerPath: path, image: image}, nil
}

var _ execbackend.Backend = (*Backend)(nil)

func (b *Backend) Create(ctx context.Context, name, workdir string, argv []string, opts execbackend.CreateOptions, proxy *execbackend.ProxyConfig) (string, error) {
	args := []string{
		"run", "--detach", "--name", name,
		"--volume", fmt.Sprintf("%s:/workspace", workdir),
		"--workdir", "/workspace",
	}

	if proxy != nil {
		args = append(args,
			"--env", fmt.Sprintf("HTTPS_PROXY=http://127.0.0.1:%d", proxy.Port),
			"--env", fmt.Sprintf("HTTP_PROXY=http://127.0.0.1:%d", proxy.Port),
		)
	}
	for _, img := range opts.Images {
		args = append(args, "--volume", fmt.Sprintf("%s:/images/%s:ro", img, img))
	}

	args = append(args, b.image)
	args = append(args, argv...)

	out, err := b.run(ctx, args...)
	if err != nil {
		return "", clauderr.BackendFailure("docker", fmt.Sprintf("creating container %q", name), err)
	}
	_ = out

	if proxy != nil {
		if err := b.installCA(ctx, name, proxy.CACertPEM); err != nil {
			_ = b.Delete(ctx, name)
			return "", err
		}
	}

	if opts.CodexAuth != nil {
		if err := b.installCodexAuth(ctx, name, *opts.CodexAuth); err != nil {
			_ = b.Delete(ctx, name)
			return "", err
		}
	}

	return name, nil
}

// installCA writes the proxy's CA certificate into the container's trust
// store. Root CA installation is image-specific; this targets the
// Debian/Ubuntu ca-certificates layout the teacher's images use.
func (b *Backend) installCA(ctx context.Context, name, caCertPEM string) error {
	if caCertPEM == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, b.dockerPath, "exec", "-i", name, "sh", "-c",
		"cat > /usr/local/share/ca-certificates/clauderon-proxy.crt && update-ca-certificates")
	cmd.Stdin = strings.NewReader(caCertPEM)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return clauderr.BackendFailure("docker", "installing proxy CA certificate", fmt.Errorf("%w: %s", err, stderr.String()))
	}
	return nil
}

// installCodexAuth writes Codex's synthetic auth.json and config.toml
// into the container's config directory so its startup check passes.
func (b *Backend) installCodexAuth(ctx context.Context, name string, auth execbackend.CodexAuth) error {
	cmd := exec.CommandContext(ctx, b.dockerPath, "exec", "-i", name, "sh", "-c",
		"mkdir -p /root/.codex && cat > /root/.codex/auth.json")
	cmd.Stdin = strings.NewReader(auth.AuthJSON)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return clauderr.BackendFailure("docker", "writing codex auth.json", fmt.Errorf("%w: %s", err, stderr.String()))
	}

	cmd = exec.CommandContext(ctx, b.dockerPath, "exec", "-i", name, "sh", "-c",
		"cat > /root/.codex/config.toml")
	cmd.Stdin = strings.NewReader(auth.ConfigTOML)
	stderr.Reset()
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return clauderr.BackendFailure("docker", "writing codex config.toml", fmt.Errorf("%w: %s", err, stderr.String()))
	}
	return nil
}

func (b *Backend) Exists(ctx context.Context, id string) (bool, error) {
	out, err := b.run(ctx, "inspect", "--format", "{{.State.Running}}", id)
	if err != nil {
		return false, nil
	}
	return strings.TrimSpace(out) == "true", nil
}

func (b *Backend) Delete(ctx context.Context, id string) error {
	exists, _ := b.Exists(ctx, id)
	if !exists {
		// Still attempt removal in case the container is stopped but not pruned.
		_, _ = b.run(ctx, "rm", "--force", id)
		return nil
	}
	if _, err := b.run(ctx, "rm", "--force", id); err != nil {
		return clauderr.BackendFailure("docker", fmt.Sprintf("removing container %q", id), err)
	}
	return nil
}

func (b *Backend) AttachCommand(_ context.Context, id string) ([]string, error) {
	return []string{"docker", "attach", id}, nil
}

func (b *Backend) GetOutput(ctx context.Context, id string, nLines int) (string, error) {
	out, err := b.run(ctx, "logs", "--tail", strconv.Itoa(nLines), id)
	if err != nil {
		return "", clauderr.BackendFailure("docker", fmt.Sprintf("reading output for container %q", id), err)
	}
	return out, nil
}

// ListUnitNames returns the names of every container named as a
// clauderon execution unit (the "clauderon-" prefix), used by the
// reconciler to detect orphans.
func (b *Backend) ListUnitNames(ctx context.Context) ([]string, error) {
	out, err := b.run(ctx, "ps", "--all", "--filter", "name=^clauderon-", "--format", "{{.Names}}")
	if err != nil {
		return nil, clauderr.BackendFailure("docker", "listing containers", err)
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

	cmd := exec.CommandContext(ctx, b.dockerPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
