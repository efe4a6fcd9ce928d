// Package execbackend defines the polymorphic execution-unit contract
// implemented by the container backend and the terminal-multiplexer
// backend. The Session Manager depends only on the Backend interface.
package execbackend

import "context"

// CreateOptions configures how an execution unit launches its agent.
type CreateOptions struct {
	PrintMode bool
	PlanMode  bool
	Images    []string

	// CodexAuth, when non-nil, carries the Codex CLI's synthetic
	// credential files. Backends that can write into the unit's
	// filesystem at create-time (the container backend) install them so
	// Codex's startup auth check passes without a real token.
	CodexAuth *CodexAuth
}

// CodexAuth is the rendered content of the two files the Codex CLI reads
// at startup: a synthetic auth.json and its accompanying config.toml.
type CodexAuth struct {
	AuthJSON   string
	ConfigTOML string
}

// ProxyConfig routes the agent's outbound traffic through a per-session
// auth proxy. The container backend installs CACertPEM and sets the proxy
// environment; the multiplexer backend, which runs directly on the host,
// only exports HTTPS_PROXY/HTTP_PROXY from Port and does not install the
// CA.
type ProxyConfig struct {
	CACertPEM string
	Port      int
}

// Backend is the polymorphic execution-unit contract over {container
// runtime, terminal multiplexer}.
type Backend interface {
	// Create launches a new execution unit named name in workdir running
	// argv, returning an opaque identifier stable for the unit's lifetime.
	Create(ctx context.Context, name, workdir string, argv []string, opts CreateOptions, proxy *ProxyConfig) (string, error)
	// Exists reports whether the execution unit identified by id is still
	// present and running.
	Exists(ctx context.Context, id string) (bool, error)
	// Delete tears down the execution unit. Idempotent: deleting an
	// already-gone id is not an error.
	Delete(ctx context.Context, id string) error
	// AttachCommand returns the argv a client runs locally to attach an
	// interactive terminal to the execution unit.
	AttachCommand(ctx context.Context, id string) ([]string, error)
	// GetOutput returns the last nLines of the execution unit's output.
	GetOutput(ctx context.Context, id string, nLines int) (string, error)
}
