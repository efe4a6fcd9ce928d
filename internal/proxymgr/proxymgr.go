// Package proxymgr owns the set of per-session auth proxies, creating and
// tearing them down in lockstep with the Session Manager's own lifecycle
// operations.
package proxymgr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/shepherdjerred/clauderon/internal/authproxy"
	"github.com/shepherdjerred/clauderon/internal/authproxy/onepassword"
	"github.com/shepherdjerred/clauderon/internal/authproxy/portalloc"
)

// Manager creates, tracks, and destroys one authproxy.Proxy per session.
type Manager struct {
	ca        *authproxy.CA
	ports     *portalloc.Allocator
	op        *onepassword.Client
	dataDir   string
	log       *slog.Logger

	mu      sync.Mutex
	proxies map[uuid.UUID]*authproxy.Proxy
}

// New wires a proxy manager. op may be nil if no session resolves
// credentials via 1Password references.
func New(ca *authproxy.CA, ports *portalloc.Allocator, op *onepassword.Client, dataDir string, log *slog.Logger) *Manager {
	return &Manager{
		ca:      ca,
		ports:   ports,
		op:      op,
		dataDir: dataDir,
		log:     log.With("component", "proxymgr"),
		proxies: make(map[uuid.UUID]*authproxy.Proxy),
	}
}

// CreateOpts parameterizes a new session proxy.
type CreateOpts struct {
	SessionID  uuid.UUID
	Rules      []authproxy.Rule
	// CredentialRefs maps logical credential name to either a literal
	// secret or an op:// reference resolved via the 1Password client.
	CredentialRefs map[string]string
	AccessMode     string
	Agent          string
}

// Create allocates a port, resolves credentials, and starts a proxy for
// one session. On any failure it releases the port before returning, so
// callers never need to distinguish "port allocated but proxy failed"
// from "nothing happened".
func (m *Manager) Create(ctx context.Context, opts CreateOpts) (*authproxy.Proxy, error) {
	port, err := m.ports.Allocate(opts.SessionID)
	if err != nil {
		return nil, fmt.Errorf("allocating proxy port for session %s: %w", opts.SessionID, err)
	}

	creds, err := m.resolveCredentials(ctx, opts.CredentialRefs)
	if err != nil {
		m.ports.Release(port)
		return nil, err
	}

	auditFile, err := m.openAuditLog(opts.SessionID)
	if err != nil {
		m.ports.Release(port)
		return nil, err
	}

	cfg := authproxy.Config{
		Rules:       opts.Rules,
		Credentials: creds,
		AccessMode:  opts.AccessMode,
		Agent:       opts.Agent,
	}
	proxy := authproxy.New(opts.SessionID, port, cfg, m.ca, authproxy.NewAuditLogger(opts.SessionID, auditFile), m.log)

	if err := proxy.Start(ctx); err != nil {
		m.ports.Release(port)
		auditFile.Close()
		return nil, fmt.Errorf("starting proxy for session %s: %w", opts.SessionID, err)
	}

	m.mu.Lock()
	m.proxies[opts.SessionID] = proxy
	m.mu.Unlock()

	m.log.Info("proxy started", "session_id", opts.SessionID, "port", port)
	return proxy, nil
}

// Destroy stops and releases the proxy for sessionID. Idempotent.
func (m *Manager) Destroy(sessionID uuid.UUID) {
	m.mu.Lock()
	proxy, ok := m.proxies[sessionID]
	delete(m.proxies, sessionID)
	m.mu.Unlock()

	if !ok {
		return
	}

	if err := proxy.Close(); err != nil {
		m.log.Warn("error closing proxy", "session_id", sessionID, "error", err)
	}
	m.ports.Release(proxy.Port)
	m.log.Info("proxy destroyed", "session_id", sessionID, "port", proxy.Port)
}

// CACertPEM returns the PEM-encoded root CA certificate that execution
// units must trust in order for the proxy's TLS interception to work.
func (m *Manager) CACertPEM() string {
	return m.ca.CertPEM()
}

// Get returns the live proxy for sessionID, if any.
func (m *Manager) Get(sessionID uuid.UUID) (*authproxy.Proxy, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proxies[sessionID]
	return p, ok
}

// IsBound reports whether a proxy process is currently live for port,
// used by the reconciler's probe 3.
func (m *Manager) IsBound(port int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.proxies {
		if p.Port == port {
			return true
		}
	}
	return false
}

func (m *Manager) resolveCredentials(ctx context.Context, refs map[string]string) (authproxy.Credentials, error) {
	if len(refs) == 0 {
		return authproxy.Credentials{}, nil
	}

	literal := make(map[string]string, len(refs))
	opRefs := make(map[string]string)
	for name, v := range refs {
		if _, err := onepassword.ParseReference(v); err == nil {
			opRefs[name] = v
		} else {
			literal[name] = v
		}
	}

	if len(opRefs) == 0 {
		return authproxy.Credentials(literal), nil
	}
	if m.op == nil {
		return nil, fmt.Errorf("credentials reference 1Password but no 1Password client is configured")
	}

	resolved, err := m.op.ResolveAll(ctx, opRefs)
	if err != nil {
		return nil, err
	}
	for name, v := range literal {
		resolved[name] = v
	}
	return authproxy.Credentials(resolved), nil
}

func (m *Manager) openAuditLog(sessionID uuid.UUID) (*os.File, error) {
	dir := filepath.Join(m.dataDir, "logs", "audit")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	path := filepath.Join(dir, sessionID.String()+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log %s: %w", path, err)
	}
	return f, nil
}
