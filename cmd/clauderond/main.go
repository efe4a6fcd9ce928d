// Command clauderond is the clauderon daemon: it owns the Store, the
// Session Manager, the per-session auth proxies, and the hook and control
// ingress points, and keeps running sessions reconciled against their
// real backend resources until it receives a shutdown signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shepherdjerred/clauderon/internal/agentadapter/claude"
	"github.com/shepherdjerred/clauderon/internal/agentadapter/codex"
	"github.com/shepherdjerred/clauderon/internal/agentadapter/gemini"
	"github.com/shepherdjerred/clauderon/internal/apiserver"
	"github.com/shepherdjerred/clauderon/internal/authproxy"
	"github.com/shepherdjerred/clauderon/internal/authproxy/onepassword"
	"github.com/shepherdjerred/clauderon/internal/authproxy/portalloc"
	"github.com/shepherdjerred/clauderon/internal/config"
	"github.com/shepherdjerred/clauderon/internal/console"
	"github.com/shepherdjerred/clauderon/internal/execbackend"
	"github.com/shepherdjerred/clauderon/internal/execbackend/container"
	"github.com/shepherdjerred/clauderon/internal/execbackend/multiplexer"
	"github.com/shepherdjerred/clauderon/internal/gitbackend"
	"github.com/shepherdjerred/clauderon/internal/hookingress"
	"github.com/shepherdjerred/clauderon/internal/proxymgr"
	"github.com/shepherdjerred/clauderon/internal/sessionmgr"
	"github.com/shepherdjerred/clauderon/internal/store"
)

func main() {
	fileCfg, err := config.Parse()
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("config error", "error", err)
		os.Exit(1)
	}

	dataDir := flag.String("data-dir", firstNonEmpty(fileCfg.DataDir, defaultDataDir()), "Directory for the database, worktrees, logs, and sockets")
	httpAddr := flag.String("http-addr", firstNonEmpty(fileCfg.HTTPAddr, "127.0.0.1:8420"), "Address the HTTP/WebSocket gateway listens on")
	containerImage := flag.String("container-image", firstNonEmpty(fileCfg.ContainerImage, "clauderon-agent:latest"), "Image used for container-backed sessions")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil)).With("component", "clauderond")

	if err := run(log, *dataDir, *httpAddr, *containerImage); err != nil {
		log.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clauderon"
	}
	return filepath.Join(home, ".clauderon")
}

func run(log *slog.Logger, dataDir, httpAddr, containerImage string) error {
	for _, dir := range []string{dataDir, filepath.Join(dataDir, "worktrees"), filepath.Join(dataDir, "logs")} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, filepath.Join(dataDir, "db.sqlite"))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()
	st := store.NewSQLiteStore(db)

	git, err := gitbackend.New()
	if err != nil {
		return fmt.Errorf("initializing git backend: %w", err)
	}

	containerBackend, err := container.New(containerImage)
	if err != nil {
		return fmt.Errorf("initializing container backend: %w", err)
	}
	multiplexerBackend, err := multiplexer.New()
	if err != nil {
		return fmt.Errorf("initializing multiplexer backend: %w", err)
	}
	backends := map[sessionmgr.BackendType]execbackend.Backend{
		sessionmgr.BackendContainer:   containerBackend,
		sessionmgr.BackendMultiplexer: multiplexerBackend,
	}

	ca, err := authproxy.NewCA()
	if err != nil {
		return fmt.Errorf("initializing proxy CA: %w", err)
	}
	ports := portalloc.New()

	op, err := onepassword.New()
	if err != nil {
		log.Warn("1Password CLI unavailable, op:// credential references will fail to resolve", "error", err)
		op = nil
	}
	proxies := proxymgr.New(ca, ports, op, dataDir, log)

	mgr := sessionmgr.New(log, st, git, backends, proxies, filepath.Join(dataDir, "worktrees"),
		claude.New(), codex.New(), gemini.New())
	recon := sessionmgr.NewReconciler(mgr)

	hooks := hookingress.NewListener(filepath.Join(dataDir, "hooks.sock"), log, mgr)
	if err := hooks.Start(); err != nil {
		return fmt.Errorf("starting hook listener: %w", err)
	}
	defer hooks.Close()

	consoleState := console.New()
	api := apiserver.New(log, mgr, recon, consoleState, filepath.Join(dataDir, "clauderond.sock"), httpAddr)
	if err := api.Start(); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	go recon.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received signal, shutting down", "signal", sig)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Warn("error during api server shutdown", "error", err)
	}
	return nil
}
