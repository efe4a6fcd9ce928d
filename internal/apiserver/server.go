package apiserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/shepherdjerred/clauderon/internal/console"
	"github.com/shepherdjerred/clauderon/internal/sessionmgr"
)

// shutdownGrace bounds how long in-flight HTTP requests get to finish
// once shutdown begins.
const shutdownGrace = 5 * time.Second

// Server binds both halves of the API surface: the control socket for
// local CLI clients and the HTTP/WebSocket gateway for the web UI. It owns
// neither the Session Manager nor the reconciler; main wires those in.
type Server struct {
	log  *slog.Logger
	ctl  *ControlSocket
	gw   *Gateway
	addr string

	httpSrv *http.Server
}

// New wires a Server. httpAddr is the local address the HTTP/WebSocket
// gateway listens on (e.g. "127.0.0.1:8420"); socketPath is the control
// socket's path.
func New(log *slog.Logger, mgr *sessionmgr.Manager, recon *sessionmgr.Reconciler, consoleState *console.State, socketPath, httpAddr string) *Server {
	log = log.With("component", "apiserver")
	return &Server{
		log:  log,
		ctl:  NewControlSocket(socketPath, log, mgr, recon),
		gw:   NewGateway(log, mgr, recon, consoleState),
		addr: httpAddr,
	}
}

// Start binds the control socket and the HTTP listener and begins serving
// both. It returns once both are listening; call Shutdown to stop them.
func (s *Server) Start() error {
	if err := s.ctl.Start(); err != nil {
		return fmt.Errorf("starting control socket: %w", err)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("binding gateway listener on %s: %w", s.addr, err)
	}

	protocols := new(http.Protocols)
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)

	s.httpSrv = &http.Server{Handler: s.gw.Handler(), Protocols: protocols}
	s.log.Info("gateway listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Shutdown stops accepting new connections and waits up to shutdownGrace
// for in-flight requests to finish before closing the control socket.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()

	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	if closeErr := s.ctl.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
