package apiserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/shepherdjerred/clauderon/internal/console"
	"github.com/shepherdjerred/clauderon/internal/sessionmgr"
)

// writeWait bounds how long a single WebSocket write may block.
const writeWait = 10 * time.Second

// Gateway exposes the control protocol over WebSocket for browser clients,
// plus a console WebSocket per session for interactive attach. It carries
// no authentication of its own: the signed-cookie/WebAuthn login flow that
// gates access in a full deployment sits in front of this as a reverse
// proxy concern and is out of scope here.
type Gateway struct {
	log   *slog.Logger
	mgr   *sessionmgr.Manager
	recon *sessionmgr.Reconciler
	hub   *ConsoleHub

	upgrader websocket.Upgrader
}

// NewGateway wires a Gateway against the Session Manager and a console hub.
func NewGateway(log *slog.Logger, mgr *sessionmgr.Manager, recon *sessionmgr.Reconciler, consoleState *console.State) *Gateway {
	return &Gateway{
		log:   log.With("component", "gateway"),
		mgr:   mgr,
		recon: recon,
		hub:   NewConsoleHub(log, consoleState),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Local daemon serving a local UI; any origin is acceptable.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the gateway's HTTP mux. Callers mount it under whatever
// prefix their reverse proxy expects.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleControlWS)
	mux.HandleFunc("/ws/console/", g.handleConsoleWS)
	return mux
}

// handleControlWS upgrades to a WebSocket carrying the same Request/
// Response/Event frames as the control socket, one JSON message per frame
// instead of length-prefixed.
func (g *Gateway) handleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("control websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	var subCh chan sessionmgr.StateEvent
	defer func() {
		if subCh != nil {
			g.mgr.Unsubscribe(subCh)
		}
	}()

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		resp := dispatch(ctx, g.log, g.mgr, g.recon, req)

		if req.Type == ReqSubscribe && resp.Type == RespSubscribed {
			subCh = g.mgr.Subscribe()
			go g.pumpEvents(conn, subCh)
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func (g *Gateway) pumpEvents(conn *websocket.Conn, ch chan sessionmgr.StateEvent) {
	for evt := range ch {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(Response{Type: RespEvent, Payload: eventPayloadFor(evt)}); err != nil {
			g.mgr.Unsubscribe(ch)
			return
		}
	}
}

// consoleFrameKind enumerates the console WebSocket's framed message types.
type consoleFrameKind string

const (
	consoleAttach   consoleFrameKind = "Attach"
	consoleAttached consoleFrameKind = "Attached"
	consoleOutput   consoleFrameKind = "Output"
	consoleInput    consoleFrameKind = "Input"
	consoleResize   consoleFrameKind = "Resize"
	consoleError    consoleFrameKind = "Error"
)

type consoleFrame struct {
	Kind consoleFrameKind `json:"kind"`
	Data string           `json:"data,omitempty"`
	Cols uint16           `json:"cols,omitempty"`
	Rows uint16           `json:"rows,omitempty"`
}

// handleConsoleWS upgrades to a per-session console WebSocket. The URL
// path is /ws/console/<session-id>.
func (g *Gateway) handleConsoleWS(w http.ResponseWriter, r *http.Request) {
	idStr := r.URL.Path[len("/ws/console/"):]
	sessionID, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	sess, err := g.mgr.Get(ctx, sessionID.String())
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	argv, err := g.mgr.Attach(ctx, sess.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("console websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	clientID := uuid.New()
	out, active, err := g.hub.Attach(sessionID, clientID, argv)
	if err != nil {
		_ = conn.WriteJSON(consoleFrame{Kind: consoleError, Data: err.Error()})
		return
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(consoleFrame{Kind: consoleAttached, Data: boolStr(active)})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for chunk := range out {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(consoleFrame{Kind: consoleOutput, Data: string(chunk)}); err != nil {
				return
			}
		}
	}()

	g.readConsoleInput(context.Background(), conn, sessionID, clientID)
	// The client disconnected or errored; detach it so the hub closes its
	// output channel, which lets the pump goroutine above exit.
	g.hub.Detach(sessionID, clientID)
	<-done
}

func (g *Gateway) readConsoleInput(_ context.Context, conn *websocket.Conn, sessionID, clientID uuid.UUID) {
	for {
		var frame consoleFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Kind {
		case consoleInput:
			if err := g.hub.Write(sessionID, clientID, []byte(frame.Data)); err != nil {
				g.log.Warn("console input write failed", "session_id", sessionID, "error", err)
			}
		case consoleResize:
			if err := g.hub.Resize(sessionID, frame.Cols, frame.Rows); err != nil {
				g.log.Warn("console resize failed", "session_id", sessionID, "error", err)
			}
		default:
			// Attach/Attached/Output/Error are server-to-client only.
		}
	}
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
