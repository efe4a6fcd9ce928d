package apiserver

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty/v2"
	"github.com/google/uuid"

	"github.com/shepherdjerred/clauderon/internal/console"
	"github.com/shepherdjerred/clauderon/internal/procutil"
)

// ptySession is one live local client process attached to a session's
// execution unit, shared by every WebSocket client currently viewing it.
type ptySession struct {
	ptmx *os.File
	cmd  *exec.Cmd
	done chan struct{}

	mu       sync.Mutex
	viewers  map[uuid.UUID]chan []byte
}

// ConsoleHub multiplexes one pty-backed attach process per session across
// any number of console WebSocket clients, tracking which client currently
// holds write access via console.State.
type ConsoleHub struct {
	log   *slog.Logger
	state *console.State

	mu       sync.Mutex
	sessions map[uuid.UUID]*ptySession
}

// NewConsoleHub wires a ConsoleHub against an existing console.State.
func NewConsoleHub(log *slog.Logger, state *console.State) *ConsoleHub {
	return &ConsoleHub{
		log:      log.With("component", "consolehub"),
		state:    state,
		sessions: make(map[uuid.UUID]*ptySession),
	}
}

// Attach registers clientID as a viewer of sessionID, spawning argv as the
// session's attach process if no viewer is currently connected to it. It
// returns a channel of output chunks and whether this client became the
// active (input-forwarding) client.
func (h *ConsoleHub) Attach(sessionID, clientID uuid.UUID, argv []string) (<-chan []byte, bool, error) {
	h.mu.Lock()
	sess, ok := h.sessions[sessionID]
	if !ok {
		var err error
		sess, err = h.spawn(sessionID, argv)
		if err != nil {
			h.mu.Unlock()
			return nil, false, err
		}
		h.sessions[sessionID] = sess
	}
	h.mu.Unlock()

	out := make(chan []byte, 64)
	sess.mu.Lock()
	sess.viewers[clientID] = out
	sess.mu.Unlock()

	active := h.state.RegisterClient(sessionID, clientID)
	return out, active, nil
}

// Detach removes clientID from sessionID's viewer set. Once the last
// viewer leaves, the attach process is terminated.
func (h *ConsoleHub) Detach(sessionID, clientID uuid.UUID) {
	h.state.UnregisterClient(sessionID, clientID)

	h.mu.Lock()
	sess, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	sess.mu.Lock()
	if ch, ok := sess.viewers[clientID]; ok {
		close(ch)
		delete(sess.viewers, clientID)
	}
	empty := len(sess.viewers) == 0
	sess.mu.Unlock()
	if empty {
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()

	if empty {
		if sess.cmd.Process != nil {
			_ = procutil.Kill(sess.cmd.Process.Pid)
		}
		_ = sess.ptmx.Close()
	}
}

// Write forwards input to sessionID's attach process if clientID currently
// holds the active (input-forwarding) role.
func (h *ConsoleHub) Write(sessionID, clientID uuid.UUID, data []byte) error {
	if !h.state.IsActive(sessionID, clientID) {
		return nil
	}
	h.mu.Lock()
	sess, ok := h.sessions[sessionID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("no attach process for session %s", sessionID)
	}
	_, err := sess.ptmx.Write(data)
	return err
}

// Resize changes the pty dimensions for sessionID's attach process.
func (h *ConsoleHub) Resize(sessionID uuid.UUID, cols, rows uint16) error {
	h.mu.Lock()
	sess, ok := h.sessions[sessionID]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return pty.Setsize(sess.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

func (h *ConsoleHub) spawn(sessionID uuid.UUID, argv []string) (*ptySession, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty attach command for session %s", sessionID)
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = procutil.ConfigureCleanup(cmd.SysProcAttr)
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: 80, Rows: 24})
	if err != nil {
		return nil, fmt.Errorf("start attach process: %w", err)
	}

	sess := &ptySession{
		ptmx:    ptmx,
		cmd:     cmd,
		done:    make(chan struct{}),
		viewers: make(map[uuid.UUID]chan []byte),
	}

	go h.pump(sessionID, sess)
	go func() {
		_ = cmd.Wait()
		close(sess.done)
	}()

	return sess, nil
}

func (h *ConsoleHub) pump(sessionID uuid.UUID, sess *ptySession) {
	buf := make([]byte, 4096)
	for {
		n, err := sess.ptmx.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			sess.mu.Lock()
			for _, ch := range sess.viewers {
				select {
				case ch <- chunk:
				default:
					h.log.Warn("dropping console output, viewer channel full", "session_id", sessionID)
				}
			}
			sess.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}
