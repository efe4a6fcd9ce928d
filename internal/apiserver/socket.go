package apiserver

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/shepherdjerred/clauderon/internal/sessionmgr"
)

// maxFrameSize bounds a single control-socket frame, guarding against a
// misbehaving client sending a bogus length prefix.
const maxFrameSize = 16 * 1024 * 1024

// ControlSocket serves the daemon control protocol over a local Unix
// domain socket, one goroutine per connection. Frames are a 4-byte
// big-endian length prefix followed by that many bytes of JSON.
type ControlSocket struct {
	socketPath string
	log        *slog.Logger
	mgr        *sessionmgr.Manager
	recon      *sessionmgr.Reconciler

	ln net.Listener
}

// NewControlSocket wires a control socket bound to socketPath.
func NewControlSocket(socketPath string, log *slog.Logger, mgr *sessionmgr.Manager, recon *sessionmgr.Reconciler) *ControlSocket {
	return &ControlSocket{
		socketPath: socketPath,
		log:        log.With("component", "controlsocket"),
		mgr:        mgr,
		recon:      recon,
	}
}

// Start binds the socket and begins accepting connections in a background
// goroutine. It returns once the socket is listening.
func (s *ControlSocket) Start() error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return err
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("binding control socket %s: %w", s.socketPath, err)
	}
	s.ln = ln
	s.log.Info("control socket started", "socket", s.socketPath)

	go s.acceptLoop()
	return nil
}

// Close stops accepting new connections.
func (s *ControlSocket) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

func (s *ControlSocket) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *ControlSocket) handleConn(conn net.Conn) {
	defer conn.Close()
	ctx := context.Background()

	var subCh chan sessionmgr.StateEvent
	var writeMu sync.Mutex

	for {
		req, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("control connection read error", "error", err)
			}
			if subCh != nil {
				s.mgr.Unsubscribe(subCh)
			}
			return
		}

		resp := dispatch(ctx, s.log, s.mgr, s.recon, req)

		if req.Type == ReqSubscribe && resp.Type == RespSubscribed {
			subCh = s.mgr.Subscribe()
			go s.pumpEvents(conn, subCh, &writeMu)
		}

		writeMu.Lock()
		err = writeFrame(conn, resp)
		writeMu.Unlock()
		if err != nil {
			if subCh != nil {
				s.mgr.Unsubscribe(subCh)
			}
			return
		}
	}
}

func (s *ControlSocket) pumpEvents(conn net.Conn, ch chan sessionmgr.StateEvent, writeMu *sync.Mutex) {
	for evt := range ch {
		frame := Response{Type: RespEvent, Payload: eventPayloadFor(evt)}
		writeMu.Lock()
		err := writeFrame(conn, frame)
		writeMu.Unlock()
		if err != nil {
			s.mgr.Unsubscribe(ch)
			return
		}
	}
}

func readFrame(r io.Reader) (Request, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Request{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return Request{}, fmt.Errorf("frame of %d bytes exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, fmt.Errorf("decoding request frame: %w", err)
	}
	return req, nil
}

func writeFrame(w io.Writer, resp Response) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding response frame: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}
