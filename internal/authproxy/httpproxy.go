// Package authproxy implements the per-session intercepting HTTPS forward
// proxy: TLS MITM using a locally generated CA, rule-based credential
// injection, a read-only method filter, and an audit log.
package authproxy

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	connectTimeout = 10 * time.Second
	drainTimeout   = 5 * time.Second
)

// decision is the pure (host, method, path) -> verdict mapping, kept
// separate from any I/O so it is exhaustively unit-testable (P5, P6).
type decision struct {
	action  Action
	verdict Verdict
	rule    string
}

func decide(cfg Config, method, host, reqPath string) decision {
	if cfg.AccessMode == "" {
		cfg.AccessMode = "read_write"
	}
	if cfg.AccessMode == "read_only" && IsWriteOperation(method) {
		return decision{action: Action{Kind: ActionDeny}, verdict: VerdictDeniedReadOnly}
	}

	rule, ok := FindMatchingRule(cfg.Rules, method, host, reqPath)
	if !ok {
		return decision{action: Action{Kind: ActionAllow}, verdict: VerdictAllowed}
	}

	switch rule.Action.Kind {
	case ActionDeny:
		return decision{action: rule.Action, verdict: VerdictDeniedByRule, rule: rule.Name}
	case ActionInject:
		return decision{action: rule.Action, verdict: VerdictInjectedCredential, rule: rule.Name}
	default:
		return decision{action: rule.Action, verdict: VerdictAllowed, rule: rule.Name}
	}
}

// Proxy is one session's MITM forward proxy, listening on 127.0.0.1:Port.
type Proxy struct {
	SessionID uuid.UUID
	Port      int
	Config    Config
	CA        *CA
	Audit     *AuditLogger
	Log       *slog.Logger

	transport *http.Transport
	ln        net.Listener
}

// New wires a Proxy; call Start to begin listening.
func New(sessionID uuid.UUID, port int, cfg Config, ca *CA, audit *AuditLogger, log *slog.Logger) *Proxy {
	return &Proxy{
		SessionID: sessionID,
		Port:      port,
		Config:    cfg,
		CA:        ca,
		Audit:     audit,
		Log:       log.With("component", "authproxy", "session_id", sessionID, "port", port),
		transport: &http.Transport{
			Proxy:               nil,
			TLSHandshakeTimeout: connectTimeout,
		},
	}
}

// Start binds the listener and serves CONNECT tunnels in the background.
func (p *Proxy) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p.Port))
	if err != nil {
		return fmt.Errorf("binding proxy listener on port %d: %w", p.Port, err)
	}
	p.ln = ln

	go p.acceptLoop(ctx)
	return nil
}

// Close stops accepting new connections. In-flight tunnels are not
// tracked, bounded by drainTimeout, or interrupted; each runs until its
// connections close.
func (p *Proxy) Close() error {
	if p.ln == nil {
		return nil
	}
	return p.ln.Close()
}

func (p *Proxy) acceptLoop(ctx context.Context) {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		go p.handleConn(ctx, conn)
	}
}

func (p *Proxy) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err != nil {
		return
	}

	if req.Method != http.MethodConnect {
		p.respondPlain(conn, http.StatusBadRequest, "proxy only supports CONNECT tunnels")
		return
	}

	host := req.URL.Hostname()
	if host == "" {
		host = strings.Split(req.Host, ":")[0]
	}

	if _, err := fmt.Fprintf(conn, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
		return
	}

	p.handleTunnel(ctx, conn, req.Host, host)
}

// handleTunnel performs the TLS MITM handshake for host and serves
// requests inside it, falling back to opaque byte forwarding if the
// client's first bytes are not a TLS ClientHello.
func (p *Proxy) handleTunnel(ctx context.Context, clientConn net.Conn, targetAddr, host string) {
	_, br, isTLS := peekTLS(clientConn)
	if !isTLS {
		p.proxyOpaque(ctx, br, clientConn, targetAddr)
		return
	}

	tlsConn := tls.Server(bufferedConn{Reader: br, Conn: clientConn}, &tls.Config{
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			name := hello.ServerName
			if name == "" {
				name = host
			}
			return p.CA.LeafFor(name)
		},
		// serveHTTPOverTunnel only speaks HTTP/1.1 (bufio.Reader +
		// http.ReadRequest); advertising h2 here would let a client
		// negotiate a protocol this tunnel can't actually serve.
		NextProtos: []string{"http/1.1"},
	})
	defer tlsConn.Close()

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		p.Log.Debug("tls handshake with client failed", "host", host, "error", err)
		return
	}

	p.serveHTTPOverTunnel(ctx, tlsConn, host)
}

func (p *Proxy) serveHTTPOverTunnel(ctx context.Context, tlsConn *tls.Conn, host string) {
	br := bufio.NewReader(tlsConn)
	for {
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		req = req.WithContext(ctx)

		resp := p.handleRequest(ctx, req, host)
		if err := resp.Write(tlsConn); err != nil {
			return
		}
		if resp.Body != nil {
			resp.Body.Close()
		}
	}
}

// handleRequest applies the read-only filter and rule set to one HTTP
// request read inside the TLS tunnel and returns the response to write
// back to the client.
func (p *Proxy) handleRequest(ctx context.Context, req *http.Request, host string) *http.Response {
	d := decide(p.Config, req.Method, host, req.URL.Path)

	switch d.action.Kind {
	case ActionDeny:
		p.audit(req, host, d.verdict, d.rule, 0)
		return denyResponse(req, d.verdict)
	case ActionInject:
		p.inject(req, d.action)
	}

	req.URL.Scheme = "https"
	req.URL.Host = host
	req.RequestURI = ""

	upstreamCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	resp, err := p.transport.RoundTrip(req.WithContext(upstreamCtx))
	if err != nil {
		p.audit(req, host, d.verdict, d.rule, 0)
		return badGatewayResponse(req)
	}

	p.audit(req, host, d.verdict, d.rule, resp.StatusCode)
	return resp
}

func (p *Proxy) inject(req *http.Request, action Action) {
	secret := p.Config.Credentials[action.CredentialName]
	switch action.Placement {
	case PlacementBearer:
		req.Header.Set("Authorization", "Bearer "+secret)
	case PlacementHeader:
		req.Header.Set(action.PlacementName, secret)
	case PlacementQuery:
		q := req.URL.Query()
		q.Set(action.PlacementName, secret)
		req.URL.RawQuery = q.Encode()
	}
}

func (p *Proxy) audit(req *http.Request, host string, verdict Verdict, rule string, upstreamStatus int) {
	if p.Audit == nil {
		return
	}
	_ = p.Audit.Record(AuditEntry{
		Method: req.Method, Host: host, Path: req.URL.Path,
		Verdict: verdict, Rule: rule, UpstreamStatus: upstreamStatus,
	})
}

// proxyOpaque dials the real target and splices raw bytes both ways,
// for CONNECT tunnels that are not carrying HTTP over TLS.
func (p *Proxy) proxyOpaque(ctx context.Context, clientIn io.Reader, clientConn net.Conn, targetAddr string) {
	d := net.Dialer{Timeout: connectTimeout}
	upstream, err := d.DialContext(ctx, "tcp", targetAddr)
	if err != nil {
		p.Log.Debug("opaque dial failed", "target", targetAddr, "error", err)
		return
	}
	defer upstream.Close()

	if p.Audit != nil {
		_ = p.Audit.Record(AuditEntry{Method: "CONNECT", Host: targetAddr, Verdict: VerdictAllowedOpaque})
	}

	done := make(chan struct{}, 2)
	go func() { io.Copy(upstream, clientIn); done <- struct{}{} }()
	go func() { io.Copy(clientConn, upstream); done <- struct{}{} }()
	<-done
}

func (p *Proxy) respondPlain(conn net.Conn, status int, msg string) {
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\nContent-Length: %d\r\n\r\n%s", status, http.StatusText(status), len(msg), msg)
}

func denyResponse(req *http.Request, verdict Verdict) *http.Response {
	body := fmt.Sprintf("denied: %s", verdict)
	return &http.Response{
		StatusCode: http.StatusForbidden,
		Status:     "403 Forbidden",
		Proto:      "HTTP/1.1", ProtoMajor: 1, ProtoMinor: 1,
		Header:        http.Header{"Content-Length": {fmt.Sprint(len(body))}},
		Body:          io.NopCloser(strings.NewReader(body)),
		Request:       req,
		ContentLength: int64(len(body)),
	}
}

func badGatewayResponse(req *http.Request) *http.Response {
	body := "bad gateway"
	return &http.Response{
		StatusCode: http.StatusBadGateway,
		Status:     "502 Bad Gateway",
		Proto:      "HTTP/1.1", ProtoMajor: 1, ProtoMinor: 1,
		Header:        http.Header{"Content-Length": {fmt.Sprint(len(body))}},
		Body:          io.NopCloser(strings.NewReader(body)),
		Request:       req,
		ContentLength: int64(len(body)),
	}
}

// peekTLS reads the first byte to check for a TLS record header (0x16)
// without losing it, returning a reader positioned back at the start.
func peekTLS(conn net.Conn) (byte, *bufio.Reader, bool) {
	br := bufio.NewReader(conn)
	b, err := br.Peek(1)
	if err != nil || len(b) == 0 {
		return 0, br, false
	}
	return b[0], br, b[0] == 0x16
}

// bufferedConn lets tls.Server consume a net.Conn through a bufio.Reader
// that has already buffered some bytes read during protocol sniffing.
type bufferedConn struct {
	Reader *bufio.Reader
	net.Conn
}

func (b bufferedConn) Read(p []byte) (int, error) { return b.Reader.Read(p) }
