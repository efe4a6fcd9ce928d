package authproxy

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Verdict is the outcome AuditLogger records for one proxied request.
type Verdict string

const (
	VerdictAllowed             Verdict = "allowed"
	VerdictAllowedOpaque       Verdict = "allowed_opaque"
	VerdictDeniedReadOnly      Verdict = "denied_read_only"
	VerdictDeniedByRule        Verdict = "denied_by_rule"
	VerdictInjectedCredential  Verdict = "injected_credential"
)

// AuditEntry is one line of the per-session audit log.
type AuditEntry struct {
	SessionID     uuid.UUID `json:"sessionId"`
	Timestamp     time.Time `json:"timestamp"`
	Method        string    `json:"method"`
	Host          string    `json:"host"`
	Path          string    `json:"path"`
	Verdict       Verdict   `json:"verdict"`
	UpstreamStatus int      `json:"upstreamStatus,omitempty"`
	Rule          string    `json:"rule,omitempty"`
}

// AuditLogger appends newline-delimited JSON audit entries to w. One
// logger serves one session's proxy; writes are serialized since the
// underlying writer (a log file) is not safe for concurrent use.
type AuditLogger struct {
	sessionID uuid.UUID

	mu sync.Mutex
	w  io.Writer
}

// NewAuditLogger creates a logger that attributes every entry to sessionID.
func NewAuditLogger(sessionID uuid.UUID, w io.Writer) *AuditLogger {
	return &AuditLogger{sessionID: sessionID, w: w}
}

// Record appends one audit entry, always setting SessionID to the
// logger's session and filling in Timestamp if unset.
func (l *AuditLogger) Record(entry AuditEntry) error {
	entry.SessionID = l.sessionID
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(line)
	return err
}
