// Package apiserver exposes the Session Manager over two wire protocols:
// a length-prefixed JSON control socket for local CLI clients, and an
// HTTP/WebSocket gateway carrying the same request/response protocol
// plus a per-session console WebSocket for interactive attach.
package apiserver

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/shepherdjerred/clauderon/internal/authproxy"
	"github.com/shepherdjerred/clauderon/internal/sessionmgr"
)

// RequestType identifies the kind of control-protocol request.
type RequestType string

const (
	ReqListSessions     RequestType = "ListSessions"
	ReqGetSession       RequestType = "GetSession"
	ReqCreateSession    RequestType = "CreateSession"
	ReqDeleteSession    RequestType = "DeleteSession"
	ReqArchiveSession   RequestType = "ArchiveSession"
	ReqUnarchiveSession RequestType = "UnarchiveSession"
	ReqRefreshSession   RequestType = "RefreshSession"
	ReqAttachSession    RequestType = "AttachSession"
	ReqReconcile        RequestType = "Reconcile"
	ReqSubscribe        RequestType = "Subscribe"
)

// ResponseType identifies the kind of control-protocol response or
// pushed event frame.
type ResponseType string

const (
	RespSessions        ResponseType = "Sessions"
	RespSession         ResponseType = "Session"
	RespCreated         ResponseType = "Created"
	RespDeleted         ResponseType = "Deleted"
	RespArchived        ResponseType = "Archived"
	RespAttachReady     ResponseType = "AttachReady"
	RespReconcileReport ResponseType = "ReconcileReport"
	RespSubscribed      ResponseType = "Subscribed"
	RespError           ResponseType = "Error"
	RespEvent           ResponseType = "Event"
)

// Request is one frame sent from a client to the daemon.
type Request struct {
	Type    RequestType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is one frame sent from the daemon to a client.
type Response struct {
	Type    ResponseType `json:"type"`
	Payload any          `json:"payload,omitempty"`
}

// SessionIDPayload identifies a session by id for the requests that take
// only a session reference. Name is an alternative to ID: GetSession resolves it against live sessions'
// names when set, matching spec's get(id_or_name) lookup surface.
type SessionIDPayload struct {
	ID   uuid.UUID `json:"id,omitempty"`
	Name string    `json:"name,omitempty"`
}

// Resolve returns the identifier to look a session up by: the explicit
// Name if one was given, otherwise the UUID's string form.
func (p SessionIDPayload) Resolve() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID.String()
}

// CreateSessionPayload mirrors sessionmgr.CreateOpts over the wire.
type CreateSessionPayload struct {
	Name           string               `json:"name"`
	Repositories   []sessionmgr.RepoRef `json:"repositories"`
	AgentType      sessionmgr.AgentType `json:"agentType"`
	BackendType    sessionmgr.BackendType `json:"backendType"`
	AccessMode     sessionmgr.AccessMode  `json:"accessMode,omitempty"`
	Rules          []authproxy.Rule       `json:"rules,omitempty"`
	CredentialRefs map[string]string      `json:"credentialRefs,omitempty"`
	Prompt         string                 `json:"prompt,omitempty"`
	Images         []string               `json:"images,omitempty"`
}

// UnarchiveSessionPayload carries the id plus the proxy reconfiguration
// Unarchive needs, since archiving forgets a session's rules.
type UnarchiveSessionPayload struct {
	ID             uuid.UUID          `json:"id"`
	Rules          []authproxy.Rule   `json:"rules,omitempty"`
	CredentialRefs map[string]string  `json:"credentialRefs,omitempty"`
}

// RefreshSessionPayload carries the id plus a follow-up prompt.
type RefreshSessionPayload struct {
	ID     uuid.UUID `json:"id"`
	Prompt string    `json:"prompt"`
	Images []string  `json:"images,omitempty"`
}

// ErrorPayload is the Payload of a RespError frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventPayload is the Payload of a pushed RespEvent frame, pushed to
// every client that has sent a Subscribe request.
type EventPayload struct {
	Kind      string              `json:"kind"` // SessionUpdated (also sent for creation and status changes) or SessionDeleted
	SessionID uuid.UUID           `json:"sessionId"`
	Session   *sessionmgr.Session `json:"session,omitempty"`
}
