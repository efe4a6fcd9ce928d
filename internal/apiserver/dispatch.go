package apiserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shepherdjerred/clauderon/internal/clauderr"
	"github.com/shepherdjerred/clauderon/internal/sessionmgr"
)

// dispatch turns one Request into a Response by calling into the Session
// Manager. It is shared by the control socket and the HTTP/WebSocket
// gateway so both transports speak exactly the same protocol.
func dispatch(ctx context.Context, log *slog.Logger, mgr *sessionmgr.Manager, recon *sessionmgr.Reconciler, req Request) Response {
	switch req.Type {
	case ReqListSessions:
		sessions, err := mgr.List(ctx)
		if err != nil {
			return errResponse(err)
		}
		return Response{Type: RespSessions, Payload: sessions}

	case ReqGetSession:
		var p SessionIDPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return badRequest(err)
		}
		sess, err := mgr.Get(ctx, p.Resolve())
		if err != nil {
			return errResponse(err)
		}
		return Response{Type: RespSession, Payload: sess}

	case ReqCreateSession:
		var p CreateSessionPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return badRequest(err)
		}
		sess, err := mgr.Create(ctx, sessionmgr.CreateOpts{
			Name:           p.Name,
			Repositories:   p.Repositories,
			AgentType:      p.AgentType,
			BackendType:    p.BackendType,
			AccessMode:     p.AccessMode,
			Rules:          p.Rules,
			CredentialRefs: p.CredentialRefs,
			Prompt:         p.Prompt,
			Images:         p.Images,
		})
		if err != nil {
			return errResponse(err)
		}
		return Response{Type: RespCreated, Payload: sess}

	case ReqDeleteSession:
		var p SessionIDPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return badRequest(err)
		}
		if err := mgr.Delete(ctx, p.ID); err != nil {
			return errResponse(err)
		}
		return Response{Type: RespDeleted, Payload: p}

	case ReqArchiveSession:
		var p SessionIDPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return badRequest(err)
		}
		if err := mgr.Archive(ctx, p.ID); err != nil {
			return errResponse(err)
		}
		return Response{Type: RespArchived, Payload: p}

	case ReqUnarchiveSession:
		var p UnarchiveSessionPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return badRequest(err)
		}
		sess, err := mgr.Unarchive(ctx, p.ID, sessionmgr.UnarchiveOpts{
			Rules:          p.Rules,
			CredentialRefs: p.CredentialRefs,
		})
		if err != nil {
			return errResponse(err)
		}
		return Response{Type: RespSession, Payload: sess}

	case ReqRefreshSession:
		var p RefreshSessionPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return badRequest(err)
		}
		if err := mgr.Refresh(ctx, p.ID, p.Prompt, p.Images); err != nil {
			return errResponse(err)
		}
		sess, err := mgr.Get(ctx, p.ID.String())
		if err != nil {
			return errResponse(err)
		}
		return Response{Type: RespSession, Payload: sess}

	case ReqAttachSession:
		var p SessionIDPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return badRequest(err)
		}
		argv, err := mgr.Attach(ctx, p.ID)
		if err != nil {
			return errResponse(err)
		}
		return Response{Type: RespAttachReady, Payload: map[string]any{"id": p.ID, "argv": argv}}

	case ReqReconcile:
		pass, err := recon.ReconcileAll(ctx)
		if err != nil {
			return errResponse(err)
		}
		return Response{Type: RespReconcileReport, Payload: pass}

	case ReqSubscribe:
		// Subscribe is handled specially by each transport, since it turns
		// a request/response exchange into a stream of pushed Event
		// frames; dispatch only acknowledges it here.
		return Response{Type: RespSubscribed}

	default:
		log.Warn("unknown control request type", "type", req.Type)
		return Response{Type: RespError, Payload: ErrorPayload{
			Code:    string(clauderr.CodeInvalidInput),
			Message: fmt.Sprintf("unknown request type %q", req.Type),
		}}
	}
}

func errResponse(err error) Response {
	return Response{Type: RespError, Payload: ErrorPayload{
		Code:    string(clauderr.CodeOf(err)),
		Message: err.Error(),
	}}
}

func badRequest(err error) Response {
	return Response{Type: RespError, Payload: ErrorPayload{
		Code:    string(clauderr.CodeInvalidInput),
		Message: fmt.Sprintf("decoding payload: %v", err),
	}}
}

// eventPayloadFor translates a sessionmgr.StateEvent into the wire
// EventPayload pushed to subscribed clients.
func eventPayloadFor(evt sessionmgr.StateEvent) EventPayload {
	kind := "SessionUpdated"
	if evt.Type == sessionmgr.StateEventRemoved {
		kind = "SessionDeleted"
	}
	return EventPayload{Kind: kind, SessionID: evt.SessionID, Session: evt.Snapshot}
}
