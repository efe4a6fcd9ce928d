package apiserver_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdjerred/clauderon/internal/apiserver"
	"github.com/shepherdjerred/clauderon/internal/console"
	"github.com/shepherdjerred/clauderon/internal/sessionmgr"
)

func newTestGateway(t *testing.T) (*httptest.Server, *sessionmgr.Manager, string) {
	t.Helper()
	mgr, repo := newTestManager(t)
	recon := sessionmgr.NewReconciler(mgr)
	gw := apiserver.NewGateway(testLogger(), mgr, recon, console.New())
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	return srv, mgr, repo
}

func TestGatewayControlWSCreateSession(t *testing.T) {
	srv, _, repo := newTestGateway(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	payload, _ := json.Marshal(apiserver.CreateSessionPayload{
		Name:         "gateway-test",
		Repositories: []sessionmgr.RepoRef{{RepoPath: repo}},
		AgentType:    sessionmgr.AgentClaude,
		BackendType:  sessionmgr.BackendContainer,
		Prompt:       "hello",
	})
	require.NoError(t, conn.WriteJSON(apiserver.Request{Type: apiserver.ReqCreateSession, Payload: payload}))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp apiserver.Response
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, apiserver.RespCreated, resp.Type)
}

func TestGatewayControlWSSubscribeReceivesEvent(t *testing.T) {
	srv, _, repo := newTestGateway(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	subConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer subConn.Close()

	require.NoError(t, subConn.WriteJSON(apiserver.Request{Type: apiserver.ReqSubscribe}))
	subConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ack apiserver.Response
	require.NoError(t, subConn.ReadJSON(&ack))
	require.Equal(t, apiserver.RespSubscribed, ack.Type)

	createConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer createConn.Close()

	payload, _ := json.Marshal(apiserver.CreateSessionPayload{
		Name:         "subscribe-test",
		Repositories: []sessionmgr.RepoRef{{RepoPath: repo}},
		AgentType:    sessionmgr.AgentClaude,
		BackendType:  sessionmgr.BackendContainer,
		Prompt:       "hello",
	})
	require.NoError(t, createConn.WriteJSON(apiserver.Request{Type: apiserver.ReqCreateSession, Payload: payload}))
	createConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var createResp apiserver.Response
	require.NoError(t, createConn.ReadJSON(&createResp))
	require.Equal(t, apiserver.RespCreated, createResp.Type)

	subConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var evt apiserver.Response
	require.NoError(t, subConn.ReadJSON(&evt))
	assert.Equal(t, apiserver.RespEvent, evt.Type)
}
