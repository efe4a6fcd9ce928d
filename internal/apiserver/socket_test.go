package apiserver_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdjerred/clauderon/internal/agentadapter/claude"
	"github.com/shepherdjerred/clauderon/internal/apiserver"
	"github.com/shepherdjerred/clauderon/internal/authproxy"
	"github.com/shepherdjerred/clauderon/internal/authproxy/portalloc"
	"github.com/shepherdjerred/clauderon/internal/execbackend"
	"github.com/shepherdjerred/clauderon/internal/gitbackend"
	"github.com/shepherdjerred/clauderon/internal/proxymgr"
	"github.com/shepherdjerred/clauderon/internal/sessionmgr"
)

type fakeExecBackend struct {
	units map[string]bool
}

func newFakeExecBackend() *fakeExecBackend { return &fakeExecBackend{units: make(map[string]bool)} }

func (b *fakeExecBackend) Create(_ context.Context, name, _ string, _ []string, _ execbackend.CreateOptions, _ *execbackend.ProxyConfig) (string, error) {
	b.units[name] = true
	return name, nil
}
func (b *fakeExecBackend) Exists(_ context.Context, id string) (bool, error) { return b.units[id], nil }
func (b *fakeExecBackend) Delete(_ context.Context, id string) error        { delete(b.units, id); return nil }
func (b *fakeExecBackend) AttachCommand(_ context.Context, id string) ([]string, error) {
	return []string{"true"}, nil
}
func (b *fakeExecBackend) GetOutput(context.Context, string, int) (string, error) { return "", nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func initRepo(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test drives the system git binary")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644))
	run("add", "README.md")
	run("commit", "-m", "initial")
	return dir
}

func newTestManager(t *testing.T) (*sessionmgr.Manager, string) {
	t.Helper()
	git, err := gitbackend.New()
	require.NoError(t, err)
	ca, err := authproxy.NewCA()
	require.NoError(t, err)
	proxies := proxymgr.New(ca, portalloc.New(), nil, t.TempDir(), testLogger())
	backends := map[sessionmgr.BackendType]execbackend.Backend{
		sessionmgr.BackendContainer:   newFakeExecBackend(),
		sessionmgr.BackendMultiplexer: newFakeExecBackend(),
	}
	store := newMemStore()
	mgr := sessionmgr.New(testLogger(), store, git, backends, proxies, t.TempDir(), claude.New())
	return mgr, initRepo(t)
}

func TestControlSocketCreateAndList(t *testing.T) {
	mgr, repo := newTestManager(t)
	recon := sessionmgr.NewReconciler(mgr)

	sockPath := filepath.Join(t.TempDir(), "clauderond.sock")
	cs := apiserver.NewControlSocket(sockPath, testLogger(), mgr, recon)
	require.NoError(t, cs.Start())
	defer cs.Close()

	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer conn.Close()

	createPayload, _ := json.Marshal(apiserver.CreateSessionPayload{
		Name:         "socket-test",
		Repositories: []sessionmgr.RepoRef{{RepoPath: repo}},
		AgentType:    sessionmgr.AgentClaude,
		BackendType:  sessionmgr.BackendContainer,
		Prompt:       "hello",
	})
	resp := roundTrip(t, conn, apiserver.Request{Type: apiserver.ReqCreateSession, Payload: createPayload})
	assert.Equal(t, apiserver.RespCreated, resp.Type)

	resp = roundTrip(t, conn, apiserver.Request{Type: apiserver.ReqListSessions})
	assert.Equal(t, apiserver.RespSessions, resp.Type)
}

func TestControlSocketUnknownSessionIsError(t *testing.T) {
	mgr, _ := newTestManager(t)
	recon := sessionmgr.NewReconciler(mgr)
	sockPath := filepath.Join(t.TempDir(), "clauderond.sock")
	cs := apiserver.NewControlSocket(sockPath, testLogger(), mgr, recon)
	require.NoError(t, cs.Start())
	defer cs.Close()

	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer conn.Close()

	payload, _ := json.Marshal(apiserver.SessionIDPayload{ID: uuid.New()})
	resp := roundTrip(t, conn, apiserver.Request{Type: apiserver.ReqGetSession, Payload: payload})
	assert.Equal(t, apiserver.RespError, resp.Type)
}

func roundTrip(t *testing.T, conn net.Conn, req apiserver.Request) apiserver.Response {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	lenBuf := make([]byte, 4)
	lenBuf[0] = byte(len(body) >> 24)
	lenBuf[1] = byte(len(body) >> 16)
	lenBuf[2] = byte(len(body) >> 8)
	lenBuf[3] = byte(len(body))
	_, err = conn.Write(lenBuf)
	require.NoError(t, err)
	_, err = conn.Write(body)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	respLenBuf := make([]byte, 4)
	_, err = readFull(conn, respLenBuf)
	require.NoError(t, err)
	n := int(respLenBuf[0])<<24 | int(respLenBuf[1])<<16 | int(respLenBuf[2])<<8 | int(respLenBuf[3])
	respBody := make([]byte, n)
	_, err = readFull(conn, respBody)
	require.NoError(t, err)

	var resp apiserver.Response
	require.NoError(t, json.Unmarshal(respBody, &resp))
	return resp
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
