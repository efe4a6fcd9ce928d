package authproxy_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdjerred/clauderon/internal/authproxy"
)

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	sessionID := uuid.New()
	logger := authproxy.NewAuditLogger(sessionID, &buf)

	require.NoError(t, logger.Record(authproxy.AuditEntry{
		Method: "GET", Host: "api.anthropic.com", Path: "/v1/messages",
		Verdict: authproxy.VerdictInjectedCredential, UpstreamStatus: 200,
	}))
	require.NoError(t, logger.Record(authproxy.AuditEntry{
		Method: "POST", Host: "api.example.com", Path: "/v1/x",
		Verdict: authproxy.VerdictDeniedReadOnly,
	}))

	scanner := bufio.NewScanner(&buf)
	var entries []authproxy.AuditEntry
	for scanner.Scan() {
		var e authproxy.AuditEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}

	require.Len(t, entries, 2)
	assert.Equal(t, sessionID, entries[0].SessionID)
	assert.Equal(t, authproxy.VerdictInjectedCredential, entries[0].Verdict)
	assert.Equal(t, authproxy.VerdictDeniedReadOnly, entries[1].Verdict)
	assert.NotZero(t, entries[0].Timestamp)
}
