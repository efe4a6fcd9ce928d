package authproxy_test

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdjerred/clauderon/internal/authproxy"
)

func TestDummyIDToken(t *testing.T) {
	token := authproxy.DummyIDToken("")
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	var header struct {
		Alg string `json:"alg"`
	}
	require.NoError(t, json.Unmarshal(headerJSON, &header))
	assert.Equal(t, "none", header.Alg)

	payloadJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(payloadJSON, &payload))
	assert.Contains(t, payload, "email")
}

func TestDummyAuthJSON(t *testing.T) {
	out, err := authproxy.DummyAuthJSON("custom-account")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	tokens, ok := doc["tokens"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "custom-account", tokens["account_id"])
	assert.Equal(t, authproxy.DummyAccessToken, tokens["access_token"])
}
