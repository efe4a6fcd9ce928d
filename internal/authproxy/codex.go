package authproxy

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Dummy Codex credential material. The Codex CLI's startup check only
// verifies that these files exist and parse; no real token is needed
// because every outbound request is routed through this proxy, which
// injects the real credential per-rule.
const (
	DummyAccessToken  = "clauderon-codex-proxy-access-token"
	DummyRefreshToken = "clauderon-codex-proxy-refresh-token"
	DummyAccountID    = "clauderon-codex-proxy-account"
)

// DummyIDToken builds a structurally valid but unsigned ("alg":"none")
// JWT carrying the fields Codex's auth check reads.
func DummyIDToken(accountID string) string {
	if accountID == "" {
		accountID = DummyAccountID
	}

	header, _ := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	payload, _ := json.Marshal(map[string]any{
		"email": "user@example.com",
		"https://api.openai.com/auth": map[string]string{
			"chatgpt_plan_type":   "pro",
			"chatgpt_account_id":  accountID,
		},
	})

	enc := base64.RawURLEncoding.EncodeToString
	return fmt.Sprintf("%s.%s.%s", enc(header), enc(payload), enc([]byte("sig")))
}

// DummyAuthJSON renders the synthetic auth.json Codex reads at startup.
func DummyAuthJSON(accountID string) (string, error) {
	if accountID == "" {
		accountID = DummyAccountID
	}

	doc := map[string]any{
		"OPENAI_API_KEY": nil,
		"tokens": map[string]any{
			"id_token":      DummyIDToken(accountID),
			"access_token":  DummyAccessToken,
			"refresh_token": DummyRefreshToken,
			"account_id":    accountID,
		},
		"last_refresh": time.Now().UTC().Format(time.RFC3339),
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling dummy auth.json: %w", err)
	}
	return string(out), nil
}

// DummyConfigTOML renders the synthetic config.toml Codex reads alongside
// auth.json.
func DummyConfigTOML() string {
	return "cli_auth_credentials_store = \"file\"\n"
}
