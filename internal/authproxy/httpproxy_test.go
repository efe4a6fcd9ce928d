package authproxy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	t.Run("read-only mode denies writes before rule matching", func(t *testing.T) {
		cfg := Config{
			AccessMode: "read_only",
			Rules: []Rule{
				{Name: "allow-all", HostGlob: "*", PathGlob: "*", Action: Action{Kind: ActionAllow}},
			},
		}
		d := decide(cfg, http.MethodPost, "api.example.com", "/v1/x")
		assert.Equal(t, VerdictDeniedReadOnly, d.verdict)
	})

	t.Run("read-only mode allows safe methods through to rules", func(t *testing.T) {
		cfg := Config{AccessMode: "read_only"}
		d := decide(cfg, http.MethodGet, "api.example.com", "/v1/x")
		assert.Equal(t, VerdictAllowed, d.verdict)
	})

	t.Run("no matching rule allows by default", func(t *testing.T) {
		cfg := Config{AccessMode: "read_write"}
		d := decide(cfg, http.MethodGet, "api.example.com", "/v1/x")
		assert.Equal(t, VerdictAllowed, d.verdict)
	})

	t.Run("matching inject rule injects", func(t *testing.T) {
		cfg := Config{
			AccessMode: "read_write",
			Rules: []Rule{
				{Name: "anthropic", HostGlob: "api.anthropic.com", PathGlob: "*",
					Action: Action{Kind: ActionInject, CredentialName: "anthropic", Placement: PlacementHeader, PlacementName: "x-api-key"}},
			},
		}
		d := decide(cfg, http.MethodGet, "api.anthropic.com", "/v1/messages")
		assert.Equal(t, VerdictInjectedCredential, d.verdict)
		assert.Equal(t, "anthropic", d.rule)
	})

	t.Run("matching deny rule denies", func(t *testing.T) {
		cfg := Config{
			AccessMode: "read_write",
			Rules: []Rule{
				{Name: "block-billing", HostGlob: "api.example.com", PathGlob: "/billing/*", Action: Action{Kind: ActionDeny}},
			},
		}
		d := decide(cfg, http.MethodGet, "api.example.com", "/billing/invoices")
		assert.Equal(t, VerdictDeniedByRule, d.verdict)
		assert.Equal(t, "block-billing", d.rule)
	})

	t.Run("first match wins among overlapping rules", func(t *testing.T) {
		cfg := Config{
			Rules: []Rule{
				{Name: "first", HostGlob: "*", PathGlob: "*", Action: Action{Kind: ActionDeny}},
				{Name: "second", HostGlob: "*", PathGlob: "*", Action: Action{Kind: ActionAllow}},
			},
		}
		d := decide(cfg, http.MethodGet, "api.example.com", "/x")
		assert.Equal(t, "first", d.rule)
		assert.Equal(t, VerdictDeniedByRule, d.verdict)
	})
}
