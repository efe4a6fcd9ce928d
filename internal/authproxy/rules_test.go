package authproxy_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shepherdjerred/clauderon/internal/authproxy"
)

func TestFindMatchingRule(t *testing.T) {
	t.Run("first match wins among overlapping rules", func(t *testing.T) {
		rules := []authproxy.Rule{
			{Name: "r1", HostGlob: "api.anthropic.com", PathGlob: "*", Action: authproxy.Action{Kind: authproxy.ActionAllow}},
			{Name: "r2", HostGlob: "api.anthropic.com", PathGlob: "*", Action: authproxy.Action{Kind: authproxy.ActionDeny}},
		}
		rule, ok := authproxy.FindMatchingRule(rules, http.MethodGet, "api.anthropic.com", "/v1/messages")
		assert.True(t, ok)
		assert.Equal(t, "r1", rule.Name)
		assert.Equal(t, authproxy.ActionAllow, rule.Action.Kind)
	})

	t.Run("no match returns false", func(t *testing.T) {
		rules := []authproxy.Rule{
			{Name: "r1", HostGlob: "api.anthropic.com", PathGlob: "*", Action: authproxy.Action{Kind: authproxy.ActionAllow}},
		}
		_, ok := authproxy.FindMatchingRule(rules, http.MethodGet, "api.openai.com", "/v1/x")
		assert.False(t, ok)
	})

	t.Run("method predicate restricts the match", func(t *testing.T) {
		rules := []authproxy.Rule{
			{Name: "get-only", HostGlob: "*", PathGlob: "*", Methods: []string{http.MethodGet},
				Action: authproxy.Action{Kind: authproxy.ActionAllow}},
		}
		_, ok := authproxy.FindMatchingRule(rules, http.MethodPost, "api.anthropic.com", "/v1/messages")
		assert.False(t, ok)

		rule, ok := authproxy.FindMatchingRule(rules, http.MethodGet, "api.anthropic.com", "/v1/messages")
		assert.True(t, ok)
		assert.Equal(t, "get-only", rule.Name)
	})

	t.Run("host glob matches subdomains", func(t *testing.T) {
		rules := []authproxy.Rule{
			{Name: "wildcard", HostGlob: "*.anthropic.com", PathGlob: "*", Action: authproxy.Action{Kind: authproxy.ActionAllow}},
		}
		_, ok := authproxy.FindMatchingRule(rules, http.MethodGet, "api.anthropic.com", "/x")
		assert.True(t, ok)
	})
}
