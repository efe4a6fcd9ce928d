package authproxy_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shepherdjerred/clauderon/internal/authproxy"
)

func TestIsWriteOperation(t *testing.T) {
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch, "CUSTOM"} {
		assert.Truef(t, authproxy.IsWriteOperation(m), "%s should be a write operation", m)
	}
}

func TestIsReadOperation(t *testing.T) {
	for _, m := range []string{http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace} {
		assert.Truef(t, authproxy.IsReadOperation(m), "%s should be a read operation", m)
	}
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		assert.Falsef(t, authproxy.IsReadOperation(m), "%s should not be a read operation", m)
	}
}
