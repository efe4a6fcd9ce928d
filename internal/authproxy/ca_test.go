package authproxy_test

import (
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdjerred/clauderon/internal/authproxy"
)

func TestCA(t *testing.T) {
	t.Run("cert pem is a parseable certificate", func(t *testing.T) {
		ca, err := authproxy.NewCA()
		require.NoError(t, err)
		assert.Contains(t, ca.CertPEM(), "BEGIN CERTIFICATE")

		block, _ := pem.Decode([]byte(ca.CertPEM()))
		require.NotNil(t, block)
		cert, err := x509.ParseCertificate(block.Bytes)
		require.NoError(t, err)
		assert.True(t, cert.IsCA)
	})

	t.Run("leaf for host is signed by the CA and cached", func(t *testing.T) {
		ca, err := authproxy.NewCA()
		require.NoError(t, err)

		leaf1, err := ca.LeafFor("api.anthropic.com")
		require.NoError(t, err)
		require.Len(t, leaf1.Certificate, 2)

		block, _ := pem.Decode([]byte(ca.CertPEM()))
		require.NotNil(t, block)
		caCert, err := x509.ParseCertificate(block.Bytes)
		require.NoError(t, err)
		leafCert, err := x509.ParseCertificate(leaf1.Certificate[0])
		require.NoError(t, err)
		require.NoError(t, leafCert.CheckSignatureFrom(caCert))

		leaf2, err := ca.LeafFor("api.anthropic.com")
		require.NoError(t, err)
		assert.Equal(t, leaf1.Certificate[0], leaf2.Certificate[0])
	})

	t.Run("distinct hosts get distinct leaves", func(t *testing.T) {
		ca, err := authproxy.NewCA()
		require.NoError(t, err)

		leaf1, err := ca.LeafFor("api.anthropic.com")
		require.NoError(t, err)
		leaf2, err := ca.LeafFor("api.openai.com")
		require.NoError(t, err)

		assert.NotEqual(t, leaf1.Certificate[0], leaf2.Certificate[0])
	})
}
