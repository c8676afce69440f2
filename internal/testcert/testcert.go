// Package testcert provides throwaway certificates for tests.
package testcert

import (
	"crypto/tls"
	"crypto/x509"
	"path/filepath"
	"testing"

	fwdtls "mercator-hq/forwarder/pkg/security/tls"
)

// Pair is a generated certificate with its files on disk.
type Pair struct {
	CertFile string
	KeyFile  string
	Cert     tls.Certificate
	Pool     *x509.CertPool
}

// New writes a self-signed certificate for localhost and 127.0.0.1 into a
// temporary directory.
func New(t testing.TB, hosts ...string) *Pair {
	t.Helper()

	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1"}
	}

	dir := t.TempDir()
	p := &Pair{
		CertFile: filepath.Join(dir, "localhost.crt"),
		KeyFile:  filepath.Join(dir, "localhost.key"),
	}
	if err := fwdtls.WriteSelfSigned(p.CertFile, p.KeyFile, fwdtls.SelfSignedOptions{Hosts: hosts}); err != nil {
		t.Fatalf("failed to write certificate: %v", err)
	}

	cert, leaf, err := fwdtls.LoadKeyPair(p.CertFile, p.KeyFile)
	if err != nil {
		t.Fatalf("failed to load certificate: %v", err)
	}
	p.Cert = *cert
	p.Pool = x509.NewCertPool()
	p.Pool.AddCert(leaf)

	return p
}

// ServerConfig returns a tls.Config presenting the certificate.
func (p *Pair) ServerConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{p.Cert},
		NextProtos:   []string{"http/1.1"},
	}
}

// ClientConfig returns a tls.Config trusting the certificate.
func (p *Pair) ClientConfig(serverName string) *tls.Config {
	return &tls.Config{
		RootCAs:    p.Pool,
		ServerName: serverName,
		NextProtos: []string{"http/1.1"},
	}
}
