package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// Config describes the certificate used by the TLS engine and the trust
// settings for outbound TLS to origins.
type Config struct {
	// CertPath is the path to the PEM-encoded certificate file.
	CertPath string

	// KeyPath is the path to the PEM-encoded private key file.
	KeyPath string

	// MinVersion is the minimum TLS version to accept ("1.2" or "1.3").
	// Default: "1.2"
	MinVersion string
}

// ServerConfig builds the tls.Config for the TLS engine. Only http/1.1 is
// offered through ALPN.
func (c *Config) ServerConfig(r *CertificateReloader) *tls.Config {
	// #nosec G402 - MinVersion is validated, TLS 1.0/1.1 are never offered
	return &tls.Config{
		GetCertificate: r.GetCertificateFunc(),
		MinVersion:     ParseVersion(c.MinVersion),
		NextProtos:     []string{"http/1.1"},
	}
}

// ParseVersion converts a version string to a tls version constant.
// Unknown values fall back to TLS 1.2.
func ParseVersion(v string) uint16 {
	switch v {
	case "1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}

// ClientConfig builds the tls.Config used for outbound connections to
// origins. caFile adds extra trusted roots on top of the system pool.
func ClientConfig(caFile string, insecureSkipVerify bool) (*tls.Config, error) {
	// #nosec G402 - InsecureSkipVerify is an explicit operator opt-in
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecureSkipVerify,
		NextProtos:         []string{"http/1.1"},
	}
	if caFile == "" {
		return cfg, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	cfg.RootCAs = pool

	return cfg, nil
}
