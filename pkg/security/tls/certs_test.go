package tls

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writePair(t *testing.T, opts SelfSignedOptions) (certFile, keyFile string) {
	t.Helper()

	dir := t.TempDir()
	certFile = filepath.Join(dir, "localhost.crt")
	keyFile = filepath.Join(dir, "localhost.key")
	if err := WriteSelfSigned(certFile, keyFile, opts); err != nil {
		t.Fatalf("WriteSelfSigned() error = %v", err)
	}
	return certFile, keyFile
}

func TestGenerateSelfSigned(t *testing.T) {
	certPEM, keyPEM, err := GenerateSelfSigned(SelfSignedOptions{
		Hosts: []string{"proxy.local", "127.0.0.1"},
	})
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatal("certificate PEM block missing")
	}
	if keyBlock, _ := pem.Decode(keyPEM); keyBlock == nil {
		t.Fatal("key PEM block missing")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("ParseCertificate() error = %v", err)
	}
	if cert.Subject.CommonName != "proxy.local" {
		t.Errorf("CommonName = %q, want %q", cert.Subject.CommonName, "proxy.local")
	}
	if len(cert.DNSNames) != 1 || cert.DNSNames[0] != "proxy.local" {
		t.Errorf("DNSNames = %v", cert.DNSNames)
	}
	if len(cert.IPAddresses) != 1 || cert.IPAddresses[0].String() != "127.0.0.1" {
		t.Errorf("IPAddresses = %v", cert.IPAddresses)
	}
	if err := cert.VerifyHostname("proxy.local"); err != nil {
		t.Errorf("VerifyHostname() error = %v", err)
	}
}

func TestWriteSelfSigned_KeyPermissions(t *testing.T) {
	_, keyFile := writePair(t, SelfSignedOptions{})

	info, err := os.Stat(keyFile)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("key permissions = %o, want 600", perm)
	}
}

func TestLoadKeyPair(t *testing.T) {
	t.Run("valid pair", func(t *testing.T) {
		certFile, keyFile := writePair(t, SelfSignedOptions{})

		cert, leaf, err := LoadKeyPair(certFile, keyFile)
		if err != nil {
			t.Fatalf("LoadKeyPair() error = %v", err)
		}
		if cert.Leaf != leaf {
			t.Error("Leaf not populated")
		}
		info := ExtractCertificateInfo(leaf)
		if info.Subject == "" || len(info.DNSNames) == 0 {
			t.Errorf("ExtractCertificateInfo() = %+v", info)
		}
	})

	t.Run("expired certificate", func(t *testing.T) {
		// notBefore is backdated by a minute, so a one second validity has
		// already lapsed.
		certFile, keyFile := writePair(t, SelfSignedOptions{Validity: time.Second})
		if _, _, err := LoadKeyPair(certFile, keyFile); err == nil {
			t.Error("LoadKeyPair() should reject an expired certificate")
		}
	})

	t.Run("missing files", func(t *testing.T) {
		if _, _, err := LoadKeyPair("nonexistent.crt", "nonexistent.key"); err == nil {
			t.Error("LoadKeyPair() should fail for missing files")
		}
	})
}

func TestCheckCertificateExpiration(t *testing.T) {
	tests := []struct {
		name        string
		validFor    time.Duration
		wantWarning bool
	}{
		{"long lived", 365 * 24 * time.Hour, false},
		{"expiring soon", 10 * 24 * time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert := &x509.Certificate{NotAfter: time.Now().Add(tt.validFor)}
			_, warning := CheckCertificateExpiration(cert)
			if (warning != "") != tt.wantWarning {
				t.Errorf("warning = %q, wantWarning %v", warning, tt.wantWarning)
			}
		})
	}
}

func TestVerifyChain(t *testing.T) {
	certFile, keyFile := writePair(t, SelfSignedOptions{})
	_, leaf, err := LoadKeyPair(certFile, keyFile)
	if err != nil {
		t.Fatalf("LoadKeyPair() error = %v", err)
	}

	t.Run("self-signed root", func(t *testing.T) {
		if err := VerifyChain(leaf, certFile); err != nil {
			t.Errorf("VerifyChain() error = %v", err)
		}
	})

	t.Run("unrelated root", func(t *testing.T) {
		otherCert, _ := writePair(t, SelfSignedOptions{})
		if err := VerifyChain(leaf, otherCert); err == nil {
			t.Error("VerifyChain() should reject a certificate from another root")
		}
	})

	t.Run("no certificates in CA file", func(t *testing.T) {
		if err := VerifyChain(leaf, keyFile); err == nil {
			t.Error("VerifyChain() should fail when the CA file holds no certificate")
		}
	})
}
