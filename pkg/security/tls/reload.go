package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last file event
// before reloading. Certificate renewals usually rewrite both files.
const DefaultDebounce = 250 * time.Millisecond

// CertificateReloader holds the certificate served by the TLS engine and
// swaps it when the files on disk change.
type CertificateReloader struct {
	certFile string
	keyFile  string
	debounce time.Duration

	mu   sync.RWMutex
	cert *tls.Certificate

	// OnReload, when set, is called after every reload attempt.
	OnReload func(err error)
}

// NewCertificateReloader creates a reloader for the given pair. Call Load
// before handing GetCertificateFunc to a tls.Config.
func NewCertificateReloader(certFile, keyFile string) *CertificateReloader {
	return &CertificateReloader{
		certFile: certFile,
		keyFile:  keyFile,
		debounce: DefaultDebounce,
	}
}

// Load reads the certificate and key from disk.
func (r *CertificateReloader) Load() error {
	cert, leaf, err := LoadKeyPair(r.certFile, r.keyFile)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.cert = cert
	r.mu.Unlock()

	logCertificateInfo(leaf)
	return nil
}

// Watch reloads the certificate whenever the cert or key file changes. It
// blocks until ctx is cancelled.
func (r *CertificateReloader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directories so atomic renames (as done by most renewal
	// tools) are still seen.
	dirs := map[string]struct{}{
		filepath.Dir(r.certFile): {},
		filepath.Dir(r.keyFile):  {},
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	slog.Info("watching certificate files",
		"cert_file", r.certFile,
		"key_file", r.keyFile,
	)

	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !r.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			trigger = timer.C

		case <-trigger:
			trigger = nil
			err := r.Load()
			if err != nil {
				slog.Error("failed to reload certificate",
					"error", err,
					"cert_file", r.certFile,
					"key_file", r.keyFile,
				)
			} else {
				slog.Info("certificate reloaded", "cert_file", r.certFile)
			}
			if r.OnReload != nil {
				r.OnReload(err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			slog.Error("certificate watcher error", "error", err)
		}
	}
}

func (r *CertificateReloader) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Clean(event.Name)
	return name == filepath.Clean(r.certFile) || name == filepath.Clean(r.keyFile)
}

// GetCertificate returns the current certificate.
func (r *CertificateReloader) GetCertificate() *tls.Certificate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert
}

// GetCertificateFunc returns a function compatible with tls.Config.GetCertificate.
func (r *CertificateReloader) GetCertificateFunc() func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		cert := r.GetCertificate()
		if cert == nil {
			return nil, errors.New("no certificate loaded")
		}
		return cert, nil
	}
}

func logCertificateInfo(cert *x509.Certificate) {
	daysUntilExpiry, warning := CheckCertificateExpiration(cert)

	if warning != "" {
		slog.Warn("certificate expiring soon",
			"subject", cert.Subject.CommonName,
			"expires_in_days", daysUntilExpiry,
			"expires_at", cert.NotAfter.Format(time.RFC3339),
		)
		return
	}

	slog.Info("certificate loaded",
		"subject", cert.Subject.CommonName,
		"issuer", cert.Issuer.CommonName,
		"expires_in_days", daysUntilExpiry,
		"expires_at", cert.NotAfter.Format(time.RFC3339),
	)
}
