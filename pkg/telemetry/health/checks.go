package health

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"mercator-hq/forwarder/pkg/cache"
	tlsutil "mercator-hq/forwarder/pkg/security/tls"
)

// ListenerCheck dials the proxy port. addr is read on every run so the
// check can be registered before the listener is bound.
func ListenerCheck(addr func() net.Addr) CheckFunc {
	return func(ctx context.Context) error {
		a := addr()
		if a == nil {
			return errors.New("listener not bound")
		}

		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", dialable(a.String()))
		if err != nil {
			return fmt.Errorf("listener not reachable: %w", err)
		}
		return conn.Close()
	}
}

// dialable rewrites an unspecified bind address to loopback.
func dialable(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		if ip != nil && ip.To4() == nil {
			return net.JoinHostPort("::1", port)
		}
		return net.JoinHostPort("127.0.0.1", port)
	}
	return addr
}

// CertificateCheck fails when the serving certificate is missing or outside
// its validity period.
func CertificateCheck(get func() *tls.Certificate) CheckFunc {
	return func(ctx context.Context) error {
		return tlsutil.ValidateCertificate(get())
	}
}

// CacheCheck writes and reads back a probe entry.
func CacheCheck(store cache.Cache) CheckFunc {
	const key = "health:probe"
	return func(ctx context.Context) error {
		if err := store.Set(ctx, key, []byte("ok"), time.Minute); err != nil {
			return fmt.Errorf("cache write failed: %w", err)
		}
		if _, ok, err := store.Get(ctx, key); err != nil {
			return fmt.Errorf("cache read failed: %w", err)
		} else if !ok {
			return errors.New("cache probe entry missing")
		}
		return nil
	}
}
