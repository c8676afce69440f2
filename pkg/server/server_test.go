package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/forwarder/internal/testcert"
	"mercator-hq/forwarder/pkg/config"
	"mercator-hq/forwarder/pkg/proxy/middleware"
	"mercator-hq/forwarder/pkg/proxy/types"
	tlsutil "mercator-hq/forwarder/pkg/security/tls"
	"mercator-hq/forwarder/pkg/sniffer"
	"mercator-hq/forwarder/pkg/telemetry/health"
)

// newTestConfig returns a configuration bound to an ephemeral loopback port
// with a fresh certificate.
func newTestConfig(t *testing.T) (*config.Config, *testcert.Pair) {
	t.Helper()
	pair := testcert.New(t)

	cfg := config.Defaults()
	cfg.Proxy.Host = "127.0.0.1"
	cfg.Proxy.Port = 0
	cfg.Proxy.RequestTimeout = 5 * time.Second
	cfg.Proxy.SniffTimeout = 2 * time.Second
	cfg.Proxy.ShutdownTimeout = 5 * time.Second
	cfg.SSL.CertPath = pair.CertFile
	cfg.SSL.KeyPath = pair.KeyFile
	return cfg, pair
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := New(cfg, Options{Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func startServer(t *testing.T, srv *Server) {
	t.Helper()
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		if err := srv.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	})
}

// proxyClient sends every request through srv. user may be nil.
func proxyClient(t *testing.T, srv *Server, user *url.Userinfo, roots *testcert.Pair) *http.Client {
	t.Helper()
	u := &url.URL{Scheme: "http", Host: srv.Addr().String(), User: user}
	tr := &http.Transport{Proxy: http.ProxyURL(u)}
	if roots != nil {
		tr.TLSClientConfig = roots.ClientConfig("")
	}
	t.Cleanup(tr.CloseIdleConnections)
	return &http.Client{Transport: tr, Timeout: 10 * time.Second}
}

// writeOriginCA stores the certificate of a TLS test server as a PEM file.
func writeOriginCA(t *testing.T, origin *httptest.Server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "origin-ca.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: origin.Certificate().Raw})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write CA file: %v", err)
	}
	return path
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
	}{
		{
			name:   "missing certificate",
			mutate: func(cfg *config.Config) { cfg.SSL.CertPath = filepath.Join(t.TempDir(), "missing.crt") },
		},
		{
			name:   "missing CA file",
			mutate: func(cfg *config.Config) { cfg.Upstream.CAFile = filepath.Join(t.TempDir(), "missing.pem") },
		},
		{
			name: "unknown cache type",
			mutate: func(cfg *config.Config) {
				cfg.Cache.Enabled = true
				cfg.Cache.Type = "redis"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _ := newTestConfig(t)
			tt.mutate(cfg)
			if _, err := New(cfg, Options{}); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}

	t.Run("nil config", func(t *testing.T) {
		if _, err := New(nil, Options{}); err == nil {
			t.Error("New(nil) error = nil, want error")
		}
	})
}

func TestServerForwardsPlainRequest(t *testing.T) {
	var proxyConn, referer atomic.Value
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyConn.Store(r.Header.Get("Proxy-Connection"))
		referer.Store(r.Header.Get("Referer"))
		w.Header().Set("X-Origin", "yes")
		_, _ = io.WriteString(w, "hello")
	}))
	defer origin.Close()

	cfg, _ := newTestConfig(t)
	srv := newTestServer(t, cfg)
	startServer(t, srv)

	target := origin.URL + "/path?q=1"
	req, _ := http.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Proxy-Connection", "keep-alive")

	resp, err := proxyClient(t, srv, nil, nil).Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body != "hello" {
		t.Errorf("body = %q, want %q", body, "hello")
	}
	if got := resp.Header.Get("Server"); got != cfg.Proxy.Name {
		t.Errorf("Server = %q, want %q", got, cfg.Proxy.Name)
	}
	if got := resp.Header.Get("X-Origin"); got != "yes" {
		t.Errorf("X-Origin = %q, want origin header relayed", got)
	}
	if got := proxyConn.Load(); got != "" {
		t.Errorf("origin saw Proxy-Connection %q", got)
	}
	if got := referer.Load(); got != target {
		t.Errorf("origin saw Referer %q, want %q", got, target)
	}
}

func TestServerInterceptsConnect(t *testing.T) {
	var sawPath atomic.Value
	origin := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawPath.Store(r.URL.RequestURI())
		_, _ = io.WriteString(w, "secret")
	}))
	defer origin.Close()

	cfg, pair := newTestConfig(t)
	cfg.Upstream.CAFile = writeOriginCA(t, origin)
	srv := newTestServer(t, cfg)

	schemes := make(chan string, 4)
	if err := srv.Request().Use(func(c *types.RequestContext, next middleware.Next) {
		schemes <- c.Locals.URL.Scheme
		next()
	}); err != nil {
		t.Fatalf("Use() error = %v", err)
	}
	startServer(t, srv)

	// The client must trust the proxy certificate, not the origin's.
	resp, err := proxyClient(t, srv, nil, pair).Get(origin.URL + "/path")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body != "secret" {
		t.Errorf("body = %q, want %q", body, "secret")
	}
	if got := resp.Header.Get("Server"); got != cfg.Proxy.Name {
		t.Errorf("Server = %q, want %q", got, cfg.Proxy.Name)
	}
	if got := sawPath.Load(); got != "/path" {
		t.Errorf("origin path = %v, want /path", got)
	}
	select {
	case scheme := <-schemes:
		if scheme != types.ProtocolHTTPS {
			t.Errorf("request chain saw scheme %q, want https", scheme)
		}
	default:
		t.Error("request chain did not run")
	}
	if resp.TLS == nil || len(resp.TLS.PeerCertificates) == 0 {
		t.Fatal("response was not received over TLS")
	}
	if !bytes.Equal(resp.TLS.PeerCertificates[0].Raw, pair.Cert.Certificate[0]) {
		t.Error("client did not talk to the proxy certificate")
	}
}

func TestServerProxyAuth(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Proxy-Authorization") != "" {
			t.Error("Proxy-Authorization reached the origin")
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer origin.Close()

	cfg, _ := newTestConfig(t)
	cfg.Auth = config.AuthConfig{Type: config.AuthTypeProxyAuth, Username: "u", Password: "p"}
	srv := newTestServer(t, cfg)
	startServer(t, srv)

	tests := []struct {
		name       string
		user       *url.Userinfo
		wantStatus int
	}{
		{name: "no credentials", user: nil, wantStatus: http.StatusProxyAuthRequired},
		{name: "wrong password", user: url.UserPassword("u", "x"), wantStatus: http.StatusProxyAuthRequired},
		{name: "wrong user", user: url.UserPassword("x", "p"), wantStatus: http.StatusProxyAuthRequired},
		{name: "valid credentials", user: url.UserPassword("u", "p"), wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := proxyClient(t, srv, tt.user, nil).Get(origin.URL)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			readBody(t, resp)

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusProxyAuthRequired && resp.Header.Get("Proxy-Authenticate") != "Basic" {
				t.Errorf("Proxy-Authenticate = %q, want Basic", resp.Header.Get("Proxy-Authenticate"))
			}
		})
	}

	t.Run("connect without credentials", func(t *testing.T) {
		c, err := net.Dial("tcp", srv.Addr().String())
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer c.Close()
		_ = c.SetDeadline(time.Now().Add(5 * time.Second))

		if _, err := io.WriteString(c, "CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n"); err != nil {
			t.Fatalf("write: %v", err)
		}
		resp, err := http.ReadResponse(bufio.NewReader(c), &http.Request{Method: http.MethodConnect})
		if err != nil {
			t.Fatalf("read answer: %v", err)
		}
		if resp.StatusCode != http.StatusProxyAuthRequired {
			t.Errorf("status = %d, want 407", resp.StatusCode)
		}
	})
}

func TestServerConnectWithCredentials(t *testing.T) {
	origin := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "tunneled")
	}))
	defer origin.Close()

	cfg, pair := newTestConfig(t)
	cfg.Upstream.CAFile = writeOriginCA(t, origin)
	cfg.Auth = config.AuthConfig{Type: config.AuthTypeProxyAuth, Username: "u", Password: "p"}
	srv := newTestServer(t, cfg)
	startServer(t, srv)

	resp, err := proxyClient(t, srv, url.UserPassword("u", "p"), pair).Get(origin.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if body := readBody(t, resp); body != "tunneled" {
		t.Errorf("body = %q, want %q", body, "tunneled")
	}
}

func TestServerProxyAuthSecretReference(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer origin.Close()

	t.Run("missing secret fails New", func(t *testing.T) {
		cfg, _ := newTestConfig(t)
		cfg.Auth = config.AuthConfig{Type: config.AuthTypeProxyAuth, Username: "u", Password: "${secret:absent-password}"}
		if _, err := New(cfg, Options{Registry: prometheus.NewRegistry()}); err == nil {
			t.Error("New() error = nil, want unresolved secret error")
		}
	})

	t.Run("secret from file", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "proxy-password"), []byte("from-file\n"), 0o600); err != nil {
			t.Fatalf("write secret: %v", err)
		}

		cfg, _ := newTestConfig(t)
		cfg.Auth = config.AuthConfig{
			Type:       config.AuthTypeProxyAuth,
			Username:   "u",
			Password:   "${secret:proxy-password}",
			SecretsDir: dir,
		}
		srv := newTestServer(t, cfg)
		startServer(t, srv)

		tests := []struct {
			name       string
			user       *url.Userinfo
			wantStatus int
		}{
			{name: "reference text", user: url.UserPassword("u", "${secret:proxy-password}"), wantStatus: http.StatusProxyAuthRequired},
			{name: "resolved password", user: url.UserPassword("u", "from-file"), wantStatus: http.StatusOK},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resp, err := proxyClient(t, srv, tt.user, nil).Get(origin.URL)
				if err != nil {
					t.Fatalf("request failed: %v", err)
				}
				readBody(t, resp)
				if resp.StatusCode != tt.wantStatus {
					t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
				}
			})
		}
	})

	t.Run("secret from environment", func(t *testing.T) {
		t.Setenv("FORWARDER_SECRET_ENV_PASSWORD", "from-env")

		cfg, _ := newTestConfig(t)
		cfg.Auth = config.AuthConfig{Type: config.AuthTypeProxyAuth, Username: "u", Password: "${secret:env-password}"}
		srv := newTestServer(t, cfg)
		startServer(t, srv)

		resp, err := proxyClient(t, srv, url.UserPassword("u", "from-env"), nil).Get(origin.URL)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		readBody(t, resp)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	})
}

func TestServerRejectsUnsupportedProtocol(t *testing.T) {
	cfg, _ := newTestConfig(t)
	srv := newTestServer(t, cfg)

	errs := make(chan error, 8)
	srv.Subscribe(ObserverFuncs{
		RequestError: func(_ context.Context, err error) { errs <- err },
	})
	startServer(t, srv)

	for _, b := range []byte{0, 31, 127, 128, 255} {
		c, err := net.Dial("tcp", srv.Addr().String())
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		_ = c.SetDeadline(time.Now().Add(5 * time.Second))
		if _, err := c.Write([]byte{b, 'x', 'y'}); err != nil {
			t.Fatalf("write: %v", err)
		}
		answer, _ := io.ReadAll(c)
		c.Close()

		if !strings.HasPrefix(string(answer), "HTTP/1.1 505 ") {
			t.Errorf("byte %d: answer = %q, want raw 505", b, answer)
		}

		select {
		case err := <-errs:
			if !errors.Is(err, sniffer.ErrUnsupportedProtocol) {
				t.Errorf("byte %d: request error = %v, want ErrUnsupportedProtocol", b, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("byte %d: no request error emitted", b)
		}
	}
}

func TestServerPing(t *testing.T) {
	cfg, _ := newTestConfig(t)
	cfg.Proxy.PingPath = "/ping"
	srv := newTestServer(t, cfg)
	startServer(t, srv)

	resp, err := http.Get("http://" + srv.Addr().String() + "/ping")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var msg types.MessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Message != types.MessagePong {
		t.Errorf("message = %q, want %q", msg.Message, types.MessagePong)
	}
}

func TestServerResponseCache(t *testing.T) {
	var hits atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, "cached body")
	}))
	defer origin.Close()

	cfg, _ := newTestConfig(t)
	cfg.Cache.Enabled = true
	cfg.Cache.Type = "memory"
	srv := newTestServer(t, cfg)
	startServer(t, srv)

	client := proxyClient(t, srv, nil, nil)
	wantCache := []string{"MISS", "HIT"}
	for i, want := range wantCache {
		resp, err := client.Get(origin.URL + "/asset")
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		body := readBody(t, resp)
		if body != "cached body" {
			t.Errorf("request %d: body = %q", i, body)
		}
		if got := resp.Header.Get("X-Cache"); got != want {
			t.Errorf("request %d: X-Cache = %q, want %q", i, got, want)
		}
	}

	if got := hits.Load(); got != 1 {
		t.Errorf("origin hits = %d, want 1", got)
	}
}

func TestServerRateLimit(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer origin.Close()

	cfg, _ := newTestConfig(t)
	cfg.Limits.Enabled = true
	cfg.Limits.RequestsPerSecond = 0.01
	cfg.Limits.Burst = 2
	srv := newTestServer(t, cfg)
	startServer(t, srv)

	client := proxyClient(t, srv, nil, nil)
	wantStatus := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i, want := range wantStatus {
		resp, err := client.Get(origin.URL + "/")
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		readBody(t, resp)
		if resp.StatusCode != want {
			t.Errorf("request %d: status = %d, want %d", i, resp.StatusCode, want)
		}
		if want == http.StatusTooManyRequests && resp.Header.Get("Retry-After") == "" {
			t.Errorf("request %d: missing Retry-After", i)
		}
	}
}

func TestServerLifecycle(t *testing.T) {
	cfg, _ := newTestConfig(t)
	srv := newTestServer(t, cfg)

	listened := make(chan net.Addr, 1)
	closed := make(chan struct{}, 1)
	srv.Subscribe(ObserverFuncs{
		Listen: func(addr net.Addr) { listened <- addr },
		Close:  func() { closed <- struct{}{} },
	})

	if srv.Addr() != nil {
		t.Error("Addr() before Start should be nil")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case addr := <-listened:
		if addr.String() != srv.Addr().String() {
			t.Errorf("OnListen addr = %s, want %s", addr, srv.Addr())
		}
	default:
		t.Fatal("OnListen not emitted by Start")
	}
	if !srv.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if err := srv.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case <-closed:
	default:
		t.Fatal("OnClose not emitted by Shutdown")
	}

	if srv.IsRunning() {
		t.Error("IsRunning() = true after Shutdown")
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
	if err := srv.Start(context.Background()); !errors.Is(err, ErrServerClosed) {
		t.Errorf("Start() after Shutdown error = %v, want ErrServerClosed", err)
	}
	if got := srv.Health().CheckReadiness(context.Background()).Status; got != health.StatusStopping {
		t.Errorf("readiness after Shutdown = %q, want %q", got, health.StatusStopping)
	}
	if _, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second); err == nil {
		t.Error("listener still accepts connections after Shutdown")
	}

	if err := srv.Request().Use(func(*types.RequestContext, middleware.Next) {}); !errors.Is(err, middleware.ErrChainSealed) {
		t.Errorf("Use() after Start error = %v, want ErrChainSealed", err)
	}
}

func TestServerStalledTunnelTimesOut(t *testing.T) {
	cfg, _ := newTestConfig(t)
	cfg.Proxy.RequestTimeout = time.Second
	cfg.Proxy.SniffTimeout = 300 * time.Millisecond
	srv := newTestServer(t, cfg)

	requestErrors := make(chan error, 4)
	srv.Subscribe(ObserverFuncs{
		RequestError: func(_ context.Context, err error) { requestErrors <- err },
	})
	startServer(t, srv)

	c, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	_, _ = io.WriteString(c, "CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n")

	br := bufio.NewReader(c)
	resp, err := http.ReadResponse(br, &http.Request{Method: http.MethodConnect})
	if err != nil {
		t.Fatalf("read CONNECT answer: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %q, want 200", resp.Status)
	}

	// The client stays silent past the sniff timeout; the request timeout
	// of the loopback leg must answer it.
	start := time.Now()
	rest, _ := io.ReadAll(br)
	elapsed := time.Since(start)

	if !strings.HasPrefix(string(rest), "HTTP/1.1 480 ") {
		t.Fatalf("stalled tunnel answered %q, want a 480", rest)
	}
	if elapsed < 800*time.Millisecond {
		t.Errorf("tunnel ended after %v, before the request timeout", elapsed)
	}
	select {
	case err := <-requestErrors:
		t.Errorf("unexpected request error: %v", err)
	default:
	}
}

func TestServerUncaughtException(t *testing.T) {
	cfg, _ := newTestConfig(t)
	srv := newTestServer(t, cfg)

	uncaught := make(chan error, 1)
	srv.Subscribe(ObserverFuncs{
		UncaughtException: func(_ context.Context, err error) { uncaught <- err },
	})
	if err := srv.Connect().Use(func(*types.ConnectContext, middleware.Next) {
		panic("boom")
	}); err != nil {
		t.Fatalf("Use() error = %v", err)
	}
	startServer(t, srv)

	c, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	_, _ = io.WriteString(c, "CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n")

	// The connection is abandoned without an answer.
	if _, err := http.ReadResponse(bufio.NewReader(c), &http.Request{Method: http.MethodConnect}); err == nil {
		t.Error("expected the connection to be closed without an answer")
	}

	select {
	case err := <-uncaught:
		if !strings.Contains(err.Error(), "boom") {
			t.Errorf("uncaught error = %v, want boom", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnUncaughtException not emitted")
	}

	// The server keeps serving other connections.
	if _, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second); err != nil {
		t.Errorf("server stopped accepting after a panic: %v", err)
	}
}

func TestServerAdmin(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer origin.Close()

	cfg, _ := newTestConfig(t)
	cfg.Telemetry.Admin = config.AdminConfig{Enabled: true, Address: "127.0.0.1:0"}
	srv := newTestServer(t, cfg)
	startServer(t, srv)

	resp, err := proxyClient(t, srv, nil, nil).Get(origin.URL)
	if err != nil {
		t.Fatalf("proxied request failed: %v", err)
	}
	readBody(t, resp)

	admin := "http://" + srv.AdminAddr().String()
	tests := []struct {
		path         string
		wantStatus   int
		wantContains string
	}{
		{path: "/metrics", wantStatus: http.StatusOK, wantContains: `forwarder_connections_total{protocol="http"}`},
		{path: "/health", wantStatus: http.StatusOK, wantContains: `"status"`},
		{path: "/ready", wantStatus: http.StatusOK, wantContains: `"listener"`},
		{path: "/version", wantStatus: http.StatusOK, wantContains: `"go_version"`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(admin + tt.path)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.path, err)
			}
			body := readBody(t, resp)

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", resp.StatusCode, tt.wantStatus, body)
			}
			if !strings.Contains(body, tt.wantContains) {
				t.Errorf("body does not contain %q:\n%s", tt.wantContains, body)
			}
		})
	}
}

func TestServerReloadCertificate(t *testing.T) {
	cfg, pair := newTestConfig(t)
	srv := newTestServer(t, cfg)

	var serverErrors atomic.Int32
	srv.Subscribe(ObserverFuncs{
		ServerError: func(ctx context.Context, err error) { serverErrors.Add(1) },
	})

	if err := tlsutil.WriteSelfSigned(pair.CertFile, pair.KeyFile, tlsutil.SelfSignedOptions{}); err != nil {
		t.Fatalf("WriteSelfSigned() error = %v", err)
	}
	if err := srv.ReloadCertificate(); err != nil {
		t.Fatalf("ReloadCertificate() error = %v", err)
	}
	reloaded := srv.certs.GetCertificate()
	if bytes.Equal(reloaded.Certificate[0], pair.Cert.Certificate[0]) {
		t.Error("certificate not replaced after reload")
	}

	if err := os.WriteFile(pair.CertFile, []byte("not a certificate"), 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := srv.ReloadCertificate(); err == nil {
		t.Error("ReloadCertificate() error = nil for a corrupt file")
	}
	if srv.certs.GetCertificate() != reloaded {
		t.Error("failed reload replaced the current certificate")
	}
	if got := serverErrors.Load(); got != 1 {
		t.Errorf("server errors = %d, want 1", got)
	}
}
