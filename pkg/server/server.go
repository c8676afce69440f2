package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/forwarder/pkg/cache"
	"mercator-hq/forwarder/pkg/config"
	"mercator-hq/forwarder/pkg/limits/ratelimit"
	"mercator-hq/forwarder/pkg/proxy"
	"mercator-hq/forwarder/pkg/proxy/middleware"
	"mercator-hq/forwarder/pkg/proxy/types"
	"mercator-hq/forwarder/pkg/security/auth"
	"mercator-hq/forwarder/pkg/security/secrets"
	tlsutil "mercator-hq/forwarder/pkg/security/tls"
	"mercator-hq/forwarder/pkg/sniffer"
	"mercator-hq/forwarder/pkg/telemetry/health"
	"mercator-hq/forwarder/pkg/telemetry/metrics"
)

// DefaultHealthCheckTimeout bounds each readiness check.
const DefaultHealthCheckTimeout = 5 * time.Second

var (
	// ErrAlreadyRunning is returned by Start on a running server.
	ErrAlreadyRunning = errors.New("server is already running")

	// ErrServerClosed is returned by Start after Shutdown.
	ErrServerClosed = errors.New("server closed")
)

// Options carries the collaborators of a Server that are not part of the
// configuration file.
type Options struct {
	// Version is served on the admin /version endpoint.
	Version health.VersionInfo

	// Tracer creates the proxy.forward and proxy.tunnel spans. Nil uses the
	// global tracer provider.
	Tracer trace.Tracer

	// Registry receives the Prometheus metrics. Nil creates a private one.
	Registry *prometheus.Registry
}

// Server is the forward proxy: one listening socket whose connections are
// classified and handed to a plain HTTP engine or a TLS-terminating engine.
type Server struct {
	cfg  *config.Config
	opts Options

	connect  *middleware.Chain[*types.ConnectContext]
	request  *middleware.Chain[*types.RequestContext]
	response *middleware.Chain[*types.ResponseContext]

	certs     *tlsutil.CertificateReloader
	serverTLS *tls.Config
	clientTLS *tls.Config
	store     cache.Cache
	secrets   *secrets.Manager
	collector *metrics.Collector
	health    *health.Checker

	mu        sync.RWMutex
	observers []Observer
	running   bool
	closed    bool
	addr      net.Addr
	adminAddr net.Addr

	cancel     context.CancelFunc
	sniffer    *sniffer.Listener
	httpQueue  *sniffer.Queue
	tlsQueue   *sniffer.Queue
	httpEngine *http.Server
	tlsEngine  *http.Server
	admin      *http.Server
	forwarder  *proxy.Forwarder
	wg         sync.WaitGroup

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a server for cfg. The certificate pair is loaded and the
// built-in middlewares (ping, proxy-auth, response cache) are registered
// according to cfg; nothing is bound until Start.
func New(cfg *config.Config, opts Options) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	s := &Server{
		cfg:       cfg,
		opts:      opts,
		connect:   middleware.NewChain[*types.ConnectContext]("connect"),
		request:   middleware.NewChain[*types.RequestContext]("request"),
		response:  middleware.NewChain[*types.ResponseContext]("response"),
		collector: metrics.NewCollector(&cfg.Telemetry.Metrics, opts.Registry),
		health:    health.New(DefaultHealthCheckTimeout),
	}
	s.observers = []Observer{
		loggingObserver{name: cfg.Proxy.Name},
		metricsObserver(s.collector),
	}

	if err := s.configureTLS(); err != nil {
		return nil, fmt.Errorf("failed to configure TLS: %w", err)
	}
	if err := s.configureCache(); err != nil {
		return nil, fmt.Errorf("failed to configure cache: %w", err)
	}
	if err := s.registerMiddleware(); err != nil {
		_ = s.closeCache()
		return nil, fmt.Errorf("failed to register middleware: %w", err)
	}
	s.registerChecks()

	return s, nil
}

func (s *Server) configureTLS() error {
	ssl := s.cfg.SSL

	s.certs = tlsutil.NewCertificateReloader(ssl.CertPath, ssl.KeyPath)
	if err := s.certs.Load(); err != nil {
		return err
	}
	s.certs.OnReload = func(err error) {
		if err != nil {
			s.emitServerError(context.Background(), fmt.Errorf("certificate reload: %w", err))
		}
	}

	tc := tlsutil.Config{
		CertPath:   ssl.CertPath,
		KeyPath:    ssl.KeyPath,
		MinVersion: ssl.MinVersion,
	}
	s.serverTLS = tc.ServerConfig(s.certs)

	client, err := tlsutil.ClientConfig(s.cfg.Upstream.CAFile, s.cfg.Upstream.InsecureSkipVerify)
	if err != nil {
		return err
	}
	if s.cfg.Upstream.InsecureSkipVerify {
		slog.Warn("origin certificate verification is disabled")
	}
	s.clientTLS = client

	return nil
}

func (s *Server) configureCache() error {
	c := s.cfg.Cache
	if !c.Enabled {
		return nil
	}

	store, err := cache.New(cache.Config{
		Type:            c.Type,
		TTL:             c.TTL,
		CleanupInterval: c.CleanupInterval,
		Path:            c.Disk.Path,
		CleanupSchedule: c.Disk.CleanupSchedule,
	})
	if err != nil {
		return err
	}
	s.store = store

	slog.Info("response cache enabled", "type", c.Type, "ttl", c.TTL.String())
	return nil
}

// registerMiddleware installs the built-in middlewares. They run before any
// middleware registered through the chain accessors.
func (s *Server) registerMiddleware() error {
	name := s.cfg.Proxy.Name
	var errs []error

	if path := s.cfg.Proxy.PingPath; path != "" {
		errs = append(errs, s.request.Use(middleware.Ping(path, name)))
	}

	if l := s.cfg.Limits; l.Enabled {
		limiter, err := ratelimit.NewClientLimiter(ratelimit.Config{
			RequestsPerSecond: l.RequestsPerSecond,
			Burst:             l.Burst,
			IdleTTL:           l.IdleTTL,
		})
		if err != nil {
			return fmt.Errorf("limits: %w", err)
		}
		rl := ratelimit.NewMiddleware(limiter, name).WithRecorder(s.collector)
		errs = append(errs,
			s.connect.Use(rl.Connect()),
			s.request.Use(rl.Request()),
		)
		slog.Info("rate limiting enabled",
			"requests_per_second", l.RequestsPerSecond,
			"burst", l.Burst,
		)
	}

	if s.cfg.Auth.Type == config.AuthTypeProxyAuth {
		validator, err := s.authValidator()
		if err != nil {
			return err
		}
		pa := auth.NewProxyAuth(validator, name)
		errs = append(errs,
			s.connect.Use(pa.Connect()),
			s.request.Use(pa.Request()),
		)
		slog.Info("proxy authentication enabled", "username", s.cfg.Auth.Username)
	}

	if s.store != nil {
		rc := middleware.NewResponseCache(s.store, s.cfg.Cache.TTL, s.cfg.Cache.MaxBodyBytes, name).
			WithRecorder(s.collector)
		errs = append(errs,
			s.request.Use(rc.Lookup()),
			s.response.Use(rc.Store()),
		)
	}

	return errors.Join(errs...)
}

// authValidator checks clients against the configured pair. A
// ${secret:name} password is resolved once here so a missing secret fails
// New, then again on every attempt.
func (s *Server) authValidator() (auth.Validator, error) {
	a := s.cfg.Auth
	if _, ok := secrets.ParseReference(a.Password); !ok {
		return auth.NewStaticValidator(a.Username, a.Password), nil
	}

	providers := []secrets.Provider{secrets.NewEnvProvider(secrets.DefaultEnvPrefix)}
	if a.SecretsDir != "" {
		files, err := secrets.NewFileProvider(a.SecretsDir)
		if err != nil {
			return nil, err
		}
		providers = append(providers, files)
	}

	s.secrets = secrets.NewManager(secrets.DefaultCacheTTL, providers...)
	if _, err := s.secrets.Resolve(context.Background(), a.Password); err != nil {
		return nil, fmt.Errorf("auth.password: %w", err)
	}
	return auth.NewSecretValidator(a.Username, a.Password, s.secrets), nil
}

func (s *Server) registerChecks() {
	s.health.RegisterCheck("listener", health.ListenerCheck(s.Addr))
	s.health.RegisterCheck("certificate", health.CertificateCheck(s.certs.GetCertificate))
	if s.store != nil {
		s.health.RegisterCheck("cache", health.CacheCheck(s.store))
	}
}

// Connect returns the chain dispatched for CONNECT requests on both
// engines. Registration must happen before Start.
func (s *Server) Connect() *middleware.Chain[*types.ConnectContext] {
	return s.connect
}

// Request returns the chain dispatched before a request is forwarded.
func (s *Server) Request() *middleware.Chain[*types.RequestContext] {
	return s.request
}

// Response returns the chain dispatched before origin headers are relayed.
func (s *Server) Response() *middleware.Chain[*types.ResponseContext] {
	return s.response
}

// Metrics returns the collector fed by the server.
func (s *Server) Metrics() *metrics.Collector {
	return s.collector
}

// Health returns the readiness checker served on the admin listener.
func (s *Server) Health() *health.Checker {
	return s.health
}

// Addr returns the bound proxy address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// AdminAddr returns the bound admin address, or nil when the admin listener
// is disabled or not started.
func (s *Server) AdminAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adminAddr
}

// ReloadCertificate re-reads the certificate and key files. Handshakes
// started afterwards use the new pair; on failure the current pair is kept.
func (s *Server) ReloadCertificate() error {
	err := s.certs.Load()
	if s.certs.OnReload != nil {
		s.certs.OnReload(err)
	}
	return err
}

// IsRunning reports whether Start succeeded and Shutdown has not been called.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Start binds the listener and starts serving. It returns once both engines
// accept connections; serving continues until Shutdown. Cancelling ctx
// after Start returns does not stop the server.
func (s *Server) Start(ctx context.Context) error {
	addr, err := s.start(ctx)
	if err != nil {
		return err
	}
	s.emitListen(addr)
	return nil
}

func (s *Server) start(ctx context.Context) (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrServerClosed
	}
	if s.running {
		return nil, ErrAlreadyRunning
	}

	address := s.cfg.Proxy.Address()
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	var adminLn net.Listener
	if admin := s.cfg.Telemetry.Admin; admin.Enabled {
		adminLn, err = net.Listen("tcp", admin.Address)
		if err != nil {
			ln.Close()
			return nil, fmt.Errorf("failed to listen on admin address %s: %w", admin.Address, err)
		}
	}

	serveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.addr = ln.Addr()

	s.connect.Seal()
	s.request.Seal()
	s.response.Seal()

	s.forwarder = proxy.New(proxy.Options{
		Name:            s.cfg.Proxy.Name,
		RequestTimeout:  s.cfg.Proxy.RequestTimeout,
		LoopbackAddr:    s.addr.String(),
		ExemptLoopback:  s.exemptLoopback,
		Connect:         s.connect,
		Request:         s.request,
		Response:        s.response,
		TLSClientConfig: s.clientTLS,
		Recorder:        s.collector,
		Tracer:          s.opts.Tracer,
		OnServerError:   s.emitServerError,
		OnRequestError:  s.emitRequestError,
	})
	s.collector.TrackActiveTunnels(s.forwarder.ActiveTunnels)

	s.httpQueue = sniffer.NewQueue(s.addr)
	s.tlsQueue = sniffer.NewQueue(s.addr)
	s.httpEngine = s.newEngine(types.ProtocolHTTP)
	s.tlsEngine = s.newEngine(types.ProtocolHTTPS)

	s.sniffer = &sniffer.Listener{
		Name:         s.cfg.Proxy.Name,
		SniffTimeout: s.cfg.Proxy.SniffTimeout,
		HTTP: func(_ context.Context, c *sniffer.Conn) error {
			return s.httpQueue.Push(c)
		},
		TLS:     s.handoffTLS,
		OnError: s.emitRequestError,
		OnClassified: func(p sniffer.Protocol) {
			s.collector.RecordConnection(p.String())
		},
	}

	s.serve("http engine", func() error { return s.httpEngine.Serve(s.httpQueue) })
	s.serve("https engine", func() error { return s.tlsEngine.Serve(s.tlsQueue) })
	s.serve("listener", func() error { return s.sniffer.Serve(serveCtx, ln) })

	if adminLn != nil {
		s.admin = s.newAdmin()
		s.adminAddr = adminLn.Addr()
		s.serve("admin", func() error { return s.admin.Serve(adminLn) })
		slog.Info("admin listener started", "address", s.adminAddr.String())
	}

	if s.cfg.SSL.Watch {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.certs.Watch(serveCtx); err != nil && serveCtx.Err() == nil {
				s.emitServerError(serveCtx, fmt.Errorf("certificate watcher: %w", err))
			}
		}()
	}

	if s.secrets != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.secrets.Watch(serveCtx); err != nil && serveCtx.Err() == nil {
				s.emitServerError(serveCtx, fmt.Errorf("secrets watcher: %w", err))
			}
		}()
	}

	s.running = true
	return s.addr, nil
}

// serve runs fn on its own goroutine, reporting unexpected exits.
func (s *Server) serve(name string, fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := fn()
		if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
			return
		}
		s.emitServerError(context.Background(), fmt.Errorf("%s: %w", name, err))
	}()
}

// Shutdown stops accepting connections, closes live tunnels, waits for
// in-flight exchanges up to the configured shutdown timeout and emits
// OnClose. Calls after the first return the first call's result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})
	return s.shutdownErr
}

func (s *Server) shutdown(ctx context.Context) error {
	s.mu.Lock()
	running := s.running
	s.running = false
	s.closed = true
	s.mu.Unlock()

	if !running {
		return s.closeCache()
	}

	timeout := s.cfg.Proxy.ShutdownTimeout
	slog.Info("initiating graceful shutdown", "timeout", timeout.String())
	s.health.SetStopping()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// Stops the accept loop, pending handshakes and the certificate watcher.
	s.cancel()

	var errs []error
	if err := s.forwarder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("forwarder: %w", err))
	}

	engines := []struct {
		name string
		srv  *http.Server
	}{
		{"http engine", s.httpEngine},
		{"https engine", s.tlsEngine},
		{"admin", s.admin},
	}
	for _, e := range engines {
		if e.srv == nil {
			continue
		}
		if err := e.srv.Shutdown(ctx); err != nil {
			slog.Error("error during engine shutdown", "engine", e.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}

	done := make(chan struct{})
	go func() {
		s.sniffer.Wait()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for connections: %w", ctx.Err()))
	}

	if err := s.closeCache(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}

	s.emitClose()
	return errors.Join(errs...)
}

func (s *Server) closeCache() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
