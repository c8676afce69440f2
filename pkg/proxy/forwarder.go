package proxy

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/forwarder/pkg/proxy/middleware"
	"mercator-hq/forwarder/pkg/proxy/types"
)

// DefaultRequestTimeout applies when Options.RequestTimeout is zero.
const DefaultRequestTimeout = 30 * time.Second

// Options configures a Forwarder.
type Options struct {
	// Name identifies the proxy in Server and Proxy-agent headers.
	Name string

	// RequestTimeout is the idle timeout of every outbound socket.
	RequestTimeout time.Duration

	// LoopbackAddr is the listening address CONNECT tunnels dial. Wildcard
	// hosts are replaced by the loopback address.
	LoopbackAddr string

	// ExemptLoopback is told the local address of every loopback leg before
	// it is used, so the listener can exempt the leg from its sniff and
	// handshake timeouts. The returned func is called when the tunnel ends.
	ExemptLoopback func(local net.Addr) (release func())

	// Chains dispatched for each event kind. Nil chains are treated as empty.
	Connect  *middleware.Chain[*types.ConnectContext]
	Request  *middleware.Chain[*types.RequestContext]
	Response *middleware.Chain[*types.ResponseContext]

	// TLSClientConfig is used for https origins.
	TLSClientConfig *tls.Config

	// Recorder receives per-exchange and per-tunnel records.
	Recorder Recorder

	// Tracer creates the proxy.forward and proxy.tunnel spans.
	Tracer trace.Tracer

	// OnServerError is notified when an outbound request fails for a reason
	// other than a timeout. The client connection is aborted.
	OnServerError func(ctx context.Context, err error)

	// OnRequestError is notified of tunnel failures.
	OnRequestError func(ctx context.Context, err error)
}

// Forwarder serves CONNECT tunnels and forwards requests to origins.
type Forwarder struct {
	name           string
	requestTimeout time.Duration
	loopback       string
	exemptLoopback func(local net.Addr) (release func())

	connect  *middleware.Chain[*types.ConnectContext]
	request  *middleware.Chain[*types.RequestContext]
	response *middleware.Chain[*types.ResponseContext]

	transport *http.Transport
	recorder  Recorder
	tracer    trace.Tracer

	onServerError  func(ctx context.Context, err error)
	onRequestError func(ctx context.Context, err error)

	mu      sync.Mutex
	tunnels map[*tunnel]struct{}
	closed  bool
}

// New creates a Forwarder from opts.
func New(opts Options) *Forwarder {
	f := &Forwarder{
		name:           opts.Name,
		requestTimeout: opts.RequestTimeout,
		loopback:       loopbackAddr(opts.LoopbackAddr),
		exemptLoopback: opts.ExemptLoopback,
		connect:        opts.Connect,
		request:        opts.Request,
		response:       opts.Response,
		recorder:       opts.Recorder,
		tracer:         opts.Tracer,
		onServerError:  opts.OnServerError,
		onRequestError: opts.OnRequestError,
		tunnels:        make(map[*tunnel]struct{}),
	}

	if f.requestTimeout <= 0 {
		f.requestTimeout = DefaultRequestTimeout
	}
	if f.connect == nil {
		f.connect = middleware.NewChain[*types.ConnectContext]("connect")
	}
	if f.request == nil {
		f.request = middleware.NewChain[*types.RequestContext]("request")
	}
	if f.response == nil {
		f.response = middleware.NewChain[*types.ResponseContext]("response")
	}
	if f.recorder == nil {
		f.recorder = nopRecorder{}
	}
	if f.tracer == nil {
		f.tracer = otel.Tracer("mercator-hq/forwarder/pkg/proxy")
	}

	f.transport = newTransport(f.requestTimeout, opts.TLSClientConfig)
	return f
}

// Handler returns the handler of the engine serving protocol, "http" or
// "https".
func (f *Forwarder) Handler(protocol string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodConnect {
			f.tunnel(w, r, protocol)
			return
		}
		f.forward(w, r, protocol)
	})
}

// Close tears down live tunnels and idle outbound connections. Tunnels
// opened afterwards are closed immediately.
func (f *Forwarder) Close() error {
	f.mu.Lock()
	f.closed = true
	live := make([]*tunnel, 0, len(f.tunnels))
	for t := range f.tunnels {
		live = append(live, t)
	}
	f.mu.Unlock()

	for _, t := range live {
		t.close()
	}
	f.transport.CloseIdleConnections()
	return nil
}

// ActiveTunnels returns the number of live CONNECT sessions.
func (f *Forwarder) ActiveTunnels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tunnels)
}

func (f *Forwarder) track(t *tunnel) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.tunnels[t] = struct{}{}
	return true
}

func (f *Forwarder) untrack(t *tunnel) {
	f.mu.Lock()
	delete(f.tunnels, t)
	f.mu.Unlock()
}

func (f *Forwarder) serverError(ctx context.Context, err error) {
	if f.onServerError != nil {
		f.onServerError(ctx, err)
	}
}

func (f *Forwarder) requestError(ctx context.Context, err error) {
	if f.onRequestError != nil {
		f.onRequestError(ctx, err)
	}
}

// loopbackAddr maps wildcard listen hosts to a dialable address.
func loopbackAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::":
		host = "::1"
	}
	return net.JoinHostPort(host, port)
}

func newTransport(timeout time.Duration, tlsConfig *tls.Config) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		Proxy: nil,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			c, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return newIdleTimeoutConn(c, timeout), nil
		},
		TLSClientConfig:       tlsConfig,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		DisableCompression:    true,
	}
}
