package types

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Engine protocols.
const (
	ProtocolHTTP  = "http"
	ProtocolHTTPS = "https"
)

// Locals is per-request scratch data computed once, before any middleware
// runs, and kept for the lifetime of the exchange.
type Locals struct {
	// URL is the resolved target of the request.
	URL *url.URL

	// ClientIP is the first X-Forwarded-For entry, or the peer address.
	ClientIP string

	// Protocol is the engine that accepted the request ("http" or "https").
	Protocol string
}

type localsKey struct{}

// WithLocals returns a shallow copy of r carrying l.
func WithLocals(r *http.Request, l *Locals) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), localsKey{}, l))
}

// LocalsFrom returns the Locals attached to ctx, or nil.
func LocalsFrom(ctx context.Context) *Locals {
	l, _ := ctx.Value(localsKey{}).(*Locals)
	return l
}

// ClientIP returns the originating client address of r.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ConnectContext is dispatched through the connect chain for every CONNECT
// request, after the client connection has been hijacked.
type ConnectContext struct {
	Request *http.Request
	Locals  *Locals

	// Client is the hijacked client connection.
	Client net.Conn

	// Head holds bytes the client sent after the CONNECT request that were
	// already buffered by the engine.
	Head []byte

	mu     sync.Mutex
	closed bool
}

// Reject writes a raw response to the client and closes the connection. The
// tunnel is not opened afterwards.
func (c *ConnectContext) Reject(raw string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_, err := c.Client.Write([]byte(raw))
	if cerr := c.Client.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close closes the client connection without answering.
func (c *ConnectContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.Client.Close()
}

// Closed reports whether a middleware rejected or closed the connection.
func (c *ConnectContext) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// RequestContext is dispatched through the request chain before a request
// is forwarded.
type RequestContext struct {
	Request  *http.Request
	Response *ResponseWriter
	Locals   *Locals
}

// ResponseContext is dispatched through the response chain once the origin
// has answered. Middlewares may change Upstream's status, headers or body
// before they are relayed.
type ResponseContext struct {
	Request  *http.Request
	Response *ResponseWriter
	Upstream *http.Response
	Locals   *Locals
}
