package connctx

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// ErrTLSAlreadySet is returned when SetTLS is called twice for one connection.
var ErrTLSAlreadySet = errors.New("tls conn already set for connection")

// Conn is the state shared by all work spawned for one accepted connection.
type Conn struct {
	id  string
	raw net.Conn

	mu        sync.Mutex
	tls       *tls.Conn
	busy      bool
	endTLS    bool
	tlsClosed bool
	closeTLS  sync.Once
}

// New creates the context for a freshly accepted raw connection.
func New(raw net.Conn) *Conn {
	return &Conn{
		id:  uuid.NewString(),
		raw: raw,
	}
}

// ID returns the correlation id of the connection.
func (c *Conn) ID() string {
	if c == nil {
		return ""
	}
	return c.id
}

// Raw returns the accepted socket.
func (c *Conn) Raw() net.Conn {
	if c == nil {
		return nil
	}
	return c.raw
}

// TLS returns the TLS conn or nil if the connection was never promoted.
func (c *Conn) TLS() *tls.Conn {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tls
}

// SetTLS records the TLS conn wrapping the raw socket. It may only be called
// once, by the handshake path that promoted the connection.
func (c *Conn) SetTLS(t *tls.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tls != nil {
		return ErrTLSAlreadySet
	}
	c.tls = t
	return nil
}

// EndTLS closes the TLS side of the connection once no response is being
// written on it. It is a no-op for plain connections and safe to call
// any number of times.
func (c *Conn) EndTLS() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.tls == nil {
		c.mu.Unlock()
		return
	}
	c.endTLS = true
	busy := c.busy
	c.mu.Unlock()

	if !busy {
		c.shutdownTLS()
	}
}

// TLSEnded reports whether the TLS conn has been closed through EndTLS.
func (c *Conn) TLSEnded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tlsClosed
}

// TrackState is fed from http.Server.ConnState for connections served by the
// TLS engine.
func (c *Conn) TrackState(state http.ConnState) {
	c.mu.Lock()
	switch state {
	case http.StateActive:
		c.busy = true
	case http.StateIdle, http.StateHijacked, http.StateClosed:
		c.busy = false
	}
	pending := c.endTLS && !c.busy && c.tls != nil
	c.mu.Unlock()

	if pending && state != http.StateClosed {
		c.shutdownTLS()
	}
}

func (c *Conn) shutdownTLS() {
	c.closeTLS.Do(func() {
		c.mu.Lock()
		t := c.tls
		c.mu.Unlock()

		// CloseWrite sends close_notify before the socket goes away.
		_ = t.CloseWrite()
		_ = t.Close()

		c.mu.Lock()
		c.tlsClosed = true
		c.mu.Unlock()
	})
}

type contextKey struct{}

// With returns a copy of ctx carrying c.
func With(ctx context.Context, c *Conn) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// From returns the connection bound to ctx, or nil.
func From(ctx context.Context) *Conn {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(contextKey{}).(*Conn)
	return c
}

// Run executes work with c bound to the context it receives.
func Run(ctx context.Context, c *Conn, work func(ctx context.Context)) {
	work(With(ctx, c))
}

// Carrier is implemented by connections that know their *Conn.
type Carrier interface {
	ConnContext() *Conn
}

// FromNetConn extracts the *Conn from a connection handed to an HTTP engine,
// looking through *tls.Conn wrappers.
func FromNetConn(nc net.Conn) *Conn {
	for nc != nil {
		if carrier, ok := nc.(Carrier); ok {
			return carrier.ConnContext()
		}
		t, ok := nc.(*tls.Conn)
		if !ok {
			return nil
		}
		nc = t.NetConn()
	}
	return nil
}
