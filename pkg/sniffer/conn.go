package sniffer

import (
	"net"
	"sync"

	"mercator-hq/forwarder/pkg/connctx"
)

// Conn is an accepted connection whose sniffed bytes are replayed before
// anything else is read from the socket.
type Conn struct {
	net.Conn

	mu   sync.Mutex
	head []byte
	cc   *connctx.Conn

	loopback bool

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps raw, replaying head first.
func NewConn(raw net.Conn, head []byte, cc *connctx.Conn) *Conn {
	return &Conn{Conn: raw, head: head, cc: cc}
}

// Read drains the replayed bytes, then reads from the socket.
func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	if len(c.head) > 0 {
		n := copy(p, c.head)
		c.head = c.head[n:]
		c.mu.Unlock()
		return n, nil
	}
	c.mu.Unlock()
	return c.Conn.Read(p)
}

// Close closes the socket once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}

// CloseWrite half-closes the socket when the transport supports it.
func (c *Conn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return c.Close()
}

// Loopback reports whether the connection is the loopback leg of one of the
// proxy's own tunnels.
func (c *Conn) Loopback() bool {
	return c.loopback
}

// ConnContext implements connctx.Carrier.
func (c *Conn) ConnContext() *connctx.Conn {
	return c.cc
}
