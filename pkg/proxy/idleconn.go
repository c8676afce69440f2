package proxy

import (
	"net"
	"sync"
	"time"
)

// idleTimeoutConn fails reads and writes once the connection has been idle
// for longer than timeout. Every successful operation pushes the deadline.
type idleTimeoutConn struct {
	net.Conn
	timeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func newIdleTimeoutConn(c net.Conn, timeout time.Duration) *idleTimeoutConn {
	ic := &idleTimeoutConn{Conn: c, timeout: timeout}
	ic.extend()
	return ic
}

func (c *idleTimeoutConn) extend() {
	if c.timeout > 0 {
		_ = c.Conn.SetDeadline(time.Now().Add(c.timeout))
	}
}

func (c *idleTimeoutConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.extend()
	}
	return n, err
}

func (c *idleTimeoutConn) Write(p []byte) (int, error) {
	c.extend()
	n, err := c.Conn.Write(p)
	if n > 0 {
		c.extend()
	}
	return n, err
}

// Close closes the connection once.
func (c *idleTimeoutConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}

func (c *idleTimeoutConn) CloseWrite() error {
	return closeWrite(c.Conn)
}

// closeWrite half-closes c, or closes it when half-close is unsupported.
func closeWrite(c net.Conn) error {
	if cw, ok := c.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return c.Close()
}
