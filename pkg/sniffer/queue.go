package sniffer

import (
	"net"
	"sync"
)

// Queue is a net.Listener whose connections are pushed by the accept loop.
type Queue struct {
	addr  net.Addr
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

// NewQueue creates a queue reporting addr as its address.
func NewQueue(addr net.Addr) *Queue {
	return &Queue{
		addr:  addr,
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
}

// Push hands c to the engine serving the queue. It blocks until the engine
// accepts it and fails with net.ErrClosed once the queue is closed.
func (q *Queue) Push(c net.Conn) error {
	select {
	case <-q.done:
		return net.ErrClosed
	default:
	}

	select {
	case q.conns <- c:
		return nil
	case <-q.done:
		return net.ErrClosed
	}
}

// Accept implements net.Listener.
func (q *Queue) Accept() (net.Conn, error) {
	select {
	case c := <-q.conns:
		return c, nil
	case <-q.done:
		return nil, net.ErrClosed
	}
}

// Close implements net.Listener.
func (q *Queue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}

// Addr implements net.Listener.
func (q *Queue) Addr() net.Addr {
	return q.addr
}
