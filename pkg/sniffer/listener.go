package sniffer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"mercator-hq/forwarder/pkg/connctx"
)

// DefaultBufferSize is the largest first read used for classification.
// It covers a full TLS record.
const DefaultBufferSize = 16 * 1024

// ErrUnsupportedProtocol is reported for connections rejected with 505.
var ErrUnsupportedProtocol = errors.New("unsupported protocol")

// Handoff passes a classified connection to an engine.
type Handoff func(ctx context.Context, c *Conn) error

// Listener is the accept loop shared by both engines.
type Listener struct {
	// Name is sent as Proxy-agent in the 505 answer.
	Name string

	// SniffTimeout bounds the wait for the first bytes. Zero disables it.
	SniffTimeout time.Duration

	// BufferSize caps the classifying read. Defaults to DefaultBufferSize.
	BufferSize int

	// HTTP and TLS receive classified connections.
	HTTP Handoff
	TLS  Handoff

	// OnError is notified of connection-scoped failures before the engines
	// take over: read errors, sniff timeouts and unsupported protocols.
	OnError func(ctx context.Context, err error)

	// OnClassified is notified of every classification.
	OnClassified func(p Protocol)

	wg sync.WaitGroup

	mu       sync.Mutex
	draining bool
	loopback map[string]int
}

// Exempt marks the connection dialed from local as a loopback leg of the
// proxy's own tunnel. Loopback legs wait for their first bytes without the
// sniff timeout and skip the handshake timeout; the tunnel's idle timeout
// governs them instead. The returned func ends the exemption.
func (l *Listener) Exempt(local net.Addr) (release func()) {
	key := local.String()

	l.mu.Lock()
	if l.loopback == nil {
		l.loopback = make(map[string]int)
	}
	l.loopback[key]++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if l.loopback[key]--; l.loopback[key] <= 0 {
				delete(l.loopback, key)
			}
			l.mu.Unlock()
		})
	}
}

func (l *Listener) isLoopback(remote net.Addr) bool {
	if remote == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loopback[remote.String()] > 0
}

// admit registers a new connection with the wait group unless Wait has
// started draining.
func (l *Listener) admit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.draining {
		return false
	}
	l.wg.Add(1)
	return true
}

// Serve accepts connections from ln until it is closed or ctx is done.
// Each connection is handled on its own goroutine.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	if l.HTTP == nil || l.TLS == nil {
		return errors.New("sniffer: both HTTP and TLS handoffs are required")
	}

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var tempDelay time.Duration
	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return net.ErrClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if tempDelay > time.Second {
					tempDelay = time.Second
				}
				slog.Warn("accept error, retrying", "error", err, "delay", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		tempDelay = 0

		if !l.admit() {
			raw.Close()
			return net.ErrClosed
		}
		go func() {
			defer l.wg.Done()
			l.handle(ctx, raw)
		}()
	}
}

// Wait stops admitting connections and blocks until every connection
// handed out by Serve has been classified and dispatched. Connections
// accepted afterwards are closed.
func (l *Listener) Wait() {
	l.mu.Lock()
	l.draining = true
	l.mu.Unlock()

	l.wg.Wait()
}

func (l *Listener) handle(ctx context.Context, raw net.Conn) {
	cc := connctx.New(raw)
	connctx.Run(ctx, cc, func(ctx context.Context) {
		l.dispatch(ctx, raw, cc)
	})
}

func (l *Listener) dispatch(ctx context.Context, raw net.Conn, cc *connctx.Conn) {
	size := l.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	buf := make([]byte, size)

	loopback := l.isLoopback(raw.RemoteAddr())
	if l.SniffTimeout > 0 && !loopback {
		_ = raw.SetReadDeadline(time.Now().Add(l.SniffTimeout))
	}
	n, err := raw.Read(buf)
	if n == 0 && errors.Is(err, os.ErrDeadlineExceeded) && l.isLoopback(raw.RemoteAddr()) {
		// The tunnel registered its leg after the deadline was armed.
		loopback = true
		_ = raw.SetReadDeadline(time.Time{})
		n, err = raw.Read(buf)
	}
	if n == 0 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		l.fail(ctx, raw, err)
		return
	}
	_ = raw.SetReadDeadline(time.Time{})

	head := buf[:n]
	proto := Classify(head)
	if l.OnClassified != nil {
		l.OnClassified(proto)
	}

	slog.DebugContext(ctx, "connection classified",
		"protocol", proto.String(),
		"remote_addr", raw.RemoteAddr().String(),
		"first_byte", head[0],
	)

	var handoff Handoff
	switch proto {
	case ProtocolTLS:
		handoff = l.TLS
	case ProtocolHTTP:
		handoff = l.HTTP
	default:
		slog.ErrorContext(ctx, "unsupported protocol", "first_byte", head[0])
		_, _ = io.WriteString(raw, UnsupportedResponse(l.Name))
		raw.Close()
		l.report(ctx, fmt.Errorf("%w: first byte %d", ErrUnsupportedProtocol, head[0]))
		return
	}

	conn := NewConn(raw, head, cc)
	conn.loopback = loopback
	if err := handoff(ctx, conn); err != nil {
		raw.Close()
		if !errors.Is(err, net.ErrClosed) {
			l.report(ctx, err)
		}
	}
}

func (l *Listener) fail(ctx context.Context, raw net.Conn, err error) {
	raw.Close()

	if errors.Is(err, io.EOF) {
		slog.DebugContext(ctx, "connection closed before any data")
		return
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		slog.WarnContext(ctx, "timed out waiting for first bytes")
	} else {
		slog.ErrorContext(ctx, "failed to read first bytes", "error", err)
	}
	l.report(ctx, err)
}

func (l *Listener) report(ctx context.Context, err error) {
	if l.OnError != nil {
		l.OnError(ctx, err)
	}
}

// UnsupportedResponse is the raw answer for connections that are neither
// HTTP nor TLS.
func UnsupportedResponse(name string) string {
	return "HTTP/1.1 505 Only HTTP and HTTPS protocols are currently supported\r\n" +
		"Proxy-agent: " + name + "\r\n" +
		"\r\n"
}
