package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/forwarder/pkg/connctx"
	"mercator-hq/forwarder/pkg/proxy/types"
)

// EstablishedResponse is written to the client once the loopback leg of a
// CONNECT tunnel is up.
func EstablishedResponse(name string) string {
	return "HTTP/1.1 200 " + types.MessageEstablished + "\r\n" +
		"Proxy-agent: " + name + "\r\n" +
		"\r\n"
}

// TunnelTimeoutResponse is written to the client when the loopback leg of a
// tunnel stays idle for longer than the request timeout.
func TunnelTimeoutResponse(name string) string {
	return fmt.Sprintf("HTTP/1.1 %d %s\r\nProxy-agent: %s\r\n\r\n",
		types.StatusRequestTimeout, types.MessageTimeout, name)
}

// badGatewayResponse is written when the loopback leg cannot be opened.
func badGatewayResponse(name string) string {
	return "HTTP/1.1 502 " + types.MessageBadGateway + "\r\n" +
		"Proxy-agent: " + name + "\r\n" +
		"\r\n"
}

// tunnel is one live CONNECT session.
type tunnel struct {
	client   net.Conn
	loopback net.Conn
	name     string

	bytesIn  atomic.Int64
	bytesOut atomic.Int64

	mu       sync.Mutex
	closed   bool
	timedOut bool
}

// close destroys both legs once.
func (t *tunnel) close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	_ = t.client.Close()
	_ = t.loopback.Close()
}

// timeout answers 480 and destroys both legs. Only the first call has an
// effect.
func (t *tunnel) timeout() bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.closed = true
	t.timedOut = true
	t.mu.Unlock()

	_, _ = io.WriteString(t.client, TunnelTimeoutResponse(t.name))
	_ = t.client.Close()
	_ = t.loopback.Close()
	return true
}

func (t *tunnel) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// tunnel serves a CONNECT request by splicing the client onto a fresh
// connection to the forwarder's own listener.
func (f *Forwarder) tunnel(w http.ResponseWriter, r *http.Request, protocol string) {
	start := time.Now()
	cc := connctx.From(r.Context())

	meta := &TunnelMetadata{
		CorrelationID: cc.ID(),
		Protocol:      protocol,
		Target:        r.RequestURI,
	}

	ctx, span := f.tracer.Start(r.Context(), "proxy.tunnel",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("proxy.target", r.RequestURI),
			attribute.String("proxy.protocol", protocol),
			attribute.String("proxy.correlation_id", cc.ID()),
		),
	)
	defer func() {
		meta.Duration = time.Since(start)
		span.SetAttributes(
			attribute.String("proxy.outcome", meta.Outcome),
			attribute.Int64("proxy.bytes_in", meta.BytesIn),
			attribute.Int64("proxy.bytes_out", meta.BytesOut),
		)
		if meta.Outcome == OutcomeError || meta.Outcome == OutcomeTimeout {
			span.SetStatus(codes.Error, meta.Outcome)
		}
		span.End()
		f.recorder.RecordTunnel(meta)
	}()

	client, brw, err := http.NewResponseController(w).Hijack()
	if err != nil {
		meta.Outcome = OutcomeError
		slog.ErrorContext(ctx, "failed to hijack CONNECT request", "error", err)
		f.requestError(ctx, fmt.Errorf("hijack: %w", err))
		return
	}
	_ = client.SetDeadline(time.Time{})

	// The engine cannot close a hijacked conn; a panicking connect
	// middleware abandons it here.
	defer func() {
		if rec := recover(); rec != nil {
			meta.Outcome = OutcomeError
			_ = client.Close()
			panic(rec)
		}
	}()

	var head []byte
	if n := brw.Reader.Buffered(); n > 0 {
		buffered, _ := brw.Reader.Peek(n)
		head = append([]byte(nil), buffered...)
	}

	locals := &types.Locals{
		URL:      &url.URL{Scheme: protocol, Host: r.RequestURI},
		ClientIP: types.ClientIP(r),
		Protocol: protocol,
	}
	connect := &types.ConnectContext{
		Request: types.WithLocals(r.WithContext(ctx), locals),
		Locals:  locals,
		Client:  client,
		Head:    head,
	}

	if !f.connect.Dispatch(connect) || connect.Closed() {
		meta.Outcome = OutcomeRejected
		_ = connect.Close()
		return
	}

	dialer := net.Dialer{Timeout: f.requestTimeout}
	lb, err := dialer.DialContext(ctx, "tcp", f.loopback)
	if err != nil {
		meta.Outcome = OutcomeError
		slog.ErrorContext(ctx, "failed to open loopback connection",
			"address", f.loopback,
			"error", err,
		)
		_, _ = io.WriteString(client, badGatewayResponse(f.name))
		_ = client.Close()
		f.requestError(ctx, fmt.Errorf("dial loopback: %w", err))
		return
	}
	if f.exemptLoopback != nil {
		defer f.exemptLoopback(lb.LocalAddr())()
	}

	t := &tunnel{
		client:   client,
		loopback: newIdleTimeoutConn(lb, f.requestTimeout),
		name:     f.name,
	}
	if !f.track(t) {
		meta.Outcome = OutcomeClosed
		t.close()
		return
	}
	defer f.untrack(t)
	defer t.close()

	if _, err := io.WriteString(client, EstablishedResponse(f.name)); err != nil {
		meta.Outcome = OutcomeError
		slog.WarnContext(ctx, "failed to confirm tunnel", "error", err)
		return
	}
	if len(head) > 0 {
		if _, err := t.loopback.Write(head); err != nil {
			meta.Outcome = OutcomeError
			slog.WarnContext(ctx, "failed to forward buffered handshake", "error", err)
			return
		}
		t.bytesIn.Add(int64(len(head)))
	}

	slog.DebugContext(ctx, "tunnel established",
		"target", r.RequestURI,
		"loopback", f.loopback,
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		f.splice(ctx, t, t.loopback, client, &t.bytesIn, "client", protocol)
	}()
	go func() {
		defer wg.Done()
		f.splice(ctx, t, client, t.loopback, &t.bytesOut, "loopback", protocol)
	}()
	wg.Wait()

	meta.BytesIn = t.bytesIn.Load()
	meta.BytesOut = t.bytesOut.Load()

	t.mu.Lock()
	timedOut := t.timedOut
	t.mu.Unlock()

	switch {
	case timedOut:
		meta.Outcome = OutcomeTimeout
	case meta.Outcome == "":
		meta.Outcome = OutcomeForwarded
	}
}

// splice copies src into dst until src ends. A clean end or a failure
// half-closes dst so the other direction can drain. A timeout on the
// loopback leg tears the whole tunnel down with a 480 answer.
func (f *Forwarder) splice(ctx context.Context, t *tunnel, dst, src net.Conn, counter *atomic.Int64, from, protocol string) {
	n, err := io.Copy(dst, src)
	counter.Add(n)

	if t.isClosed() {
		return
	}

	if err != nil {
		if isTimeout(err) {
			if t.timeout() {
				slog.WarnContext(ctx, "tunnel timed out",
					"from", from,
					"timeout", f.requestTimeout.String(),
				)
			}
			return
		}
		if !isClosed(err) {
			slog.WarnContext(ctx, "tunnel leg failed",
				"from", from,
				"error", err,
			)
		}
		if protocol == types.ProtocolHTTPS {
			connctx.From(ctx).EndTLS()
		}
	}

	if cerr := closeWrite(dst); cerr != nil && !isClosed(cerr) {
		slog.DebugContext(ctx, "failed to end tunnel leg", "from", from, "error", cerr)
	}
}
