package server

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"

	"mercator-hq/forwarder/pkg/connctx"
	"mercator-hq/forwarder/pkg/proxy/middleware"
	"mercator-hq/forwarder/pkg/proxy/types"
	"mercator-hq/forwarder/pkg/sniffer"
	"mercator-hq/forwarder/pkg/telemetry/metrics"
	"mercator-hq/forwarder/pkg/telemetry/tracing"
)

// newEngine builds the http.Server serving one protocol. Both engines run
// the same forwarder; only the inferred scheme differs.
func (s *Server) newEngine(protocol string) *http.Server {
	var handler http.Handler = s.forwarder.Handler(protocol)
	handler = tracing.HTTPMiddleware(handler)
	handler = middleware.LoggingMiddleware(protocol)(handler)
	handler = middleware.RecoveryMiddleware(s.cfg.Proxy.Name, s.onPanic)(handler)

	p := s.cfg.Proxy
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: p.ReadHeaderTimeout,
		IdleTimeout:       p.IdleTimeout,
		MaxHeaderBytes:    p.MaxHeaderBytes,
		ConnContext:       connContext,
		ErrorLog:          log.New(engineErrorLog{server: s, protocol: protocol}, "", 0),
	}

	if protocol == types.ProtocolHTTPS {
		// http/1.1 only; an empty map keeps net/http from enabling h2.
		srv.TLSNextProto = map[string]func(*http.Server, *tls.Conn, http.Handler){}
		srv.ConnState = trackState
	}

	return srv
}

func connContext(ctx context.Context, c net.Conn) context.Context {
	if cc := connctx.FromNetConn(c); cc != nil {
		return connctx.With(ctx, cc)
	}
	return ctx
}

// trackState lets EndTLS wait for the response in flight.
func trackState(c net.Conn, state http.ConnState) {
	cc := connctx.FromNetConn(c)
	if cc == nil {
		return
	}
	cc.TrackState(state)
	if state == http.StateClosed {
		slog.Debug("tls connection closed",
			"conn_id", cc.ID(),
			"ended_by_proxy", cc.TLSEnded(),
		)
	}
}

// handoffTLS terminates TLS on a connection classified as TLS and queues the
// decrypted stream for the https engine.
func (s *Server) handoffTLS(ctx context.Context, c *sniffer.Conn) error {
	tc := tls.Server(c, s.serverTLS)

	hctx := ctx
	if timeout := s.cfg.Proxy.HandshakeTimeout; timeout > 0 && !c.Loopback() {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := tc.HandshakeContext(hctx); err != nil {
		slog.DebugContext(ctx, "tls handshake failed",
			"error", err,
			"remote_addr", c.RemoteAddr().String(),
		)
		s.collector.RecordLifecycleError(metrics.ErrorKindHandshake)
		_ = tc.Close()
		return nil
	}

	if err := c.ConnContext().SetTLS(tc); err != nil {
		_ = tc.Close()
		return err
	}

	slog.DebugContext(ctx, "tls handshake completed",
		"server_name", tc.ConnectionState().ServerName,
		"alpn", tc.ConnectionState().NegotiatedProtocol,
	)
	return s.tlsQueue.Push(tc)
}

// exemptLoopback is resolved at call time; the sniffer is built after the
// forwarder.
func (s *Server) exemptLoopback(local net.Addr) func() {
	return s.sniffer.Exempt(local)
}

func (s *Server) onPanic(r *http.Request, err error) {
	s.emitUncaught(r.Context(), err)
}

// engineErrorLog turns net/http's error log lines into request errors.
type engineErrorLog struct {
	server   *Server
	protocol string
}

func (l engineErrorLog) Write(p []byte) (int, error) {
	msg := string(bytes.TrimSpace(p))
	if msg != "" {
		l.server.emitRequestError(context.Background(), fmt.Errorf("%s engine: %s", l.protocol, msg))
	}
	return len(p), nil
}

// newAdmin builds the admin server exposing metrics and health probes.
func (s *Server) newAdmin() *http.Server {
	mux := http.NewServeMux()

	if m := s.cfg.Telemetry.Metrics; m.Enabled {
		mux.Handle(m.Path, s.collector.Handler())
	}
	s.health.Mount(mux, s.cfg.Telemetry.Health, s.opts.Version)

	return &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: s.cfg.Proxy.ReadHeaderTimeout,
	}
}
