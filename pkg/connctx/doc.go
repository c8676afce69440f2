// Package connctx carries per-connection state through the proxy.
//
// # Overview
//
// Every TCP connection accepted by the sniffing listener gets exactly one
// *Conn. It holds a correlation id used for log correlation, the raw accepted
// socket and, once the connection has been promoted by the TLS engine, the
// *tls.Conn wrapping it.
//
// The *Conn travels inside context.Context. The HTTP engines install it with
// http.Server.ConnContext, so handlers, middleware chains and the outbound
// forwarding code all reach it through From(ctx):
//
//	cc := connctx.From(r.Context())
//	if cc != nil {
//	    slog.DebugContext(ctx, "closing tls", "correlation_id", cc.ID())
//	    cc.EndTLS()
//	}
//
// # TLS teardown
//
// EndTLS asks for the TLS side of the connection to be closed. The close is
// deferred until the HTTP engine reports the connection idle (or hijacked) so
// an in-flight response is never truncated. The engines feed connection state
// transitions in through TrackState.
package connctx
