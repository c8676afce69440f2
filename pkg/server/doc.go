// Package server provides the forward proxy server.
//
// The server binds a single TCP port. Every accepted connection is
// classified from its first bytes by the sniffer and handed to one of two
// http.Server engines:
//
//   - plain HTTP connections go to the http engine
//   - TLS connections are terminated with the configured certificate and go
//     to the https engine
//   - anything else is answered with a raw 505 and closed
//
// Both engines run the same forwarder. CONNECT requests are answered by
// dialing the server's own port, so the client's TLS session re-enters the
// listener, is terminated by the https engine and the decrypted requests are
// forwarded to their origins. The proxy therefore sees all tunneled traffic
// in clear text; clients must trust the proxy certificate.
//
// # Basic Usage
//
//	cfg := config.MustGetConfig()
//
//	srv, err := server.New(cfg, server.Options{Tracer: tracer.Tracer()})
//	if err != nil {
//	    return err
//	}
//	srv.Subscribe(server.ObserverFuncs{
//	    ServerError: func(ctx context.Context, err error) { alert(err) },
//	})
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//	<-ctx.Done()
//	return srv.Shutdown(context.Background())
//
// # Middleware
//
// Proxy-auth, ping and the response cache are registered from the
// configuration. Additional middlewares may be appended to the chains
// returned by Connect, Request and Response until Start seals them.
//
// # Lifecycle Events
//
// Observers receive OnListen, OnClose, OnRequestError, OnServerError and
// OnUncaughtException. A logging observer and a metrics observer are always
// subscribed.
//
// # Admin Listener
//
// When telemetry.admin.enabled is set, a second listener serves Prometheus
// metrics and the liveness, readiness and version endpoints. Readiness
// reports 503 from the moment Shutdown starts.
package server
