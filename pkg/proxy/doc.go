// Package proxy implements the two request paths of the forwarder: the CONNECT
// interception tunnel and the HTTP forwarding pipeline.
//
// Both engines of the server (plain HTTP and TLS-terminating) serve the same
// handler, returned by Forwarder.Handler for the engine's protocol.
//
// # CONNECT Interception
//
// A CONNECT request is never tunneled to the target it names. After the
// connect chain accepts it, the forwarder dials its own listening address and
// splices the client onto that loopback connection. The client's TLS
// handshake then reaches the sniffing listener again, is classified as TLS
// and is terminated by the TLS engine using the configured certificate. The
// decrypted requests flow through the forwarding pipeline with an https URL.
//
// This is a man-in-the-middle by construction. Every client that tunnels
// through the forwarder must trust its certificate, and the forwarder sees
// all tunneled traffic in clear text.
//
// # Forwarding Pipeline
//
//  1. Resolve the target URL and attach types.Locals to the request.
//  2. Dispatch the request chain. A halted chain or an ended response stops
//     the exchange.
//  3. Drop Proxy-Connection and Host, set Referer to the target URL.
//  4. Send the request to the origin with an idle timeout of RequestTimeout.
//  5. Dispatch the response chain, then relay status, headers (plus Server)
//     and body.
//
// Failures answer with JSON bodies: 480 when the origin is too slow, 502 when
// the client body cannot be read, 500 for unexpected errors. Any other
// outbound error aborts the client connection and is reported through
// Options.OnServerError.
//
// # Basic Usage
//
//	fwd := proxy.New(proxy.Options{
//	    Name:           "forwarder",
//	    RequestTimeout: 30 * time.Second,
//	    LoopbackAddr:   ln.Addr().String(),
//	})
//	defer fwd.Close()
//
//	plain := &http.Server{Handler: fwd.Handler(types.ProtocolHTTP)}
//	secure := &http.Server{Handler: fwd.Handler(types.ProtocolHTTPS)}
package proxy
