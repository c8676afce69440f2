// Package middleware provides the forwarder's middleware chains and the
// wrappers around its two HTTP engines.
//
// # Chains
//
// Chain[T] is an ordered, short-circuiting list of Func[T] middlewares. The
// forwarder keeps one chain per event kind:
//
//	connect  *Chain[*types.ConnectContext]
//	request  *Chain[*types.RequestContext]
//	response *Chain[*types.ResponseContext]
//
// A middleware continues by calling next. Returning without calling next
// halts the chain: no later middleware runs and Dispatch reports false, so
// the default handler is skipped.
//
//	chain.Use(func(c *types.RequestContext, next middleware.Next) {
//	    if c.Request.Header.Get("X-Blocked") != "" {
//	        _ = types.WriteError(c.Response, http.StatusForbidden, "Forbidden", nil)
//	        c.Response.End()
//	        return
//	    }
//	    next()
//	})
//
// Chains are filled at startup and sealed on first dispatch. Dispatch keeps
// its cursor per call, so one chain serves every connection concurrently.
//
// # Built-in middlewares
//
//   - Ping: answers GET <path> addressed to the proxy itself with {"message":"Pong!"}
//   - ResponseCache: serves GET hits from a cache.Cache (request chain) and
//     stores cacheable origin responses (response chain)
//
// # Engine wrappers
//
// Both engines wrap the forwarder's handler as
//
//	handler = RecoveryMiddleware(name, onPanic)(LoggingMiddleware(protocol)(handler))
//
// RecoveryMiddleware turns panics into a 500 JSON answer and closes the TLS
// side of the connection; LoggingMiddleware logs every request with the
// connection's correlation id.
package middleware
