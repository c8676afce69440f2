// Package types defines the values shared by the forwarder's middleware
// chains and its default handlers.
//
// # Chain contexts
//
// Each event kind has its own context type:
//   - ConnectContext: a hijacked CONNECT request before the loopback tunnel is opened
//   - RequestContext: a decoded request before it is forwarded to the origin
//   - ResponseContext: the origin's response before it is relayed to the client
//
// All three carry the request's Locals, computed once before any middleware
// runs: the resolved target URL, the client IP and the engine protocol.
//
// # Response tracking
//
// ResponseWriter wraps the engine's http.ResponseWriter and records whether
// headers were sent and whether a middleware ended the response, so the
// default handlers know when to stand down.
//
// # Error bodies
//
// Every JSON answer produced by the forwarder itself has the shape
//
//	{"statusCode": 480, "message": "Failed to process request in time. Please try again."}
//
// WriteJSON adds the content type, no-cache and security headers.
package types
