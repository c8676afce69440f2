// Package ratelimit limits how fast each client may use the proxy.
//
// Every client address owns a token bucket holding up to Burst tokens and
// refilling at RequestsPerSecond. A CONNECT request or a plain HTTP request
// takes one token; requests decrypted from an intercepted tunnel are not
// counted again. Buckets of clients that stay silent for IdleTTL are
// dropped.
//
// A refused CONNECT receives a raw answer and the connection is closed:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: 1
//	Proxy-agent: forwarder
//
// A refused plain request receives a 429 JSON answer with Retry-After.
//
// # Basic Usage
//
//	limiter, err := ratelimit.NewClientLimiter(ratelimit.Config{
//	    RequestsPerSecond: 50,
//	    Burst:             100,
//	})
//	if err != nil {
//	    return err
//	}
//	rl := ratelimit.NewMiddleware(limiter, "forwarder")
//	connect.Use(rl.Connect())
//	request.Use(rl.Request())
package ratelimit
