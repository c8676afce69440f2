package ratelimit

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/forwarder/pkg/proxy/middleware"
	"mercator-hq/forwarder/pkg/proxy/types"
)

// Recorder counts refused requests by chain.
type Recorder interface {
	RecordRateLimited(chain string)
}

// Middleware applies a ClientLimiter to the connect and request chains.
type Middleware struct {
	limiter    *ClientLimiter
	serverName string
	recorder   Recorder
}

// NewMiddleware creates the middleware pair for limiter.
func NewMiddleware(limiter *ClientLimiter, serverName string) *Middleware {
	return &Middleware{limiter: limiter, serverName: serverName}
}

// WithRecorder sets the recorder told about every refusal.
func (m *Middleware) WithRecorder(r Recorder) *Middleware {
	m.recorder = r
	return m
}

// Connect returns the connect chain middleware. A refused CONNECT is
// answered with a raw 429 and closed.
func (m *Middleware) Connect() middleware.Func[*types.ConnectContext] {
	return func(c *types.ConnectContext, next middleware.Next) {
		ok, wait := m.limiter.Allow(c.Locals.ClientIP)
		if ok {
			next()
			return
		}

		m.refused(c.Request, "connect", c.Locals.ClientIP, wait)
		_ = c.Reject(ConnectRejection(m.serverName, wait))
	}
}

// Request returns the request chain middleware. Requests decrypted from an
// intercepted tunnel arrive from the loopback address and were counted at
// CONNECT, so they pass.
func (m *Middleware) Request() middleware.Func[*types.RequestContext] {
	return func(c *types.RequestContext, next middleware.Next) {
		if c.Locals != nil && c.Locals.URL != nil && c.Locals.URL.Scheme == types.ProtocolHTTPS {
			next()
			return
		}

		ok, wait := m.limiter.Allow(c.Locals.ClientIP)
		if ok {
			next()
			return
		}

		m.refused(c.Request, "request", c.Locals.ClientIP, wait)
		_ = types.WriteError(c.Response, http.StatusTooManyRequests, types.MessageRateLimited,
			http.Header{
				"Retry-After": {retryAfter(wait)},
				"Server":      {m.serverName},
			})
		c.Response.End()
	}
}

func (m *Middleware) refused(r *http.Request, chain, client string, wait time.Duration) {
	slog.WarnContext(r.Context(), "client rate limited",
		"chain", chain,
		"client_ip", client,
		"retry_after", wait.String(),
	)
	if m.recorder != nil {
		m.recorder.RecordRateLimited(chain)
	}
}

// ConnectRejection is the raw answer to a rate limited CONNECT request.
func ConnectRejection(serverName string, wait time.Duration) string {
	return fmt.Sprintf("HTTP/1.1 %d %s\r\nRetry-After: %s\r\nProxy-agent: %s\r\n\r\n",
		http.StatusTooManyRequests, types.MessageRateLimited, retryAfter(wait), serverName)
}

// retryAfter renders wait in whole seconds, at least one.
func retryAfter(wait time.Duration) string {
	secs := int64(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
