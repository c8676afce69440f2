package auth

import (
	"context"
	"log/slog"
	"net/http"

	"mercator-hq/forwarder/pkg/proxy/middleware"
	"mercator-hq/forwarder/pkg/proxy/types"
)

// ConnectChallenge is the raw answer to an unauthenticated CONNECT request.
const ConnectChallenge = "HTTP/1.1 407 Proxy Authentication Required\r\n" +
	"Proxy-Authenticate: Basic\r\n" +
	"\r\n"

// ProxyAuth authenticates clients through the Proxy-Authorization header.
type ProxyAuth struct {
	validator  Validator
	serverName string
}

// NewProxyAuth creates the middleware pair for validator.
func NewProxyAuth(validator Validator, serverName string) *ProxyAuth {
	return &ProxyAuth{
		validator:  validator,
		serverName: serverName,
	}
}

// Connect returns the connect chain middleware. Unauthenticated tunnels are
// answered with ConnectChallenge and closed.
func (a *ProxyAuth) Connect() middleware.Func[*types.ConnectContext] {
	return func(c *types.ConnectContext, next middleware.Next) {
		creds, err := a.authenticate(c.Request)
		if err != nil {
			slog.WarnContext(c.Request.Context(), "proxy authentication failed",
				"error", err,
				"method", http.MethodConnect,
				"target", c.Request.RequestURI,
				"client_ip", c.Locals.ClientIP,
			)
			_ = c.Reject(ConnectChallenge)
			return
		}

		c.Request = c.Request.WithContext(WithUser(c.Request.Context(), creds.Username))
		next()
	}
}

// Request returns the request chain middleware. Requests that arrived
// through an https tunnel were authenticated at CONNECT and pass.
func (a *ProxyAuth) Request() middleware.Func[*types.RequestContext] {
	return func(c *types.RequestContext, next middleware.Next) {
		if c.Locals != nil && c.Locals.URL != nil && c.Locals.URL.Scheme == types.ProtocolHTTPS {
			next()
			return
		}

		creds, err := a.authenticate(c.Request)
		if err != nil {
			slog.WarnContext(c.Request.Context(), "proxy authentication failed",
				"error", err,
				"method", c.Request.Method,
				"client_ip", c.Locals.ClientIP,
			)
			_ = types.WriteError(c.Response, http.StatusProxyAuthRequired, types.MessageAuthRequired,
				http.Header{
					"Proxy-Authenticate": {"Basic"},
					"Server":             {a.serverName},
				})
			c.Response.End()
			return
		}

		slog.DebugContext(c.Request.Context(), "proxy client authenticated", "user", creds.Username)
		c.Request = c.Request.WithContext(WithUser(c.Request.Context(), creds.Username))
		next()
	}
}

func (a *ProxyAuth) authenticate(r *http.Request) (Credentials, error) {
	creds, err := ParseBasic(r.Header.Get("Proxy-Authorization"))
	if err != nil {
		return Credentials{}, err
	}
	if err := a.validator.Validate(r.Context(), creds); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

// Context key for the authenticated user
type contextKey string

const userKey contextKey = "proxy_user"

// WithUser returns a copy of ctx carrying the authenticated username.
func WithUser(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, userKey, username)
}

// GetUser retrieves the authenticated username from ctx.
func GetUser(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(userKey).(string)
	return user, ok
}
