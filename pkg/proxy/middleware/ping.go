package middleware

import (
	"net/http"
	"strings"

	"mercator-hq/forwarder/pkg/proxy/types"
)

// Ping answers GET requests addressed to the proxy itself at path with
// {"message":"Pong!"}. Requests are addressed to the proxy when they arrive
// on the plain engine in origin-form; proxied requests use absolute-form.
func Ping(path, serverName string) Func[*types.RequestContext] {
	return func(c *types.RequestContext, next Next) {
		r := c.Request
		if r.Method != http.MethodGet ||
			c.Locals.Protocol != types.ProtocolHTTP ||
			!strings.HasPrefix(r.RequestURI, "/") ||
			r.URL.Path != path {
			next()
			return
		}

		_ = types.WriteJSON(c.Response, http.StatusOK,
			types.MessageResponse{Message: types.MessagePong},
			http.Header{"Server": {serverName}})
		c.Response.End()
	}
}
