/*
Package auth provides proxy authentication for the forwarder.

Clients authenticate with the Basic scheme in the Proxy-Authorization
header. The same ProxyAuth value contributes a middleware to the connect
chain and one to the request chain. Both are registered only when
auth.type is "proxy-auth".

# Basic Usage

	pa := auth.NewProxyAuth(auth.NewStaticValidator("u", "p"), "forwarder")
	connect.Use(pa.Connect())
	request.Use(pa.Request())

# Challenges

An unauthenticated CONNECT receives a raw status line and the connection
is closed:

	HTTP/1.1 407 Proxy Authentication Required
	Proxy-Authenticate: Basic

An unauthenticated plain request receives a 407 JSON answer carrying
Proxy-Authenticate: Basic.

Requests decrypted from an intercepted tunnel have an https URL and are not
challenged again, since the tunnel itself was authenticated. Only connect
chain authentication protects the https path.

# Security Considerations

- Credentials are compared in constant time
- Proxy-Authorization is never forwarded to origins and never logged
- Basic credentials travel in clear text on the plain engine
*/
package auth
