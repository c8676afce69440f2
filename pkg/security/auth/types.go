package auth

import "context"

// Authentication types accepted in configuration.
const (
	TypeNone      = "none"
	TypeProxyAuth = "proxy-auth"
)

// Credentials is a username/password pair presented in Proxy-Authorization.
type Credentials struct {
	Username string
	Password string
}

// Validator checks presented credentials.
type Validator interface {
	Validate(ctx context.Context, c Credentials) error
}
