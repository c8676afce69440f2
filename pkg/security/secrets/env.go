package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// DefaultEnvPrefix namespaces secrets read from the environment.
const DefaultEnvPrefix = "FORWARDER_SECRET_"

// EnvProvider reads secrets from environment variables. The name
// "proxy-password" maps to FORWARDER_SECRET_PROXY_PASSWORD.
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider creates an environment provider using prefix.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

// Name returns "env".
func (p *EnvProvider) Name() string { return "env" }

// Lookup reads the variable for name. Empty values count as missing.
func (p *EnvProvider) Lookup(ctx context.Context, name string) (string, error) {
	key := p.variable(name)
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s not set", ErrNotFound, key)
	}
	return value, nil
}

func (p *EnvProvider) variable(name string) string {
	return p.Prefix + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}
