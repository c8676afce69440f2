/*
Package security groups the forwarder's security concerns.

# TLS

Package tls loads and hot-reloads the certificate that terminates
intercepted TLS, builds the server and origin client configurations, and
inspects certificates for the certs CLI commands:

	reloader := tls.NewCertificateReloader("cert/localhost.crt", "cert/localhost.key")
	if err := reloader.Load(); err != nil {
		return err
	}
	cfg := tls.Config{MinVersion: "1.2"}
	serverTLS := cfg.ServerConfig(reloader)

# Proxy Authentication

Package auth implements Basic proxy authentication for the connect and
request chains. A 407 is returned on plain requests; CONNECT requests get a
raw 407 and are closed.

# Secrets

Package secrets resolves ${secret:name} references from the environment or a
mounted directory, caches the values and flushes them when the directory
changes:

	manager := secrets.NewManager(secrets.DefaultCacheTTL,
	    secrets.NewEnvProvider(secrets.DefaultEnvPrefix),
	)
	password, err := manager.Resolve(ctx, "${secret:proxy-password}")

Intercepting CONNECT tunnels means every client must trust the proxy
certificate. Keep its private key readable only by the forwarder.
*/
package security
