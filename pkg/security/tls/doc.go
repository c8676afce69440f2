/*
Package tls loads and maintains the certificate presented by the forwarder's
TLS engine.

The forwarder terminates every CONNECT session it accepts with one fixed
certificate. Clients must trust that certificate (or the CA that issued it)
for interception to succeed.

# Server configuration

	cfg := &tls.Config{
		CertPath:   "cert/localhost.crt",
		KeyPath:    "cert/localhost.key",
		MinVersion: "1.2",
	}

	reloader := tls.NewCertificateReloader(cfg.CertPath, cfg.KeyPath)
	if err := reloader.Load(); err != nil {
		log.Fatal(err)
	}
	tlsConfig := cfg.ServerConfig(reloader)

# Certificate hot reload

With Watch enabled the reloader subscribes to fsnotify events on the
directories holding the certificate and key, and swaps the certificate in
place after a short debounce. Handshakes in flight keep the certificate they
started with.

	go reloader.Watch(ctx)

# Self-signed certificates

GenerateSelfSigned produces a PEM certificate and key for development use;
`forwarder certs generate` wraps it.
*/
package tls
