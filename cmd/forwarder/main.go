// Forwarder is a transparent forward proxy for HTTP and HTTPS.
//
// It binds a single port, serves plain HTTP proxy requests, and answers
// CONNECT by looping the tunnel back into its own listener so that TLS
// traffic is terminated and forwarded in clear text. Clients must trust
// the certificate configured under ssl.
//
// Usage:
//
//	# Start with the configuration found in the working directory
//	forwarder run
//
//	# Start with an explicit configuration file
//	forwarder run --config /etc/forwarder/config.yaml
//
//	# Generate a self-signed certificate for local testing
//	forwarder certs generate --host "localhost,127.0.0.1"
//
//	# Check a configuration file without starting the proxy
//	forwarder config validate --config config.yaml
//
//	# Show version information
//	forwarder version
package main

func main() {
	Execute()
}
