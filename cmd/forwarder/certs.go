package main

import (
	"github.com/spf13/cobra"
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Manage TLS certificates",
	Long: `Manage the certificate the proxy uses to terminate intercepted TLS.

Clients must trust this certificate: every CONNECT tunnel is decrypted with
it before requests are forwarded to their origins.

Subcommands:
  generate - Generate a self-signed certificate for testing
  validate - Validate a certificate and key pair

Examples:
  # Generate a certificate for localhost
  forwarder certs generate

  # Validate the configured pair
  forwarder certs validate --cert cert/localhost.crt --key cert/localhost.key`,
}

func init() {
	rootCmd.AddCommand(certsCmd)
}
