package main

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/forwarder/pkg/cli"
	tlsutil "mercator-hq/forwarder/pkg/security/tls"
)

var certsValidateFlags struct {
	certFile string
	keyFile  string
	caFile   string
	output   string
}

var certsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate certificate and key",
	Long: `Validate a TLS certificate and private key.

This command validates:
  - Certificate and key pair match (if --key provided)
  - Certificate is within its validity period
  - Certificate chain validation (if --ca provided)
  - Certificate expiration warnings (<30 days)

Examples:
  # Validate certificate and key match
  forwarder certs validate --cert cert/localhost.crt --key cert/localhost.key

  # Validate certificate chain against CA
  forwarder certs validate --cert proxy.crt --ca ca.pem

  # Print the certificate details as JSON
  forwarder certs validate --cert proxy.crt --output json`,
	RunE: validateCertificate,
}

func init() {
	certsCmd.AddCommand(certsValidateCmd)

	certsValidateCmd.Flags().StringVar(&certsValidateFlags.certFile, "cert", "", "certificate file (required)")
	certsValidateCmd.Flags().StringVar(&certsValidateFlags.keyFile, "key", "", "private key file")
	certsValidateCmd.Flags().StringVar(&certsValidateFlags.caFile, "ca", "", "CA certificate file")
	certsValidateCmd.Flags().StringVarP(&certsValidateFlags.output, "output", "o", "text", "output format: text, json")

	_ = certsValidateCmd.MarkFlagRequired("cert")
}

func validateCertificate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(certsValidateFlags.output)
	if err != nil {
		return cli.NewConfigError("output", err.Error())
	}

	// Progress lines go to stderr in json mode so stdout stays parseable.
	var progress io.Writer = os.Stdout
	if format == cli.FormatJSON {
		progress = os.Stderr
	}

	fmt.Fprintf(progress, "Validating certificate: %s\n\n", certsValidateFlags.certFile)

	cert, err := readCertificate(certsValidateFlags.certFile)
	if err != nil {
		return err
	}

	if certsValidateFlags.keyFile != "" {
		if _, _, err := tlsutil.LoadKeyPair(certsValidateFlags.certFile, certsValidateFlags.keyFile); err != nil {
			fmt.Fprintln(progress, "✗ Certificate and key do NOT match")
			return err
		}
		fmt.Fprintln(progress, "✓ Certificate and key match")
	}

	if certsValidateFlags.caFile != "" {
		if err := tlsutil.VerifyChain(cert, certsValidateFlags.caFile); err != nil {
			fmt.Fprintln(progress, "✗ Certificate chain invalid")
			return err
		}
		fmt.Fprintln(progress, "✓ Certificate chain valid")
	}

	if err := tlsutil.ValidateX509Certificate(cert); err != nil {
		fmt.Fprintf(progress, "✗ %v\n", err)
		return err
	}
	fmt.Fprintf(progress, "✓ Certificate not expired (valid until %s)\n", cert.NotAfter.Format("2006-01-02"))

	if days, warning := tlsutil.CheckCertificateExpiration(cert); warning != "" {
		fmt.Fprintf(progress, "⚠  Certificate expires in %d days\n", days)
	}

	info := tlsutil.ExtractCertificateInfo(cert)
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(os.Stdout, info)
	}

	fmt.Println("\nCertificate Details:")
	fmt.Printf("  Subject: %s\n", info.Subject)
	fmt.Printf("  Issuer: %s\n", info.Issuer)
	fmt.Printf("  Serial: %s\n", info.SerialNumber)
	fmt.Printf("  Valid From: %s\n", info.NotBefore.Format(time.RFC3339))
	fmt.Printf("  Valid Until: %s\n", info.NotAfter.Format(time.RFC3339))
	if len(info.DNSNames) > 0 {
		fmt.Printf("  SANs (DNS): %v\n", info.DNSNames)
	}
	if len(info.IPAddresses) > 0 {
		fmt.Printf("  SANs (IP): %v\n", info.IPAddresses)
	}

	return nil
}

func readCertificate(path string) (*x509.Certificate, error) {
	certPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("failed to parse certificate PEM")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}
