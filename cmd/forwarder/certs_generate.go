package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/forwarder/pkg/cli"
	"mercator-hq/forwarder/pkg/config"
	tlsutil "mercator-hq/forwarder/pkg/security/tls"
)

var generateFlags struct {
	hosts    string
	org      string
	validity int
	certFile string
	keyFile  string
}

var certsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate self-signed certificate",
	Long: `Generate a self-signed ECDSA certificate and private key.

The certificate is its own CA, so clients can trust it directly. The key
file is written with 0600 permissions.

⚠️  WARNING: clients that trust this certificate let the proxy read all of
   their HTTPS traffic. Keep the key private.

Examples:
  # Generate the default pair under cert/
  forwarder certs generate

  # Generate for several names
  forwarder certs generate --host "localhost,127.0.0.1,proxy.local"

  # Custom location and validity
  forwarder certs generate --cert /etc/forwarder/proxy.crt \
    --key /etc/forwarder/proxy.key --validity 90`,
	RunE: generateCertificate,
}

func init() {
	certsCmd.AddCommand(certsGenerateCmd)

	certsGenerateCmd.Flags().StringVar(&generateFlags.hosts, "host", "localhost,127.0.0.1", "comma-separated hostnames and IPs")
	certsGenerateCmd.Flags().StringVar(&generateFlags.org, "org", "Forwarder", "organization name")
	certsGenerateCmd.Flags().IntVar(&generateFlags.validity, "validity", 365, "validity in days")
	certsGenerateCmd.Flags().StringVar(&generateFlags.certFile, "cert", config.DefaultCertPath, "certificate output file")
	certsGenerateCmd.Flags().StringVar(&generateFlags.keyFile, "key", config.DefaultKeyPath, "private key output file")
}

func generateCertificate(cmd *cobra.Command, args []string) error {
	if generateFlags.validity <= 0 {
		return cli.NewConfigError("validity", fmt.Sprintf("must be positive, got %d", generateFlags.validity))
	}

	var hosts []string
	for _, h := range strings.Split(generateFlags.hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	if len(hosts) == 0 {
		return cli.NewConfigError("host", "at least one host is required")
	}

	opts := tlsutil.SelfSignedOptions{
		Hosts:        hosts,
		Organization: generateFlags.org,
		Validity:     time.Duration(generateFlags.validity) * 24 * time.Hour,
	}
	if err := tlsutil.WriteSelfSigned(generateFlags.certFile, generateFlags.keyFile, opts); err != nil {
		return cli.NewCommandError("certs generate", err)
	}

	fmt.Println("✓ Certificate generated")
	fmt.Printf("  Certificate: %s\n", generateFlags.certFile)
	fmt.Printf("  Private key: %s\n", generateFlags.keyFile)
	fmt.Printf("  Hosts:       %s\n", strings.Join(hosts, ", "))
	fmt.Printf("  Valid for:   %d days\n", generateFlags.validity)
	return nil
}
