package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/forwarder/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "forwarder",
	Short: "Forwarder - transparent HTTP and HTTPS forward proxy",
	Long: `Forwarder is a forward proxy that serves plain HTTP and HTTPS on a
single port.

CONNECT tunnels are looped back into the proxy's own listener, so TLS
sessions are terminated with the configured certificate and every request
passes through the same middleware pipeline:
  - Proxy authentication (Basic)
  - Response caching (memory, disk or sqlite)
  - Prometheus metrics, health probes and OpenTelemetry tracing

When no --config is given, the path is taken from FORWARDER_CONFIG or
config.yaml in the working directory; defaults apply when neither exists.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the code matching the error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
}
