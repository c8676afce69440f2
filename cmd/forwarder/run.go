package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"mercator-hq/forwarder/pkg/cli"
	"mercator-hq/forwarder/pkg/config"
	"mercator-hq/forwarder/pkg/server"
	"mercator-hq/forwarder/pkg/telemetry/logging"
	"mercator-hq/forwarder/pkg/telemetry/tracing"
)

// tracerShutdownTimeout bounds the final span flush.
const tracerShutdownTimeout = 5 * time.Second

var runFlags struct {
	host     string
	port     int
	logLevel string
	dryRun   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the forward proxy",
	Long: `Start the forward proxy with the specified configuration.

The proxy serves plain HTTP and intercepted HTTPS on one port. SIGINT or
SIGTERM start a graceful shutdown bounded by proxy.shutdown_timeout; a
second signal exits immediately. SIGHUP reloads the TLS certificate.

Examples:
  # Start with default config
  forwarder run

  # Start with custom config
  forwarder run --config /etc/forwarder/config.yaml

  # Override the listen port
  forwarder run --port 3128

  # Validate config without starting the proxy
  forwarder run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.host, "host", "", "override listen host")
	runCmd.Flags().IntVarP(&runFlags.port, "port", "p", 0, "override listen port")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the proxy")
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	cfg, err := applyRunFlags(cmd, config.MustGetConfig())
	if err != nil {
		return err
	}

	if _, err := logging.Setup(logging.FromConfig(cfg.Telemetry.Logging, os.Stdout)); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	printBanner(cfg)

	if runFlags.dryRun {
		fmt.Println("✓ Dry run complete, configuration is valid")
		return nil
	}

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewConfigError("telemetry.tracing", err.Error())
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
		defer cancel()
		if err := tracer.Shutdown(ctx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := server.New(cfg, server.Options{
		Version:  versionInfo(),
		Tracer:   tracer.Tracer(),
		Registry: registry,
	})
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	ctx := cli.SetupSignalHandler()
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println()
	fmt.Printf("✓ Proxy listening on %s\n", srv.Addr())
	if addr := srv.AdminAddr(); addr != nil {
		fmt.Printf("✓ Health endpoint: http://%s%s\n", addr, cfg.Telemetry.Health.LivenessPath)
		if cfg.Telemetry.Metrics.Enabled {
			fmt.Printf("✓ Metrics endpoint: http://%s%s\n", addr, cfg.Telemetry.Metrics.Path)
		}
	}
	fmt.Println("\nPress Ctrl+C to stop")

	reload, stopReload := cli.ReloadSignals()
	defer stopReload()

wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-reload:
			if err := srv.ReloadCertificate(); err != nil {
				slog.Error("certificate reload failed, keeping current certificate", "error", err)
			}
		}
	}

	fmt.Println("\nShutting down gracefully...")
	if err := srv.Shutdown(context.Background()); err != nil {
		slog.Error("shutdown failed", "error", err)
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Proxy stopped")
	return nil
}

// applyRunFlags returns a copy of cfg with the command line overrides
// applied, validated again when anything changed.
func applyRunFlags(cmd *cobra.Command, base *config.Config) (*config.Config, error) {
	cfg := *base
	changed := false

	if cmd != nil && cmd.Flags().Changed("host") {
		cfg.Proxy.Host = runFlags.host
		changed = true
	}
	if cmd != nil && cmd.Flags().Changed("port") {
		cfg.Proxy.Port = runFlags.port
		changed = true
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
		changed = true
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
		changed = true
	}

	if changed {
		if err := config.Validate(&cfg); err != nil {
			return nil, cli.NewConfigError("", err.Error())
		}
	}
	return &cfg, nil
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Forwarder v%s\n", Version)
	if path := config.Path(); path != "" {
		fmt.Printf("Loading configuration from: %s\n", path)
	} else {
		fmt.Println("No configuration file found, using defaults")
	}
	fmt.Println("✓ Configuration loaded")

	slog.Debug("proxy configured",
		"address", cfg.Proxy.Address(),
		"name", cfg.Proxy.Name,
		"auth", cfg.Auth.Type,
		"cache", cfg.Cache.Enabled,
		"tracing", cfg.Telemetry.Tracing.Enabled,
	)
	if cfg.Cache.Enabled {
		slog.Debug("response cache enabled", "type", cfg.Cache.Type, "ttl", cfg.Cache.TTL)
	}
}
