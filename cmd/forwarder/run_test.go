package main

import (
	"testing"

	"github.com/spf13/cobra"

	"mercator-hq/forwarder/pkg/cli"
	"mercator-hq/forwarder/pkg/config"
)

func newRunFlagsCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().StringVar(&runFlags.host, "host", "", "")
	cmd.Flags().IntVarP(&runFlags.port, "port", "p", 0, "")
	return cmd
}

func TestApplyRunFlags(t *testing.T) {
	t.Cleanup(func() {
		runFlags.host = ""
		runFlags.port = 0
		runFlags.logLevel = ""
		verbose = false
	})

	tests := []struct {
		name      string
		args      map[string]string
		logLevel  string
		verbose   bool
		wantErr   bool
		wantHost  string
		wantPort  int
		wantLevel string
	}{
		{
			name:      "no overrides",
			wantHost:  config.DefaultHost,
			wantPort:  config.DefaultPort,
			wantLevel: config.DefaultLoggingLevel,
		},
		{
			name:      "port zero picks an ephemeral port",
			args:      map[string]string{"port": "0"},
			wantHost:  config.DefaultHost,
			wantPort:  0,
			wantLevel: config.DefaultLoggingLevel,
		},
		{
			name:      "host and port",
			args:      map[string]string{"host": "127.0.0.1", "port": "3128"},
			wantHost:  "127.0.0.1",
			wantPort:  3128,
			wantLevel: config.DefaultLoggingLevel,
		},
		{
			name:      "log level",
			logLevel:  "warn",
			wantHost:  config.DefaultHost,
			wantPort:  config.DefaultPort,
			wantLevel: "warn",
		},
		{
			name:      "verbose wins over log level",
			logLevel:  "warn",
			verbose:   true,
			wantHost:  config.DefaultHost,
			wantPort:  config.DefaultPort,
			wantLevel: "debug",
		},
		{
			name:    "port out of range",
			args:    map[string]string{"port": "70000"},
			wantErr: true,
		},
		{
			name:     "invalid log level",
			logLevel: "chatty",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRunFlagsCommand()
			for name, value := range tt.args {
				if err := cmd.Flags().Set(name, value); err != nil {
					t.Fatalf("Set(%q) error = %v", name, err)
				}
			}
			runFlags.logLevel = tt.logLevel
			verbose = tt.verbose

			base := config.Defaults()
			cfg, err := applyRunFlags(cmd, base)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				if cli.ExitCode(err) != cli.ExitConfig {
					t.Errorf("ExitCode() = %d, want %d", cli.ExitCode(err), cli.ExitConfig)
				}
				return
			}
			if err != nil {
				t.Fatalf("applyRunFlags() error = %v", err)
			}

			if cfg.Proxy.Host != tt.wantHost {
				t.Errorf("Host = %q, want %q", cfg.Proxy.Host, tt.wantHost)
			}
			if cfg.Proxy.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", cfg.Proxy.Port, tt.wantPort)
			}
			if cfg.Telemetry.Logging.Level != tt.wantLevel {
				t.Errorf("Level = %q, want %q", cfg.Telemetry.Logging.Level, tt.wantLevel)
			}
			if base.Proxy.Port != config.DefaultPort {
				t.Error("applyRunFlags() modified the shared configuration")
			}
		})
	}
}
