package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"mercator-hq/forwarder/pkg/cli"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func runConfigCommand(t *testing.T, cmd *cobra.Command, fn func(*cobra.Command, []string) error, path string) (string, error) {
	t.Helper()

	orig := cfgFile
	t.Cleanup(func() {
		cfgFile = orig
		cmd.SetOut(nil)
	})
	cfgFile = path

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	err := fn(cmd, nil)
	return buf.String(), err
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantErr  bool
		contains []string
	}{
		{
			name: "valid",
			body: `
proxy:
  port: 3128
auth:
  type: proxy-auth
  username: alice
  password: secret
`,
			contains: []string{"is valid"},
		},
		{
			name: "invalid fields",
			body: `
proxy:
  port: 70000
auth:
  type: ldap
`,
			wantErr:  true,
			contains: []string{"is invalid", "proxy.port", "auth.type"},
		},
		{
			name:     "malformed yaml",
			body:     "proxy: [",
			wantErr:  true,
			contains: []string{"is invalid"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runConfigCommand(t, configValidateCmd, validateConfig, writeConfig(t, tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && cli.ExitCode(err) != cli.ExitConfig {
				t.Errorf("ExitCode() = %d, want %d", cli.ExitCode(err), cli.ExitConfig)
			}
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestConfigShow(t *testing.T) {
	path := writeConfig(t, `
proxy:
  port: 3128
auth:
  type: proxy-auth
  username: alice
  password: s3cr3t-value
`)

	out, err := runConfigCommand(t, configShowCmd, showConfig, path)
	if err != nil {
		t.Fatalf("showConfig() error = %v", err)
	}

	if !strings.Contains(out, "port: 3128") {
		t.Errorf("output missing overridden port:\n%s", out)
	}
	if !strings.Contains(out, "username: alice") {
		t.Errorf("output missing username:\n%s", out)
	}
	if strings.Contains(out, "s3cr3t-value") {
		t.Errorf("password not redacted:\n%s", out)
	}
	if !strings.Contains(out, redacted) {
		t.Errorf("output missing redaction marker:\n%s", out)
	}
}
