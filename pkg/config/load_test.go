package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
proxy:
  name: edge-proxy
  port: 3128
  request_timeout: 15s
ssl:
  cert_path: /etc/forwarder/tls.crt
  key_path: /etc/forwarder/tls.key
  min_version: "1.3"
auth:
  type: proxy-auth
  username: u
  password: p
telemetry:
  logging:
    level: debug
    format: text
  metrics:
    enabled: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Proxy.Name != "edge-proxy" {
		t.Errorf("name = %q", cfg.Proxy.Name)
	}
	if cfg.Proxy.Port != 3128 {
		t.Errorf("port = %d", cfg.Proxy.Port)
	}
	if cfg.Proxy.RequestTimeout != 15*time.Second {
		t.Errorf("request timeout = %v", cfg.Proxy.RequestTimeout)
	}
	if cfg.Proxy.Host != DefaultHost {
		t.Errorf("host = %q, want default %q", cfg.Proxy.Host, DefaultHost)
	}
	if cfg.SSL.MinVersion != "1.3" {
		t.Errorf("min version = %q", cfg.SSL.MinVersion)
	}
	if cfg.Auth.Type != "proxy-auth" || cfg.Auth.Username != "u" || cfg.Auth.Password != "p" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("metrics.enabled: false was not honored")
	}
	if !cfg.Telemetry.Tracing.Insecure {
		t.Error("tracing.insecure default lost")
	}
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig(\"\") error = %v", err)
	}
	if cfg.Proxy.Port != DefaultPort {
		t.Errorf("port = %d, want %d", cfg.Proxy.Port, DefaultPort)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			content: "proxy: [unclosed",
			wantErr: "failed to parse",
		},
		{
			name: "invalid auth type",
			content: `
auth:
  type: oauth
`,
			wantErr: "auth.type",
		},
		{
			name: "proxy-auth without credentials",
			content: `
auth:
  type: proxy-auth
`,
			wantErr: "auth.username",
		},
		{
			name: "bad duration",
			content: `
proxy:
  request_timeout: soon
`,
			wantErr: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
proxy:
  port: 3128
`)

	t.Setenv("FORWARDER_PROXY_PORT", "9999")
	t.Setenv("FORWARDER_PROXY_NAME", "env-proxy")
	t.Setenv("FORWARDER_PROXY_REQUEST_TIMEOUT", "45s")
	t.Setenv("FORWARDER_AUTH_TYPE", "proxy-auth")
	t.Setenv("FORWARDER_AUTH_USERNAME", "u")
	t.Setenv("FORWARDER_AUTH_PASSWORD", "p")
	t.Setenv("FORWARDER_CACHE_ENABLED", "true")
	t.Setenv("FORWARDER_LOG_LEVEL", "warn")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}

	if cfg.Proxy.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Proxy.Port)
	}
	if cfg.Proxy.Name != "env-proxy" {
		t.Errorf("name = %q", cfg.Proxy.Name)
	}
	if cfg.Proxy.RequestTimeout != 45*time.Second {
		t.Errorf("request timeout = %v", cfg.Proxy.RequestTimeout)
	}
	if cfg.Auth.Type != "proxy-auth" || cfg.Auth.Username != "u" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if !cfg.Cache.Enabled {
		t.Error("cache not enabled by env")
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("log level = %q", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidValueIgnored(t *testing.T) {
	path := writeConfig(t, `
proxy:
  port: 3128
`)
	t.Setenv("FORWARDER_PROXY_PORT", "not-a-port")
	t.Setenv("FORWARDER_CACHE_ENABLED", "maybe")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}
	if cfg.Proxy.Port != 3128 {
		t.Errorf("port = %d, want 3128", cfg.Proxy.Port)
	}
	if cfg.Cache.Enabled {
		t.Error("invalid boolean override applied")
	}
}

func TestResolvePath(t *testing.T) {
	t.Run("explicit wins", func(t *testing.T) {
		t.Setenv("FORWARDER_CONFIG", "/from/env.yaml")
		if got := ResolvePath("/from/flag.yaml"); got != "/from/flag.yaml" {
			t.Errorf("ResolvePath() = %q", got)
		}
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("FORWARDER_CONFIG", "/from/env.yaml")
		if got := ResolvePath(""); got != "/from/env.yaml" {
			t.Errorf("ResolvePath() = %q", got)
		}
	})

	t.Run("defaults only", func(t *testing.T) {
		t.Setenv("FORWARDER_CONFIG", "")
		t.Chdir(t.TempDir())
		if got := ResolvePath(""); got != "" {
			t.Errorf("ResolvePath() = %q, want empty", got)
		}
	})

	t.Run("local config.yaml", func(t *testing.T) {
		t.Setenv("FORWARDER_CONFIG", "")
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, DefaultPath), []byte("proxy: {}\n"), 0644); err != nil {
			t.Fatal(err)
		}
		t.Chdir(dir)
		if got := ResolvePath(""); got != DefaultPath {
			t.Errorf("ResolvePath() = %q, want %q", got, DefaultPath)
		}
	})
}
