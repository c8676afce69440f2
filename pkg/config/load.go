package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "FORWARDER_"

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "config.yaml"

// ResolvePath picks the configuration file: the explicit path if set, else
// FORWARDER_CONFIG, else DefaultPath when it exists. An empty result means
// defaults only.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return ""
}

// LoadConfig loads configuration from a YAML file at the specified path.
// Values missing from the file keep their defaults. An empty path yields the
// defaults. The result is validated; environment variables are not applied.
func LoadConfig(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration like LoadConfig and applies
// FORWARDER_* environment overrides before validating.
//
// The loading sequence is:
// 1. Default values
// 2. Values from the YAML file
// 3. Environment variable overrides
// 4. Validation
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) || path != DefaultPath {
				return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies FORWARDER_* environment variables. Values that
// cannot be parsed are logged and ignored.
func applyEnvOverrides(cfg *Config) {
	envString("PROXY_NAME", &cfg.Proxy.Name)
	envString("PROXY_HOST", &cfg.Proxy.Host)
	envInt("PROXY_PORT", &cfg.Proxy.Port)
	envDuration("PROXY_REQUEST_TIMEOUT", &cfg.Proxy.RequestTimeout)
	envString("PROXY_PING_PATH", &cfg.Proxy.PingPath)

	envString("SSL_CERT_PATH", &cfg.SSL.CertPath)
	envString("SSL_KEY_PATH", &cfg.SSL.KeyPath)
	envBool("SSL_WATCH", &cfg.SSL.Watch)

	envString("AUTH_TYPE", &cfg.Auth.Type)
	envString("AUTH_USERNAME", &cfg.Auth.Username)
	envString("AUTH_PASSWORD", &cfg.Auth.Password)
	envString("AUTH_SECRETS_DIR", &cfg.Auth.SecretsDir)

	envBool("UPSTREAM_INSECURE_SKIP_VERIFY", &cfg.Upstream.InsecureSkipVerify)
	envString("UPSTREAM_CA_FILE", &cfg.Upstream.CAFile)

	envBool("CACHE_ENABLED", &cfg.Cache.Enabled)
	envString("CACHE_TYPE", &cfg.Cache.Type)
	envDuration("CACHE_TTL", &cfg.Cache.TTL)
	envString("CACHE_DISK_PATH", &cfg.Cache.Disk.Path)

	envBool("LIMITS_ENABLED", &cfg.Limits.Enabled)
	envFloat("LIMITS_REQUESTS_PER_SECOND", &cfg.Limits.RequestsPerSecond)
	envInt("LIMITS_BURST", &cfg.Limits.Burst)

	envString("LOG_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("LOG_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("ADMIN_ENABLED", &cfg.Telemetry.Admin.Enabled)
	envString("ADMIN_ADDRESS", &cfg.Telemetry.Admin.Address)
	envBool("METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envBool("TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envFloat("TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)
}

func lookupEnv(name string) (string, bool) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func envString(name string, dst *string) {
	if val, ok := lookupEnv(name); ok {
		*dst = val
	}
}

func envInt(name string, dst *int) {
	if val, ok := lookupEnv(name); ok {
		i, err := strconv.Atoi(val)
		if err != nil {
			slog.Warn("ignoring invalid environment override", "variable", EnvPrefix+name, "error", err)
			return
		}
		*dst = i
	}
}

func envBool(name string, dst *bool) {
	if val, ok := lookupEnv(name); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			slog.Warn("ignoring invalid environment override", "variable", EnvPrefix+name, "error", err)
			return
		}
		*dst = b
	}
}

func envFloat(name string, dst *float64) {
	if val, ok := lookupEnv(name); ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			slog.Warn("ignoring invalid environment override", "variable", EnvPrefix+name, "error", err)
			return
		}
		*dst = f
	}
}

func envDuration(name string, dst *time.Duration) {
	if val, ok := lookupEnv(name); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			slog.Warn("ignoring invalid environment override", "variable", EnvPrefix+name, "error", err)
			return
		}
		*dst = d
	}
}
