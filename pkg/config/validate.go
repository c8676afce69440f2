package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "proxy.port").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validateSSL(&cfg.SSL)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateProxy validates proxy configuration.
func validateProxy(cfg *ProxyConfig) []FieldError {
	var errs []FieldError

	if cfg.Name == "" {
		errs = append(errs, FieldError{
			Field:   "proxy.name",
			Message: "name is required",
		})
	}
	if strings.ContainsAny(cfg.Name, "\r\n") {
		errs = append(errs, FieldError{
			Field:   "proxy.name",
			Message: "name must not contain line breaks",
		})
	}

	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, FieldError{
			Field:   "proxy.port",
			Message: fmt.Sprintf("port %d out of range 0-65535", cfg.Port),
		})
	}

	timeouts := []struct {
		field string
		value int64
	}{
		{"proxy.request_timeout", int64(cfg.RequestTimeout)},
		{"proxy.sniff_timeout", int64(cfg.SniffTimeout)},
		{"proxy.handshake_timeout", int64(cfg.HandshakeTimeout)},
		{"proxy.read_header_timeout", int64(cfg.ReadHeaderTimeout)},
		{"proxy.idle_timeout", int64(cfg.IdleTimeout)},
		{"proxy.shutdown_timeout", int64(cfg.ShutdownTimeout)},
	}
	for _, t := range timeouts {
		if t.value <= 0 {
			errs = append(errs, FieldError{
				Field:   t.field,
				Message: "timeout must be positive",
			})
		}
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.MaxHeaderBytes > 10*1024*1024 { // 10MB is excessive
		errs = append(errs, FieldError{
			Field:   "proxy.max_header_bytes",
			Message: "max header bytes exceeds reasonable limit (10MB)",
		})
	}

	if cfg.PingPath != "" && !strings.HasPrefix(cfg.PingPath, "/") {
		errs = append(errs, FieldError{
			Field:   "proxy.ping_path",
			Message: "ping path must start with '/'",
		})
	}

	return errs
}

// validateSSL validates the TLS engine certificate settings.
func validateSSL(cfg *SSLConfig) []FieldError {
	var errs []FieldError

	if cfg.CertPath == "" {
		errs = append(errs, FieldError{
			Field:   "ssl.cert_path",
			Message: "certificate path is required",
		})
	}
	if cfg.KeyPath == "" {
		errs = append(errs, FieldError{
			Field:   "ssl.key_path",
			Message: "key path is required",
		})
	}
	if cfg.MinVersion != "1.2" && cfg.MinVersion != "1.3" {
		errs = append(errs, FieldError{
			Field:   "ssl.min_version",
			Message: fmt.Sprintf("invalid TLS version %q: must be '1.2' or '1.3'", cfg.MinVersion),
		})
	}

	return errs
}

// validateAuth validates client authentication settings.
func validateAuth(cfg *AuthConfig) []FieldError {
	var errs []FieldError

	switch cfg.Type {
	case AuthTypeNone:
	case AuthTypeProxyAuth:
		if cfg.Username == "" {
			errs = append(errs, FieldError{
				Field:   "auth.username",
				Message: "username is required for proxy-auth",
			})
		}
		if strings.Contains(cfg.Username, ":") {
			errs = append(errs, FieldError{
				Field:   "auth.username",
				Message: "username must not contain ':'",
			})
		}
		if cfg.Password == "" {
			errs = append(errs, FieldError{
				Field:   "auth.password",
				Message: "password is required for proxy-auth",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "auth.type",
			Message: fmt.Sprintf("invalid auth type %q: must be 'none' or 'proxy-auth'", cfg.Type),
		})
	}

	return errs
}

// validateCache validates response cache settings. Nothing is checked while
// the cache is disabled.
func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	switch cfg.Type {
	case "memory":
	case "disk":
		if cfg.Disk.Path == "" {
			errs = append(errs, FieldError{
				Field:   "cache.disk.path",
				Message: "database path is required for the disk cache",
			})
		}
		if cfg.Disk.CleanupSchedule != "" {
			if _, err := cron.ParseStandard(cfg.Disk.CleanupSchedule); err != nil {
				errs = append(errs, FieldError{
					Field:   "cache.disk.cleanup_schedule",
					Message: fmt.Sprintf("invalid cron expression: %v", err),
				})
			}
		}
	default:
		errs = append(errs, FieldError{
			Field:   "cache.type",
			Message: fmt.Sprintf("invalid cache type %q: must be 'memory' or 'disk'", cfg.Type),
		})
	}

	if cfg.TTL <= 0 {
		errs = append(errs, FieldError{
			Field:   "cache.ttl",
			Message: "ttl must be positive",
		})
	}
	if cfg.MaxBodyBytes <= 0 {
		errs = append(errs, FieldError{
			Field:   "cache.max_body_bytes",
			Message: "max body bytes must be positive",
		})
	}

	return errs
}

func validateLimits(cfg *LimitsConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	if cfg.RequestsPerSecond <= 0 {
		errs = append(errs, FieldError{
			Field:   "limits.requests_per_second",
			Message: "requests per second must be positive",
		})
	}
	if cfg.Burst < 1 {
		errs = append(errs, FieldError{
			Field:   "limits.burst",
			Message: "burst must be at least 1",
		})
	}
	if cfg.IdleTTL < 0 {
		errs = append(errs, FieldError{
			Field:   "limits.idle_ttl",
			Message: "idle ttl must not be negative",
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	// Validate logging format
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Admin.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Admin.Address); err != nil {
			errs = append(errs, FieldError{
				Field:   "telemetry.admin.address",
				Message: fmt.Sprintf("invalid admin address %q: %v", cfg.Admin.Address, err),
			})
		}
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/'",
		})
	}

	for field, path := range map[string]string{
		"telemetry.health.liveness_path":  cfg.Health.LivenessPath,
		"telemetry.health.readiness_path": cfg.Health.ReadinessPath,
	} {
		if !strings.HasPrefix(path, "/") {
			errs = append(errs, FieldError{
				Field:   field,
				Message: "health path must start with '/'",
			})
		}
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "endpoint is required when tracing is enabled",
			})
		}
		switch cfg.Tracing.Sampler {
		case "always", "never", "ratio":
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
			})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: "sample ratio must be between 0.0 and 1.0",
			})
		}
	}

	return errs
}
