package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the root configuration structure for the forwarder.
type Config struct {
	// Proxy contains the listener, engine timeouts and identity of the proxy.
	Proxy ProxyConfig `yaml:"proxy"`

	// SSL contains the certificate used to terminate intercepted TLS.
	SSL SSLConfig `yaml:"ssl"`

	// Auth selects client authentication.
	Auth AuthConfig `yaml:"auth"`

	// Upstream contains settings for connections to origins.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Cache contains the optional response cache configuration.
	Cache CacheConfig `yaml:"cache"`

	// Limits contains per-client rate limiting.
	Limits LimitsConfig `yaml:"limits"`

	// Telemetry contains configuration for observability including logging,
	// metrics, health checks and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProxyConfig contains configuration for the proxy listener and engines.
type ProxyConfig struct {
	// Name identifies the proxy in Server and Proxy-agent headers.
	// Default: "forwarder"
	Name string `yaml:"name"`

	// Host is the interface to bind.
	// Default: "0.0.0.0"
	Host string `yaml:"host"`

	// Port is the TCP port to bind. Zero picks an ephemeral port.
	// Default: 8080
	Port int `yaml:"port"`

	// RequestTimeout is the idle timeout of every outbound socket, including
	// the loopback leg of CONNECT tunnels.
	// Default: 30s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// SniffTimeout bounds the wait for the first bytes of a connection.
	// Default: 10s
	SniffTimeout time.Duration `yaml:"sniff_timeout"`

	// HandshakeTimeout bounds the TLS handshake of intercepted connections.
	// Default: 10s
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// ReadHeaderTimeout is the time allowed to read request headers.
	// Default: 10s
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// IdleTimeout is the keep-alive timeout of client connections.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// MaxHeaderBytes caps the size of request headers.
	// Default: 1MB
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// PingPath enables the ping answer for GET requests on this path.
	// Empty disables it.
	PingPath string `yaml:"ping_path"`
}

// Address returns the host:port the proxy binds.
func (p ProxyConfig) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// SSLConfig contains the certificate and key of the TLS engine.
type SSLConfig struct {
	// CertPath is the PEM certificate presented to intercepted clients.
	// Default: "cert/localhost.crt"
	CertPath string `yaml:"cert_path"`

	// KeyPath is the PEM private key of CertPath.
	// Default: "cert/localhost.key"
	KeyPath string `yaml:"key_path"`

	// MinVersion is the minimum TLS version: "1.2" or "1.3".
	// Default: "1.2"
	MinVersion string `yaml:"min_version"`

	// Watch reloads the certificate when the files change.
	// Default: false
	Watch bool `yaml:"watch"`
}

// AuthConfig selects client authentication.
type AuthConfig struct {
	// Type is "none" or "proxy-auth".
	// Default: "none"
	Type string `yaml:"type"`

	// Username and Password are required for proxy-auth. Password may be a
	// ${secret:name} reference, resolved from FORWARDER_SECRET_<NAME> or the
	// file name in SecretsDir.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// SecretsDir holds one file per secret, as mounted by Kubernetes.
	// Changes are picked up without a restart.
	SecretsDir string `yaml:"secrets_dir"`
}

// UpstreamConfig contains settings for origin connections.
type UpstreamConfig struct {
	// InsecureSkipVerify disables origin certificate verification.
	// Default: false
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// CAFile adds PEM roots trusted for origin TLS.
	CAFile string `yaml:"ca_file"`
}

// CacheConfig contains response cache configuration.
type CacheConfig struct {
	// Enabled turns the response cache on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Type is the backend: "memory" or "disk".
	// Default: "memory"
	Type string `yaml:"type"`

	// TTL is the lifetime of cached responses.
	// Default: 5m
	TTL time.Duration `yaml:"ttl"`

	// MaxBodyBytes is the largest body stored.
	// Default: 1MB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CleanupInterval is the janitor interval of the memory backend.
	// Default: 10m
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// Disk contains disk backend settings.
	Disk DiskCacheConfig `yaml:"disk"`
}

// LimitsConfig contains per-client rate limiting settings.
type LimitsConfig struct {
	// Enabled turns rate limiting on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// RequestsPerSecond is the sustained rate allowed per client address.
	// Default: 50
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the number of requests a client may send at once.
	// Default: 100
	Burst int `yaml:"burst"`

	// IdleTTL forgets clients silent for this long.
	// Default: 10m
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

// DiskCacheConfig contains the SQLite backend settings.
type DiskCacheConfig struct {
	// Path is the database file.
	// Default: "data/cache.db"
	Path string `yaml:"path"`

	// CleanupSchedule is a cron expression for expired entry removal.
	// Default: "@every 10m"
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Admin contains the admin listener configuration.
	Admin AdminConfig `yaml:"admin"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPatterns contains custom redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// AdminConfig contains the admin listener configuration.
type AdminConfig struct {
	// Enabled starts the admin listener.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Address is the host:port of the admin listener.
	// Default: "127.0.0.1:9090"
	Address string `yaml:"address"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the admin path of the Prometheus endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "forwarder"
	Namespace string `yaml:"namespace"`

	// RequestDurationBuckets defines histogram buckets for exchange latency (seconds).
	// Default: [0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30]
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the collector connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout is the export timeout.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "always"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is the service name in traces.
	// Default: "forwarder"
	ServiceName string `yaml:"service_name"`
}
