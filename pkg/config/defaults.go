package config

import (
	"reflect"
	"time"

	"dario.cat/mergo"
)

// Default values for configuration fields.
const (
	// Proxy defaults
	DefaultName              = "forwarder"
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 8080
	DefaultRequestTimeout    = 30 * time.Second
	DefaultSniffTimeout      = 10 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultMaxHeaderBytes    = 1048576 // 1MB
	DefaultShutdownTimeout   = 30 * time.Second

	// SSL defaults
	DefaultCertPath   = "cert/localhost.crt"
	DefaultKeyPath    = "cert/localhost.key"
	DefaultMinVersion = "1.2"

	// Auth defaults
	DefaultAuthType = AuthTypeNone

	// Cache defaults
	DefaultCacheType            = "memory"
	DefaultCacheTTL             = 5 * time.Minute
	DefaultCacheMaxBodyBytes    = int64(1048576)
	DefaultCacheCleanupInterval = 10 * time.Minute
	DefaultCacheDiskPath        = "data/cache.db"
	DefaultCacheCleanupSchedule = "@every 10m"

	// Limits defaults
	DefaultLimitsRequestsPerSecond = 50.0
	DefaultLimitsBurst             = 100
	DefaultLimitsIdleTTL           = 10 * time.Minute

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultAdminAddress       = "127.0.0.1:9090"
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "forwarder"
	DefaultLivenessPath       = "/health"
	DefaultReadinessPath      = "/ready"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingInsecure    = true
	DefaultTracingTimeout     = 10 * time.Second
	DefaultTracingSampler     = "always"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingServiceName = "forwarder"
)

// Auth types.
const (
	AuthTypeNone      = "none"
	AuthTypeProxyAuth = "proxy-auth"
)

// DefaultRequestDurationBuckets are the latency histogram buckets in seconds.
var DefaultRequestDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Defaults returns a configuration holding every default value.
func Defaults() *Config {
	return &Config{
		Proxy: ProxyConfig{
			Name:              DefaultName,
			Host:              DefaultHost,
			Port:              DefaultPort,
			RequestTimeout:    DefaultRequestTimeout,
			SniffTimeout:      DefaultSniffTimeout,
			HandshakeTimeout:  DefaultHandshakeTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			MaxHeaderBytes:    DefaultMaxHeaderBytes,
			ShutdownTimeout:   DefaultShutdownTimeout,
		},
		SSL: SSLConfig{
			CertPath:   DefaultCertPath,
			KeyPath:    DefaultKeyPath,
			MinVersion: DefaultMinVersion,
		},
		Auth: AuthConfig{
			Type: DefaultAuthType,
		},
		Cache: CacheConfig{
			Type:            DefaultCacheType,
			TTL:             DefaultCacheTTL,
			MaxBodyBytes:    DefaultCacheMaxBodyBytes,
			CleanupInterval: DefaultCacheCleanupInterval,
			Disk: DiskCacheConfig{
				Path:            DefaultCacheDiskPath,
				CleanupSchedule: DefaultCacheCleanupSchedule,
			},
		},
		Limits: LimitsConfig{
			RequestsPerSecond: DefaultLimitsRequestsPerSecond,
			Burst:             DefaultLimitsBurst,
			IdleTTL:           DefaultLimitsIdleTTL,
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{
				Level:  DefaultLoggingLevel,
				Format: DefaultLoggingFormat,
			},
			Admin: AdminConfig{
				Address: DefaultAdminAddress,
			},
			Metrics: MetricsConfig{
				Enabled:                DefaultMetricsEnabled,
				Path:                   DefaultMetricsPath,
				Namespace:              DefaultMetricsNamespace,
				RequestDurationBuckets: append([]float64(nil), DefaultRequestDurationBuckets...),
			},
			Health: HealthConfig{
				LivenessPath:  DefaultLivenessPath,
				ReadinessPath: DefaultReadinessPath,
			},
			Tracing: TracingConfig{
				Endpoint:    DefaultTracingEndpoint,
				Insecure:    DefaultTracingInsecure,
				Timeout:     DefaultTracingTimeout,
				Sampler:     DefaultTracingSampler,
				SampleRatio: DefaultTracingSampleRatio,
				ServiceName: DefaultTracingServiceName,
			},
		},
	}
}

// ApplyDefaults fills every zero-valued field of cfg with its default.
// Boolean fields are left as they are, since false cannot be told apart from
// unset; Load starts from Defaults so file and env values win.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	// Merge only fails for mismatched types, which cannot happen here.
	_ = mergo.Merge(cfg, Defaults(), mergo.WithTransformers(keepBools{}))
}

// keepBools stops mergo from replacing explicit false values.
type keepBools struct{}

func (keepBools) Transformer(typ reflect.Type) func(dst, src reflect.Value) error {
	if typ.Kind() == reflect.Bool {
		return func(dst, src reflect.Value) error { return nil }
	}
	return nil
}
