package config

import (
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("Validate(Defaults()) error = %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Proxy.Port = 3128
	cfg.Proxy.RequestTimeout = 5 * time.Second
	cfg.Auth.Type = "proxy-auth"

	ApplyDefaults(cfg)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"explicit port kept", cfg.Proxy.Port, 3128},
		{"explicit timeout kept", cfg.Proxy.RequestTimeout, 5 * time.Second},
		{"explicit auth kept", cfg.Auth.Type, "proxy-auth"},
		{"name filled", cfg.Proxy.Name, DefaultName},
		{"host filled", cfg.Proxy.Host, DefaultHost},
		{"sniff timeout filled", cfg.Proxy.SniffTimeout, DefaultSniffTimeout},
		{"cert filled", cfg.SSL.CertPath, DefaultCertPath},
		{"cache type filled", cfg.Cache.Type, DefaultCacheType},
		{"log level filled", cfg.Telemetry.Logging.Level, DefaultLoggingLevel},
		{"sampler filled", cfg.Telemetry.Tracing.Sampler, DefaultTracingSampler},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	if len(cfg.Telemetry.Metrics.RequestDurationBuckets) != len(DefaultRequestDurationBuckets) {
		t.Errorf("buckets = %v", cfg.Telemetry.Metrics.RequestDurationBuckets)
	}
}

func TestApplyDefaultsKeepsFalseBooleans(t *testing.T) {
	cfg := Defaults()
	cfg.Telemetry.Metrics.Enabled = false
	cfg.Telemetry.Tracing.Insecure = false

	ApplyDefaults(cfg)

	if cfg.Telemetry.Metrics.Enabled {
		t.Error("metrics.enabled reset to true")
	}
	if cfg.Telemetry.Tracing.Insecure {
		t.Error("tracing.insecure reset to true")
	}
}

func TestApplyDefaultsNil(t *testing.T) {
	ApplyDefaults(nil)
}

func TestProxyAddress(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"0.0.0.0", 8080, "0.0.0.0:8080"},
		{"::", 3128, "[::]:3128"},
		{"127.0.0.1", 0, "127.0.0.1:0"},
	}
	for _, tt := range tests {
		p := ProxyConfig{Host: tt.host, Port: tt.port}
		if got := p.Address(); got != tt.want {
			t.Errorf("Address() = %q, want %q", got, tt.want)
		}
	}
}
