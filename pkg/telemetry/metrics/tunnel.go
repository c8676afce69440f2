package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/forwarder/pkg/config"
)

// TunnelMetrics tracks CONNECT sessions.
//
// Metrics:
//   - forwarder_tunnels_total: tunnels by protocol and outcome
//   - forwarder_tunnel_duration_seconds: lifetime of tunnels
//   - forwarder_tunnel_bytes_total: bytes spliced, by direction
//   - forwarder_tunnels_active: currently open tunnels
type TunnelMetrics struct {
	tunnelsTotal   *prometheus.CounterVec
	tunnelDuration *prometheus.HistogramVec
	bytesTotal     *prometheus.CounterVec
	active         prometheus.GaugeFunc
}

// NewTunnelMetrics creates and registers tunnel metrics.
func NewTunnelMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *TunnelMetrics {
	tm := &TunnelMetrics{
		tunnelsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "tunnels_total",
				Help:      "Total number of CONNECT tunnels",
			},
			[]string{"protocol", "outcome"},
		),

		tunnelDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "tunnel_duration_seconds",
				Help:      "Lifetime of CONNECT tunnels in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8), // 100ms to ~27m
			},
			[]string{"protocol"},
		),

		bytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "tunnel_bytes_total",
				Help:      "Bytes spliced through CONNECT tunnels",
			},
			[]string{"direction"},
		),
	}

	registry.MustRegister(
		tm.tunnelsTotal,
		tm.tunnelDuration,
		tm.bytesTotal,
	)

	return tm
}

// Record records a finished tunnel. in counts bytes from the client, out
// bytes to it.
func (tm *TunnelMetrics) Record(protocol, outcome string, duration time.Duration, in, out int64) {
	tm.tunnelsTotal.WithLabelValues(protocol, outcome).Inc()
	tm.tunnelDuration.WithLabelValues(protocol).Observe(duration.Seconds())

	if in > 0 {
		tm.bytesTotal.WithLabelValues("in").Add(float64(in))
	}
	if out > 0 {
		tm.bytesTotal.WithLabelValues("out").Add(float64(out))
	}
}

func (tm *TunnelMetrics) trackActive(cfg *config.MetricsConfig, registry *prometheus.Registry, fn func() int) {
	tm.active = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "tunnels_active",
			Help:      "Number of open CONNECT tunnels",
		},
		func() float64 { return float64(fn()) },
	)
	registry.MustRegister(tm.active)
}
