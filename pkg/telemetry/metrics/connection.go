package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/forwarder/pkg/config"
)

// ConnectionMetrics tracks accepted connections, lifecycle errors and
// rate limited clients.
type ConnectionMetrics struct {
	acceptedTotal    *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	rateLimitedTotal *prometheus.CounterVec
}

// NewConnectionMetrics creates and registers connection metrics.
func NewConnectionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ConnectionMetrics {
	cm := &ConnectionMetrics{
		acceptedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "connections_total",
				Help:      "Accepted connections by detected protocol",
			},
			[]string{"protocol"},
		),

		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "errors_total",
				Help:      "Errors reported by the server, by kind",
			},
			[]string{"kind"},
		),

		rateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "rate_limited_total",
				Help:      "Requests refused by the rate limiter, by chain",
			},
			[]string{"chain"},
		),
	}

	registry.MustRegister(cm.acceptedTotal, cm.errorsTotal, cm.rateLimitedTotal)

	return cm
}

// RecordAccepted counts a classified connection.
func (cm *ConnectionMetrics) RecordAccepted(protocol string) {
	cm.acceptedTotal.WithLabelValues(protocol).Inc()
}

// RecordError counts a lifecycle error.
func (cm *ConnectionMetrics) RecordError(kind string) {
	cm.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordRateLimited counts a refused request.
func (cm *ConnectionMetrics) RecordRateLimited(chain string) {
	cm.rateLimitedTotal.WithLabelValues(chain).Inc()
}
