package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/forwarder/pkg/config"
)

// ExchangeMetrics tracks requests handled by the forwarding pipeline.
//
// Metrics:
//   - forwarder_exchanges_total: exchanges by protocol, method, outcome and status code
//   - forwarder_exchange_duration_seconds: time spent in the pipeline
//   - forwarder_upstream_duration_seconds: time until the origin sent headers
//   - forwarder_response_size_bytes: body bytes relayed to the client
type ExchangeMetrics struct {
	exchangesTotal   *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
	upstreamDuration *prometheus.HistogramVec
	responseSize     *prometheus.HistogramVec
}

// NewExchangeMetrics creates and registers exchange metrics.
func NewExchangeMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ExchangeMetrics {
	em := &ExchangeMetrics{
		exchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "exchanges_total",
				Help:      "Total number of proxied requests",
			},
			[]string{"protocol", "method", "outcome", "code"},
		),

		exchangeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "exchange_duration_seconds",
				Help:      "Duration of proxied requests in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"protocol", "outcome"},
		),

		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Time until the origin answered with headers in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"protocol"},
		),

		responseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "response_size_bytes",
				Help:      "Size of response bodies relayed to clients",
				Buckets:   prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to 4MB
			},
			[]string{"protocol"},
		),
	}

	registry.MustRegister(
		em.exchangesTotal,
		em.exchangeDuration,
		em.upstreamDuration,
		em.responseSize,
	)

	return em
}

// Record records a finished exchange. Upstream latency is only observed when
// the origin was reached.
func (em *ExchangeMetrics) Record(protocol, method, outcome, code string, latency, upstream time.Duration, bytesWritten int64) {
	em.exchangesTotal.WithLabelValues(protocol, method, outcome, code).Inc()
	em.exchangeDuration.WithLabelValues(protocol, outcome).Observe(latency.Seconds())

	if upstream > 0 {
		em.upstreamDuration.WithLabelValues(protocol).Observe(upstream.Seconds())
	}
	if bytesWritten > 0 {
		em.responseSize.WithLabelValues(protocol).Observe(float64(bytesWritten))
	}
}
