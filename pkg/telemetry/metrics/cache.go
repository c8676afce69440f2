package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/forwarder/pkg/config"
)

// CacheMetrics tracks response cache lookups.
//
// Hit rate in PromQL:
//
//	rate(forwarder_cache_hits_total[5m]) /
//	(rate(forwarder_cache_hits_total[5m]) + rate(forwarder_cache_misses_total[5m]))
type CacheMetrics struct {
	hitsTotal   prometheus.Counter
	missesTotal prometheus.Counter
}

// NewCacheMetrics creates and registers cache metrics.
func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		hitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of response cache hits",
		}),
		missesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of response cache misses",
		}),
	}

	registry.MustRegister(cm.hitsTotal, cm.missesTotal)

	return cm
}

// RecordHit records a cache hit.
func (cm *CacheMetrics) RecordHit() {
	cm.hitsTotal.Inc()
}

// RecordMiss records a cache miss.
func (cm *CacheMetrics) RecordMiss() {
	cm.missesTotal.Inc()
}
