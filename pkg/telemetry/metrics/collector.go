package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/forwarder/pkg/config"
	"mercator-hq/forwarder/pkg/proxy"
)

// Lifecycle error kinds counted by RecordLifecycleError.
const (
	ErrorKindRequest   = "request"
	ErrorKindServer    = "server"
	ErrorKindUncaught  = "uncaught"
	ErrorKindHandshake = "handshake"
)

// Collector owns every Prometheus metric of the proxy. It implements
// proxy.Recorder and the lookup recorder of the response cache.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	exchangeMetrics   *ExchangeMetrics
	tunnelMetrics     *TunnelMetrics
	connectionMetrics *ConnectionMetrics
	cacheMetrics      *CacheMetrics

	// methods bounds the method label; clients may send anything.
	methods *CardinalityLimiter

	tunnelGauge sync.Once
}

var _ proxy.Recorder = (*Collector)(nil)

// NewCollector creates a collector registering its metrics with registry.
// A nil registry gets a fresh one.
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	fwd := proxy.New(proxy.Options{Recorder: collector})
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = config.DefaultRequestDurationBuckets
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
		methods:  NewCardinalityLimiter(32),
	}

	c.exchangeMetrics = NewExchangeMetrics(cfg, registry)
	c.tunnelMetrics = NewTunnelMetrics(cfg, registry)
	c.connectionMetrics = NewConnectionMetrics(cfg, registry)
	c.cacheMetrics = NewCacheMetrics(cfg, registry)

	return c
}

// RecordExchange records a finished request of the forwarding pipeline.
func (c *Collector) RecordExchange(m *proxy.ExchangeMetadata) {
	if !c.config.Enabled || m == nil {
		return
	}

	method := m.Method
	if !c.methods.Allow(method) {
		method = "other"
	}

	c.exchangeMetrics.Record(m.Protocol, method, m.Outcome, strconv.Itoa(m.StatusCode),
		m.Latency, m.UpstreamLatency, m.BytesWritten)
}

// RecordTunnel records a finished CONNECT session.
func (c *Collector) RecordTunnel(m *proxy.TunnelMetadata) {
	if !c.config.Enabled || m == nil {
		return
	}

	c.tunnelMetrics.Record(m.Protocol, m.Outcome, m.Duration, m.BytesIn, m.BytesOut)
}

// TrackActiveTunnels exports the value of fn as the open tunnel gauge. Only
// the first call has an effect.
func (c *Collector) TrackActiveTunnels(fn func() int) {
	if !c.config.Enabled {
		return
	}

	c.tunnelGauge.Do(func() {
		c.tunnelMetrics.trackActive(c.config, c.registry, fn)
	})
}

// RecordConnection counts an accepted connection by detected protocol.
func (c *Collector) RecordConnection(protocol string) {
	if !c.config.Enabled {
		return
	}

	c.connectionMetrics.RecordAccepted(protocol)
}

// RecordLifecycleError counts an error reported through the server
// lifecycle events.
func (c *Collector) RecordLifecycleError(kind string) {
	if !c.config.Enabled {
		return
	}

	c.connectionMetrics.RecordError(kind)
}

// RecordRateLimited counts a request refused by the rate limiter in chain
// ("connect" or "request").
func (c *Collector) RecordRateLimited(chain string) {
	if !c.config.Enabled {
		return
	}

	c.connectionMetrics.RecordRateLimited(chain)
}

// RecordCacheLookup counts a response cache lookup.
func (c *Collector) RecordCacheLookup(hit bool) {
	if !c.config.Enabled {
		return
	}

	if hit {
		c.cacheMetrics.RecordHit()
	} else {
		c.cacheMetrics.RecordMiss()
	}
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value may be used as a label value. Known values are
// always allowed; new ones only until the limit is reached.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
