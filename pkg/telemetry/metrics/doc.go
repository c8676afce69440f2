// Package metrics exports Prometheus metrics for the proxy.
//
// A Collector is handed to the forwarding pipeline as its proxy.Recorder and
// to the response cache as its lookup recorder. The server feeds it the
// protocol of every accepted connection and every lifecycle error.
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.TrackActiveTunnels(fwd.ActiveTunnels)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// # Metrics
//
//   - forwarder_connections_total{protocol}
//   - forwarder_errors_total{kind}
//   - forwarder_exchanges_total{protocol,method,outcome,code}
//   - forwarder_exchange_duration_seconds{protocol,outcome}
//   - forwarder_upstream_duration_seconds{protocol}
//   - forwarder_response_size_bytes{protocol}
//   - forwarder_tunnels_total{protocol,outcome}
//   - forwarder_tunnel_duration_seconds{protocol}
//   - forwarder_tunnel_bytes_total{direction}
//   - forwarder_tunnels_active
//   - forwarder_cache_hits_total, forwarder_cache_misses_total
//
// The method label is capped; methods beyond the first 32 seen are reported
// as "other". When metrics are disabled every Record call is a no-op.
package metrics
