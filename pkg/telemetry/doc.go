// Package telemetry groups the observability packages of the proxy.
//
//   - logging: slog setup with correlation ids and credential redaction
//   - metrics: Prometheus collector fed by the forwarding pipeline
//   - tracing: OpenTelemetry provider and W3C trace context propagation
//   - health: liveness and readiness probes
//
// Metrics and probes are served by the admin server, a plain HTTP server
// separate from the proxy port, configured under telemetry.admin.
package telemetry
