// Package tracing sets up OpenTelemetry tracing for the proxy.
//
// The forwarding pipeline creates a "proxy.forward" span per request and a
// "proxy.tunnel" span per CONNECT session with the tracer returned by
// Tracer.Tracer. Outbound requests carry the span as a traceparent header.
// Wrapping the engine handlers with HTTPMiddleware makes those spans children
// of the trace a client sent.
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
// Spans are exported over OTLP gRPC to telemetry.tracing.endpoint. Sampling
// is "always", "never" or "ratio" with telemetry.tracing.sample_ratio, and
// always honors the sampling decision of an incoming parent.
package tracing
