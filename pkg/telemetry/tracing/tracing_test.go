package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/forwarder/pkg/config"
)

// restoreGlobals resets the global provider and propagator after a test.
func restoreGlobals(t *testing.T) {
	t.Helper()
	tp := otel.GetTracerProvider()
	prop := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestNew(t *testing.T) {
	restoreGlobals(t)

	tests := []struct {
		name        string
		config      *config.TracingConfig
		wantErr     bool
		wantEnabled bool
	}{
		{"nil config", nil, true, false},
		{"disabled tracing", &config.TracingConfig{Enabled: false, ServiceName: "test"}, false, false},
		{"otlp exporter", &config.TracingConfig{
			Enabled:     true,
			Endpoint:    "127.0.0.1:4317",
			Insecure:    true,
			Timeout:     time.Second,
			Sampler:     SamplerRatio,
			SampleRatio: 0.5,
			ServiceName: "test",
		}, false, true},
		{"invalid sampler", &config.TracingConfig{
			Enabled:  true,
			Endpoint: "127.0.0.1:4317",
			Insecure: true,
			Sampler:  "sometimes",
		}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, err := New(tt.config, "test")
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			defer tracer.Shutdown(ctx)

			if tracer.Enabled() != tt.wantEnabled {
				t.Errorf("Enabled() = %v, want %v", tracer.Enabled(), tt.wantEnabled)
			}
			if tracer.Tracer() == nil {
				t.Error("Tracer() returned nil")
			}
		})
	}
}

func TestDisabledTracerIsNoop(t *testing.T) {
	tracer, err := New(&config.TracingConfig{}, "test")
	if err != nil {
		t.Fatal(err)
	}

	_, span := tracer.Start(context.Background(), "op")
	defer span.End()

	if span.SpanContext().IsValid() {
		t.Error("disabled tracer produced a valid span")
	}
	if err := tracer.ForceFlush(context.Background()); err != nil {
		t.Errorf("ForceFlush() = %v", err)
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() = %v", err)
	}
}

func TestNewWithExporter(t *testing.T) {
	restoreGlobals(t)

	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewWithExporter(&config.TracingConfig{
		Enabled:     true,
		Sampler:     SamplerAlways,
		ServiceName: "forwarder-test",
	}, "1.0.0", exporter)
	if err != nil {
		t.Fatal(err)
	}
	defer tracer.Shutdown(context.Background())

	_, span := tracer.Start(context.Background(), "proxy.forward")
	span.End()

	if err := tracer.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush() = %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	if spans[0].Name != "proxy.forward" {
		t.Errorf("span name = %q", spans[0].Name)
	}

	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	if service != "forwarder-test" {
		t.Errorf("service.name = %q, want forwarder-test", service)
	}

	if otel.GetTracerProvider() != trace.TracerProvider(tracer.provider) {
		t.Error("global tracer provider not installed")
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{"always sampler", SamplerAlways, 0, false},
		{"default sampler", "", 0, false},
		{"never sampler", SamplerNever, 0, false},
		{"ratio 0%", SamplerRatio, 0, false},
		{"ratio 100%", SamplerRatio, 1, false},
		{"ratio negative", SamplerRatio, -0.1, true},
		{"ratio above one", SamplerRatio, 1.5, true},
		{"unknown strategy", "unknown", 0.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler, err := newSampler(&config.TracingConfig{Sampler: tt.strategy, SampleRatio: tt.ratio})
			if (err != nil) != tt.wantErr {
				t.Fatalf("newSampler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && sampler == nil {
				t.Error("newSampler() returned nil sampler")
			}
		})
	}
}

func TestSamplerDecisions(t *testing.T) {
	tests := []struct {
		strategy string
		want     bool
	}{
		{SamplerAlways, true},
		{SamplerNever, false},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			sampler, err := newSampler(&config.TracingConfig{Sampler: tt.strategy})
			if err != nil {
				t.Fatal(err)
			}
			provider := sdktrace.NewTracerProvider(sdktrace.WithSampler(sampler))
			defer provider.Shutdown(context.Background())

			_, span := provider.Tracer("test").Start(context.Background(), "op")
			defer span.End()

			if span.SpanContext().IsSampled() != tt.want {
				t.Errorf("sampled = %v, want %v", span.SpanContext().IsSampled(), tt.want)
			}
		})
	}
}

func TestHTTPMiddlewareExtractsParent(t *testing.T) {
	restoreGlobals(t)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	var got trace.SpanContext
	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = trace.SpanContextFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !got.IsRemote() || got.TraceID().String() != traceID {
		t.Errorf("extracted span context = %+v", got)
	}
}

func TestInjectExtractRoundTrip(t *testing.T) {
	restoreGlobals(t)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a},
		SpanID:     trace.SpanID{0x0b},
		TraceFlags: trace.FlagsSampled,
	})
	headers := http.Header{}
	Inject(trace.ContextWithSpanContext(context.Background(), sc), headers)

	if headers.Get("traceparent") == "" {
		t.Fatal("traceparent not injected")
	}
	extracted := trace.SpanContextFromContext(Extract(context.Background(), headers))
	if extracted.TraceID() != sc.TraceID() || extracted.SpanID() != sc.SpanID() {
		t.Errorf("extracted = %+v, want %+v", extracted, sc)
	}
}
