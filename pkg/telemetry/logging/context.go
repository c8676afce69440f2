package logging

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/forwarder/pkg/connctx"
)

// Field names added by ContextHandler.
const (
	CorrelationIDKey = "correlation_id"
	TraceIDKey       = "trace_id"
	SpanIDKey        = "span_id"
)

type fieldsKey struct{}

// WithFields returns a context whose log records carry the given key-value
// pairs. Fields accumulate across nested calls.
func WithFields(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	prev := Fields(ctx)
	fields := make([]any, 0, len(prev)+len(args))
	fields = append(fields, prev...)
	fields = append(fields, args...)
	return context.WithValue(ctx, fieldsKey{}, fields)
}

// Fields returns the key-value pairs stored with WithFields.
func Fields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).([]any)
	return fields
}

// ContextHandler decorates records with values found in the context: the
// correlation id of the connection, the active span and any WithFields pairs.
// Attributes are passed through the redactor when one is set.
type ContextHandler struct {
	next     slog.Handler
	redactor *Redactor
}

// NewContextHandler wraps next. A nil redactor disables redaction.
func NewContextHandler(next slog.Handler, redactor *Redactor) *ContextHandler {
	return &ContextHandler{next: next, redactor: redactor}
}

// Enabled reports whether the wrapped handler handles records at level.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle adds context attributes and forwards the record.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	seen := make(map[string]bool, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		seen[a.Key] = true
		out.AddAttrs(h.redact(a))
		return true
	})

	for _, a := range contextAttrs(ctx) {
		if seen[a.Key] {
			continue
		}
		out.AddAttrs(h.redact(a))
	}

	return h.next.Handle(ctx, out)
}

// WithAttrs returns a handler whose records carry attrs.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redact(a)
	}
	return &ContextHandler{next: h.next.WithAttrs(redacted), redactor: h.redactor}
}

// WithGroup returns a handler that nests later attributes under name.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name), redactor: h.redactor}
}

func (h *ContextHandler) redact(a slog.Attr) slog.Attr {
	if h.redactor == nil {
		return a
	}
	return h.redactor.RedactAttr(a)
}

// contextAttrs extracts the attributes carried by ctx.
func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var attrs []slog.Attr
	if cc := connctx.From(ctx); cc != nil {
		attrs = append(attrs, slog.String(CorrelationIDKey, cc.ID()))
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String(TraceIDKey, sc.TraceID().String()),
			slog.String(SpanIDKey, sc.SpanID().String()),
		)
	}

	if fields := Fields(ctx); len(fields) > 0 {
		r := slog.NewRecord(time.Time{}, 0, "", 0)
		r.Add(fields...)
		r.Attrs(func(a slog.Attr) bool {
			attrs = append(attrs, a)
			return true
		})
	}

	return attrs
}
