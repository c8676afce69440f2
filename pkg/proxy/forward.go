package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/forwarder/pkg/connctx"
	"mercator-hq/forwarder/pkg/proxy/types"
	"mercator-hq/forwarder/pkg/telemetry/tracing"
)

// hopHeaders are never relayed from the origin to the client.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// forward runs the forwarding pipeline for one request.
func (f *Forwarder) forward(w http.ResponseWriter, r *http.Request, protocol string) {
	start := time.Now()
	rw := types.NewResponseWriter(w)
	cc := connctx.From(r.Context())

	meta := &ExchangeMetadata{
		CorrelationID: cc.ID(),
		Protocol:      protocol,
		Method:        r.Method,
	}

	ctx, span := f.tracer.Start(r.Context(), "proxy.forward",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("proxy.protocol", protocol),
			attribute.String("proxy.correlation_id", cc.ID()),
		),
	)
	r = r.WithContext(ctx)

	// Headers of the origin response, once received. They are kept on a 500
	// answer caused by a later failure.
	var upstreamHeader http.Header

	defer func() {
		rec := recover()
		if rec != nil && rec != http.ErrAbortHandler {
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}
			meta.Outcome = OutcomeError
			if !f.internalError(ctx, rw, upstreamHeader, err) {
				rec = http.ErrAbortHandler
			} else {
				rec = nil
			}
		}
		if rec == http.ErrAbortHandler {
			meta.Outcome = OutcomeAborted
		}

		f.finishExchange(span, meta, rw, start)

		if rec != nil {
			panic(rec)
		}
	}()

	target, err := resolveURL(r, protocol)
	if err != nil {
		meta.Outcome = OutcomeError
		f.internalError(ctx, rw, nil, err)
		return
	}

	locals := &types.Locals{
		URL:      target,
		ClientIP: types.ClientIP(r),
		Protocol: protocol,
	}
	r = types.WithLocals(r, locals)
	meta.Host = target.Host
	span.SetAttributes(attribute.String("url.full", target.String()))

	rc := &types.RequestContext{Request: r, Response: rw, Locals: locals}
	if !f.request.Dispatch(rc) || rw.Ended() || rc.Request.Context().Err() != nil {
		meta.Outcome = OutcomeHalted
		cc.EndTLS()
		return
	}
	r = rc.Request

	out, body, err := f.outboundRequest(r, locals.URL)
	if err != nil {
		meta.Outcome = OutcomeError
		f.internalError(ctx, rw, nil, err)
		return
	}

	upstreamStart := time.Now()
	resp, err := f.transport.RoundTrip(out)
	if err != nil {
		f.outboundFailed(ctx, rw, body, err, meta)
		return
	}
	defer resp.Body.Close()
	meta.UpstreamLatency = time.Since(upstreamStart)
	upstreamHeader = resp.Header

	respCtx := &types.ResponseContext{
		Request:  r,
		Response: rw,
		Upstream: resp,
		Locals:   locals,
	}
	if !f.response.Dispatch(respCtx) {
		meta.Outcome = OutcomeHalted
		cc.EndTLS()
		return
	}

	up := respCtx.Upstream
	if up != resp && up.Body != nil {
		defer up.Body.Close()
	}

	if !rw.HeadersSent() {
		h := rw.Header()
		copyHeader(h, up.Header)
		h.Set("Server", f.name)
		rw.WriteHeader(up.StatusCode)
	}
	meta.Outcome = OutcomeForwarded

	if rw.Ended() || ctx.Err() != nil {
		cc.EndTLS()
		return
	}

	if err := copyBody(rw, up); err != nil {
		slog.WarnContext(ctx, "failed to relay response body",
			"url", target.String(),
			"error", err,
		)
		panic(http.ErrAbortHandler)
	}
}

// resolveURL computes the origin URL of r. Absolute http targets are used
// as they are, anything else is rebuilt from the engine protocol and the
// forwarded or direct host.
func resolveURL(r *http.Request, protocol string) (*url.URL, error) {
	if strings.HasPrefix(r.RequestURI, "http:") {
		u, err := url.Parse(r.RequestURI)
		if err != nil {
			return nil, fmt.Errorf("parse request target: %w", err)
		}
		return u, nil
	}

	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	if host == "" {
		return nil, errors.New("request has no host")
	}

	u, err := url.Parse(protocol + "://" + host + r.URL.RequestURI())
	if err != nil {
		return nil, fmt.Errorf("parse request target: %w", err)
	}
	return u, nil
}

// outboundRequest builds the origin request for r.
func (f *Forwarder) outboundRequest(r *http.Request, target *url.URL) (*http.Request, *bodyReader, error) {
	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Del("Proxy-Connection")
	header.Del("Host")
	header.Del("Proxy-Authorization")
	header.Set("Referer", target.String())

	var body io.Reader
	var br *bodyReader
	if r.Body != nil && r.Body != http.NoBody {
		br = &bodyReader{rc: r.Body}
		body = br
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), body)
	if err != nil {
		return nil, nil, fmt.Errorf("build outbound request: %w", err)
	}
	out.Header = header
	if br != nil {
		out.ContentLength = r.ContentLength
	}
	tracing.Inject(r.Context(), out.Header)

	return out, br, nil
}

// outboundFailed answers a failed round trip. Errors that are neither a
// timeout nor a client body failure abort the client connection.
func (f *Forwarder) outboundFailed(ctx context.Context, rw *types.ResponseWriter, body *bodyReader, err error, meta *ExchangeMetadata) {
	cc := connctx.From(ctx)

	if body != nil {
		if berr := body.failure(); berr != nil {
			meta.Outcome = OutcomeBadGateway
			slog.WarnContext(ctx, "failed to stream request body",
				"host", meta.Host,
				"error", fmt.Errorf("%w: %w", errBodyRead, berr),
			)
			_ = types.WriteError(rw, http.StatusBadGateway, types.MessageBadGateway, f.serverHeader())
			return
		}
	}

	// The client went away; there is nobody left to answer.
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		meta.Outcome = OutcomeCanceled
		slog.DebugContext(ctx, "client closed the request before the origin answered",
			"host", meta.Host,
		)
		return
	}

	if isTimeout(err) {
		meta.Outcome = OutcomeTimeout
		slog.WarnContext(ctx, "origin did not answer in time",
			"host", meta.Host,
			"timeout", f.requestTimeout.String(),
		)
		_ = types.WriteError(rw, types.StatusRequestTimeout, types.MessageTimeout, f.serverHeader())
		cc.EndTLS()
		return
	}

	slog.ErrorContext(ctx, "outbound request failed",
		"host", meta.Host,
		"error", err,
	)
	f.serverError(ctx, err)
	panic(http.ErrAbortHandler)
}

// internalError answers 500, keeping the origin headers when known. It
// reports false when the response was already started and could not be
// answered.
func (f *Forwarder) internalError(ctx context.Context, rw *types.ResponseWriter, upstream http.Header, err error) bool {
	slog.ErrorContext(ctx, "failed to process request", "error", err)

	extra := make(http.Header, len(upstream)+1)
	copyHeader(extra, upstream)
	extra.Set("Server", f.name)

	werr := types.WriteError(rw, http.StatusInternalServerError, types.MessageInternalError, extra)
	connctx.From(ctx).EndTLS()
	return !errors.Is(werr, types.ErrHeadersSent)
}

func (f *Forwarder) finishExchange(span trace.Span, meta *ExchangeMetadata, rw *types.ResponseWriter, start time.Time) {
	meta.StatusCode = rw.Status()
	meta.BytesWritten = rw.BytesWritten()
	meta.Latency = time.Since(start)

	span.SetAttributes(
		attribute.Int("http.status_code", meta.StatusCode),
		attribute.String("proxy.outcome", meta.Outcome),
	)
	switch meta.Outcome {
	case OutcomeForwarded, OutcomeHalted:
	default:
		span.SetStatus(codes.Error, meta.Outcome)
	}
	span.End()

	f.recorder.RecordExchange(meta)
}

func (f *Forwarder) serverHeader() http.Header {
	return http.Header{"Server": {f.name}}
}

// copyHeader copies src into dst, skipping hop-by-hop headers and the
// headers named by Connection.
func copyHeader(dst, src http.Header) {
	if src == nil {
		return
	}
	skip := make(map[string]bool, len(hopHeaders))
	for _, h := range hopHeaders {
		skip[h] = true
	}
	for _, v := range src.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				skip[textproto.CanonicalMIMEHeaderKey(name)] = true
			}
		}
	}

	for k, vv := range src {
		if skip[k] {
			continue
		}
		dst[k] = append([]string(nil), vv...)
	}
}

// copyBody relays the origin body. Bodies of unknown length are flushed
// after every write.
func copyBody(rw *types.ResponseWriter, up *http.Response) error {
	if up.Body == nil {
		return nil
	}

	var dst io.Writer = rw
	if up.ContentLength < 0 {
		dst = flushWriter{rw}
	}

	buf := make([]byte, 32*1024)
	_, err := io.CopyBuffer(dst, up.Body, buf)
	return err
}

type flushWriter struct {
	rw *types.ResponseWriter
}

func (w flushWriter) Write(p []byte) (int, error) {
	n, err := w.rw.Write(p)
	w.rw.Flush()
	return n, err
}
