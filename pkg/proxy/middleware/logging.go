package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/forwarder/pkg/proxy/types"
)

type startTimeKey struct{}

// LoggingMiddleware logs every request handled by an engine with structured
// logging. The correlation id of the connection is added by the logging
// handler from the request context.
//
// Log format (JSON):
//
//	{
//	  "time": "2025-11-16T10:30:00Z",
//	  "level": "INFO",
//	  "msg": "request completed",
//	  "correlation_id": "1b4e28ba-2fa1-11d2-883f-0016d3cca427",
//	  "protocol": "https",
//	  "method": "GET",
//	  "host": "example.com",
//	  "target": "/path",
//	  "status": 200,
//	  "bytes": 5120,
//	  "latency_ms": 84
//	}
func LoggingMiddleware(protocol string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()
			ctx := context.WithValue(r.Context(), startTimeKey{}, startTime)

			rw := types.NewResponseWriter(w)

			slog.DebugContext(ctx, "request started",
				"protocol", protocol,
				"method", r.Method,
				"target", r.RequestURI,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)

			next.ServeHTTP(rw, r.WithContext(ctx))

			if r.Method == http.MethodConnect {
				slog.DebugContext(ctx, "connect handled",
					"target", r.RequestURI,
					"latency_ms", time.Since(startTime).Milliseconds(),
				)
				return
			}

			logLevel := slog.LevelInfo
			if rw.Status() >= 500 {
				logLevel = slog.LevelError
			} else if rw.Status() >= 400 {
				logLevel = slog.LevelWarn
			}

			slog.Log(ctx, logLevel, "request completed",
				"protocol", protocol,
				"method", r.Method,
				"host", r.Host,
				"target", r.RequestURI,
				"status", rw.Status(),
				"bytes", rw.BytesWritten(),
				"latency_ms", time.Since(startTime).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

// GetStartTime extracts the request start time from the context.
// Returns zero time if not found.
func GetStartTime(ctx context.Context) time.Time {
	if startTime, ok := ctx.Value(startTimeKey{}).(time.Time); ok {
		return startTime
	}
	return time.Time{}
}
