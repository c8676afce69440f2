package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/forwarder/pkg/connctx"
	"mercator-hq/forwarder/pkg/proxy/types"
)

// PanicHandler is notified of every panic recovered from an engine handler.
type PanicHandler func(r *http.Request, err error)

// RecoveryMiddleware recovers from panics in engine handlers. The client gets
// a 500 JSON answer when headers were not sent yet, the TLS side of the
// connection is closed and onPanic is notified. http.ErrAbortHandler is
// re-panicked so net/http aborts the connection quietly.
//
// Example usage:
//
//	handler = RecoveryMiddleware("forwarder", onPanic)(handler)
func RecoveryMiddleware(serverName string, onPanic PanicHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := types.NewResponseWriter(w)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("%v", rec)
				}

				slog.ErrorContext(r.Context(), "panic in handler",
					"error", err,
					"method", r.Method,
					"url", r.URL.String(),
					"stack", string(debug.Stack()),
				)

				if !rw.HeadersSent() {
					_ = types.WriteError(rw, http.StatusInternalServerError, types.MessageInternalError,
						http.Header{"Server": {serverName}})
				}
				connctx.From(r.Context()).EndTLS()

				if onPanic != nil {
					onPanic(r, err)
				}
			}()

			next.ServeHTTP(rw, r)
		})
	}
}
