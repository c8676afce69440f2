package server

import (
	"context"
	"log/slog"
	"net"

	"mercator-hq/forwarder/pkg/telemetry/metrics"
)

// Observer receives the lifecycle events of a Server.
//
// Events are delivered synchronously on the goroutine that raised them;
// implementations must be safe for concurrent use and must not block.
type Observer interface {
	// OnListen is called once the listener is bound and both engines serve.
	OnListen(addr net.Addr)

	// OnClose is called once Shutdown has stopped every engine.
	OnClose()

	// OnRequestError reports a failure scoped to one client connection:
	// unreadable or unsupported first bytes, tunnel failures and engine
	// errors.
	OnRequestError(ctx context.Context, err error)

	// OnServerError reports outbound failures that aborted an exchange and
	// accept loop failures.
	OnServerError(ctx context.Context, err error)

	// OnUncaughtException reports panics recovered from an engine handler.
	// The connection that raised it is abandoned; the server keeps running.
	OnUncaughtException(ctx context.Context, err error)
}

// ObserverFuncs adapts a set of functions to Observer. Nil fields are
// skipped.
type ObserverFuncs struct {
	Listen            func(addr net.Addr)
	Close             func()
	RequestError      func(ctx context.Context, err error)
	ServerError       func(ctx context.Context, err error)
	UncaughtException func(ctx context.Context, err error)
}

var _ Observer = ObserverFuncs{}

// OnListen implements Observer.
func (o ObserverFuncs) OnListen(addr net.Addr) {
	if o.Listen != nil {
		o.Listen(addr)
	}
}

// OnClose implements Observer.
func (o ObserverFuncs) OnClose() {
	if o.Close != nil {
		o.Close()
	}
}

// OnRequestError implements Observer.
func (o ObserverFuncs) OnRequestError(ctx context.Context, err error) {
	if o.RequestError != nil {
		o.RequestError(ctx, err)
	}
}

// OnServerError implements Observer.
func (o ObserverFuncs) OnServerError(ctx context.Context, err error) {
	if o.ServerError != nil {
		o.ServerError(ctx, err)
	}
}

// OnUncaughtException implements Observer.
func (o ObserverFuncs) OnUncaughtException(ctx context.Context, err error) {
	if o.UncaughtException != nil {
		o.UncaughtException(ctx, err)
	}
}

// loggingObserver is subscribed to every server.
type loggingObserver struct {
	name string
}

func (l loggingObserver) OnListen(addr net.Addr) {
	slog.Info("proxy server listening", "name", l.name, "address", addr.String())
}

func (l loggingObserver) OnClose() {
	slog.Info("proxy server stopped", "name", l.name)
}

func (l loggingObserver) OnRequestError(ctx context.Context, err error) {
	slog.WarnContext(ctx, "request error", "error", err)
}

func (l loggingObserver) OnServerError(ctx context.Context, err error) {
	slog.ErrorContext(ctx, "server error", "error", err)
}

func (l loggingObserver) OnUncaughtException(ctx context.Context, err error) {
	slog.ErrorContext(ctx, "uncaught exception", "error", err)
}

// metricsObserver counts error events.
func metricsObserver(c *metrics.Collector) Observer {
	return ObserverFuncs{
		RequestError: func(context.Context, error) {
			c.RecordLifecycleError(metrics.ErrorKindRequest)
		},
		ServerError: func(context.Context, error) {
			c.RecordLifecycleError(metrics.ErrorKindServer)
		},
		UncaughtException: func(context.Context, error) {
			c.RecordLifecycleError(metrics.ErrorKindUncaught)
		},
	}
}

// Subscribe registers o for every event raised after the call.
func (s *Server) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *Server) snapshot() []Observer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Observer(nil), s.observers...)
}

func (s *Server) emitListen(addr net.Addr) {
	for _, o := range s.snapshot() {
		o.OnListen(addr)
	}
}

func (s *Server) emitClose() {
	for _, o := range s.snapshot() {
		o.OnClose()
	}
}

func (s *Server) emitRequestError(ctx context.Context, err error) {
	for _, o := range s.snapshot() {
		o.OnRequestError(ctx, err)
	}
}

func (s *Server) emitServerError(ctx context.Context, err error) {
	for _, o := range s.snapshot() {
		o.OnServerError(ctx, err)
	}
}

func (s *Server) emitUncaught(ctx context.Context, err error) {
	for _, o := range s.snapshot() {
		o.OnUncaughtException(ctx, err)
	}
}
