package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// ShutdownSignals stop the proxy gracefully.
var ShutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// SetupSignalHandler creates a context that is canceled on SIGINT or SIGTERM.
// A second signal exits the process with ExitInterrupted without waiting for
// the graceful shutdown to finish.
func SetupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, ShutdownSignals...)

	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig.String())
		cancel()

		sig = <-sigChan
		slog.Warn("received second signal, exiting immediately", "signal", sig.String())
		os.Exit(ExitInterrupted)
	}()

	return ctx
}

// ReloadSignals delivers SIGHUP until stop is called.
func ReloadSignals() (signals <-chan os.Signal, stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	return sigChan, func() { signal.Stop(sigChan) }
}
