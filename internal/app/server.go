package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

// Start binds the configured port and serves in the background. The returned
// channel closes on SIGINT, SIGTERM or SIGHUP, or when the server stops on
// its own.
func (a *App) Start() <-chan struct{} {
	l, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		slog.Error("failed to bind http listener", "address", a.httpServer.Addr, "error", err)
		os.Exit(1)
	}
	slog.Info("contact relay listening", "address", l.Addr().String())

	errc := a.Serve(l)
	terminate := make(chan struct{})

	go func() {
		defer close(terminate)

		ctx, stop := signal.NotifyContext(a.ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
		defer stop()

		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received")
		case err := <-errc:
			if !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server stopped unexpectedly", "error", err)
			}
		}
	}()

	return terminate
}

// Serve runs the HTTP server on the provided listener instead of the configured port.
func (a *App) Serve(l net.Listener) <-chan error {
	errc := make(chan error, 1)

	go func() {
		errc <- a.httpServer.Serve(l)
		close(errc)
	}()

	return errc
}

// Stop drains in-flight requests first, since they may still be waiting on
// the mail relay, then stops background work and runs the closers in order.
func (a *App) Stop(ctx context.Context) {
	slog.InfoContext(ctx, "draining in-flight requests")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to drain http server", "error", err)
	}

	if a.cancel != nil {
		a.cancel()
	}

	if err := a.goroutine.Wait(); err != nil {
		slog.ErrorContext(ctx, "background task failed", "error", err)
	}

	for _, closer := range a.closers {
		if err := closer.fn(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to close resources", "resource", closer.name, "error", err)
		}
	}

	slog.InfoContext(ctx, "contact relay stopped")
}
