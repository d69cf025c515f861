// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: GPL-3.0-only

// Package process defines utility functions used for running the main process of a Go binary.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"
)

// ShutdownTimeout is the time in-flight requests are given to finish once shutdown starts.
const ShutdownTimeout = 10 * time.Second

// SignalContext returns a context that is canceled on the handed signals.
// The signals aren't watched after their first occurrence. Call the cancel
// function to ensure the internal goroutine is stopped and the signals aren't
// watched any longer.
func SignalContext(ctx context.Context, sig ...os.Signal) (context.Context, context.CancelFunc) {
	sigCtx, stop := signal.NotifyContext(ctx, sig...)
	done := make(chan struct{}, 1)
	stopDone := make(chan struct{}, 1)

	go func() {
		defer func() { stopDone <- struct{}{} }()
		defer stop()
		select {
		case <-sigCtx.Done():
			fmt.Fprintln(os.Stderr, "\rSignal caught. Send the signal again to terminate the program immediately.")
		case <-done:
		}
	}()

	cancelFunc := func() {
		done <- struct{}{}
		<-stopDone
	}

	return sigCtx, cancelFunc
}

// HTTPServeContext runs an [*http.Server] on listener and shuts it down gracefully when ctx is canceled.
// Should the server not define a [*tls.Config], the server will start without TLS.
// This function blocks until the server is shut down. A graceful shutdown returns nil.
func HTTPServeContext(ctx context.Context, server *http.Server, listener net.Listener, log *slog.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		if server.TLSConfig == nil {
			log.Info("Starting HTTP server without TLS", "endpoint", listener.Addr().String())
			serveErr <- server.Serve(listener)
		} else {
			log.Info("Starting HTTPS server", "endpoint", listener.Addr().String())
			serveErr <- server.ServeTLS(listener, "", "")
		}
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if err := <-serveErr; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
