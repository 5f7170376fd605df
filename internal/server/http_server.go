// Package server runs the relay's HTTP listener and sequences its shutdown
// with the hub.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// NewHTTPServer builds the HTTP server for cfg's port. Only the header read
// is bounded here; upgraded sockets get their deadlines from the client pumps.
func NewHTTPServer(cfg *Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartHub runs the hub's event loop and heartbeat monitor in the background.
func StartHub(h *Hub) {
	go h.Run()
	h.log.Info("Hub started", "heartbeat", h.monitor.Interval())
}

// Serve accepts connections on ln (or srv.Addr when ln is nil) until ctx is
// done or the listener fails. It then closes every relay client with
// 1001 before draining plain HTTP requests. Each phase is bounded by the
// hub's ShutdownTimeout.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, h *Hub) error {
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", srv.Addr); err != nil {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		h.log.Info("Server listening", "addr", ln.Addr().String())
		serveErr <- srv.Serve(ln)
	}()

	var result error
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			result = fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		h.log.Info("Shutdown requested")
	}

	timeout := h.cfg.ShutdownTimeout
	if err := h.Shutdown(timeout); err != nil {
		h.log.Warn("Hub shutdown incomplete", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		h.log.Error("HTTP server shutdown error", "error", err)
		return errors.Join(result, err)
	}

	h.log.Info("Server stopped")
	return result
}
