package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/roomrelay/internal/logging"
	"github.com/Tyrowin/roomrelay/internal/metrics"
	"github.com/Tyrowin/roomrelay/internal/server"
)

func main() {
	config, err := server.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(config.LogLevel, config.LogFormat, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("Starting room relay...", "port", config.Port)

	registry := metrics.NewRegistry()
	hub := server.NewHub(config,
		server.WithLogger(logger),
		server.WithMetrics(metrics.NewRelay(registry)),
	)
	server.StartHub(hub)

	mux := server.SetupRoutes(hub, metrics.Handler(registry))
	httpServer := server.NewHTTPServer(config, mux)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Serve(ctx, httpServer, nil, hub); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}
