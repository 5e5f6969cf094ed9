// Package main is the entrypoint for the LifeLedger orchestrator server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/lifeledger/internal/api"
	"github.com/kiranshivaraju/lifeledger/internal/api/handler"
	mw "github.com/kiranshivaraju/lifeledger/internal/api/middleware"
	"github.com/kiranshivaraju/lifeledger/internal/app"
	"github.com/kiranshivaraju/lifeledger/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Server.SlogLevel(),
	}))
	slog.SetDefault(logger)
	slog.Info("config loaded", "env", cfg.Server.Env, "store", cfg.Store.Driver,
		"redis", cfg.Redis.Enabled(), "dispatcher", cfg.Orchestrator.ID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect backends and register agents
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// 3. Build router with dependencies
	router := newRouter(a)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 4. Start the orchestrator loop and the HTTP server
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- a.Orchestrator.Start(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	var serveErr error
	select {
	case err := <-errCh:
		serveErr = err
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// The in-flight poll iteration finishes before the loop returns.
	a.Orchestrator.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	select {
	case <-loopDone:
	case <-shutdownCtx.Done():
		slog.Warn("orchestrator did not stop before shutdown timeout")
	}

	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	slog.Info("server stopped gracefully")
	return nil
}

// newRouter wires the API handlers to a's orchestrator and backends.
func newRouter(a *app.App) http.Handler {
	services := map[string]handler.Pinger{"database": a.Store}
	deps := api.Dependencies{
		HealthHandler:    handler.NewHealthHandler(a.Orchestrator, services),
		CreateJobHandler: handler.NewCreateJobHandler(a.Orchestrator),
		GetJobHandler:    handler.NewGetJobHandler(a.Orchestrator),
		CancelJobHandler: handler.NewCancelJobHandler(a.Orchestrator),
		ListLogsHandler:  handler.NewListLogsHandler(a.Orchestrator),
		CreateEntry:      handler.NewCreateEntryHandler(a.Orchestrator),
		Metrics:          promhttp.Handler(),
	}
	if a.Cache != nil {
		services["cache"] = a.Cache
		deps.RateLimit = mw.NewRateLimit(a.Cache, 0)
	}
	return api.NewRouter(deps)
}
