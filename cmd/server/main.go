package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/dateprobe/internal/config"
	"github.com/JonMunkholm/dateprobe/internal/core"
	"github.com/JonMunkholm/dateprobe/internal/logging"
	"github.com/JonMunkholm/dateprobe/internal/store"
	"github.com/JonMunkholm/dateprobe/internal/uploads"
	"github.com/JonMunkholm/dateprobe/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()

	st, err := store.Open(ctx, store.Options{
		Backend:     cfg.Storage.Backend,
		JSONPath:    cfg.Storage.JSONPath,
		SQLitePath:  cfg.Storage.SQLitePath,
		DatabaseURL: cfg.Storage.DatabaseURL,
		MaxConns:    int32(cfg.Storage.MaxConns),
		MinConns:    int32(cfg.Storage.MinConns),
	})
	if err != nil {
		slog.Error("failed to open metadata store", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer st.Close()
	slog.Info("metadata store opened", "backend", cfg.Storage.Backend)

	files, err := uploads.New(cfg.Upload.Dir)
	if err != nil {
		slog.Error("failed to prepare uploads directory", "error", err)
		os.Exit(1)
	}

	engine := core.NewEngine(core.Options{
		SampleRows: cfg.Processing.SampleRows,
		SampleSize: cfg.Processing.SampleSize,
		Threshold:  cfg.Processing.Threshold,
	})
	limiter := core.NewRunLimiter(cfg.Processing.MaxConcurrent, cfg.Processing.MaxWait)
	proc := core.NewProcessor(engine, st, files, limiter, core.ProcessorConfig{
		Timeout: cfg.Processing.Timeout,
	})

	// Repair records left behind by a previous run of the server
	reconcileCtx, stopReconcile := context.WithCancel(ctx)
	defer stopReconcile()
	go proc.StartReconciler(reconcileCtx, cfg.Processing.ReconcileInterval)

	server := web.NewServer(cfg, proc, files)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		stopReconcile()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Cancel runs still in flight; they record an error status and can be
		// reprocessed after restart.
		status := proc.LimiterStatus()
		if status.Active > 0 {
			slog.Info("cancelling processing runs", "active", status.Active)
		}
		if err := proc.Shutdown(shutdownCtx); err != nil {
			slog.Warn("processing runs did not stop in time", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
