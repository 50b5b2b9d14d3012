package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kyudori/er-scout/internal/app"
	"github.com/kyudori/er-scout/internal/config"
	"github.com/kyudori/er-scout/internal/observability"
	"github.com/kyudori/er-scout/internal/platform/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.NewJSON(cfg.LogLevel).With(
		"service", cfg.ServiceName,
		"env", cfg.AppEnv,
	)
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	shutdownUptrace, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		logger.Error("init uptrace", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownUptrace(ctx); err != nil {
			logger.Warn("uptrace shutdown", "error", err)
		}
	}()

	stopPyroscope, err := observability.InitPyroscope(cfg, logger)
	if err != nil {
		logger.Error("init pyroscope", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := stopPyroscope(); err != nil {
			logger.Warn("pyroscope shutdown", "error", err)
		}
	}()

	if cfg.BserAPIKey == "" {
		logger.Warn("BSER_API_KEY is empty, evaluations will fail until it is set")
	}

	application, err := app.New(&cfg, logger)
	if err != nil {
		logger.Error("wire application", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- application.Server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := application.Server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown", "error", err)
		}
	}
}
