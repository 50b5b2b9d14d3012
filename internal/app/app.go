package app

import (
	"net/http"

	"github.com/kyudori/er-scout/external/bser"
	"github.com/kyudori/er-scout/internal/config"
	"github.com/kyudori/er-scout/internal/interfaces/httpapi"
	"github.com/kyudori/er-scout/internal/observability"
	"github.com/kyudori/er-scout/internal/platform/cache"
	"github.com/kyudori/er-scout/internal/platform/logging"
	"github.com/kyudori/er-scout/internal/platform/resilience"
	"github.com/kyudori/er-scout/internal/usecase"
)

// App owns the wired object graph behind the HTTP server.
type App struct {
	Server  *httpapi.Server
	compare *usecase.CompareService
	logger  *logging.Logger
}

func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}

	var metrics *observability.Metrics
	var cacheOpts []cache.Option
	var onRetry func(reason string)
	var outcomes usecase.OutcomeRecorder
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics(cfg.ServiceName)
		cacheOpts = append(cacheOpts, cache.WithObserver(metrics))
		onRetry = metrics.UpstreamRetry
		outcomes = metrics
		metricsHandler = metrics.Handler()
	}

	store := cache.NewStore(cfg.CacheTTL, cacheOpts...)

	client := bser.NewClient(bser.ClientConfig{
		BaseURL:     cfg.BserBaseURL,
		APIKey:      cfg.BserAPIKey,
		Timeout:     cfg.BserTimeout,
		MaxRetries:  cfg.BserMaxRetries,
		BackoffBase: cfg.BserBackoffBase,
		Logger:      logger,
		Breaker: resilience.BreakerConfig{
			Enabled:          cfg.BserCircuitEnabled,
			FailureThreshold: cfg.BserCircuitFailureCount,
			OpenTimeout:      cfg.BserCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.BserCircuitHalfOpenMaxReq,
		},
		OnRetry: onRetry,
	})

	evaluations := usecase.NewEvaluationService(client, store, logger, outcomes)
	compare, err := usecase.NewCompareService(evaluations, cfg.CompareMaxWorkers, logger)
	if err != nil {
		return nil, err
	}
	portraits := usecase.NewPortraitService(evaluations, logger)

	handler := httpapi.NewHandler(compare, portraits, logger)
	router := httpapi.NewRouter(handler, httpapi.RouterOptions{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MetricsHandler: metricsHandler,
		Logger:         logger,
	})

	return &App{
		Server:  httpapi.NewServer(cfg, router, logger),
		compare: compare,
		logger:  logger,
	}, nil
}

func (a *App) Close() {
	if a.compare != nil {
		a.compare.Close()
	}
}
