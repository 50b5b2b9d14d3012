package httpapi

import (
	"context"
	"net/http"

	"github.com/kyudori/er-scout/internal/config"
	"github.com/kyudori/er-scout/internal/platform/logging"
)

type RouterOptions struct {
	AllowedOrigins []string
	MetricsHandler http.Handler
	Logger         *logging.Logger
}

func NewRouter(handler *Handler, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handler.Healthz)
	mux.HandleFunc("POST /v1/evaluate", handler.Evaluate)
	mux.HandleFunc("POST /v1/portrait", handler.Portrait)
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	var chained http.Handler = mux
	chained = recoverPanic(logger, chained)
	chained = RequestLogging(logger, chained)
	chained = RequestTracing(chained)
	chained = RequestID(chained)
	chained = CORS(opts.AllowedOrigins, chained)
	return chained
}

func recoverPanic(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorContext(r.Context(), "panic recovered",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
				)
				writeInternalError(r.Context(), w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type Server struct {
	httpServer *http.Server
	logger     *logging.Logger
}

func NewServer(cfg *config.Config, router http.Handler, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
