// Package server exposes the bot's operator API over HTTP and websockets.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/liquidbot/internal/domain"
	"github.com/alanyoungcy/liquidbot/internal/server/handler"
	"github.com/alanyoungcy/liquidbot/internal/server/middleware"
	"github.com/alanyoungcy/liquidbot/internal/server/ws"
)

const (
	defaultRateLimit  = 120
	defaultRateWindow = time.Minute
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimit is requests per minute per client IP; 0 uses the default.
	RateLimit int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health       *handler.HealthHandler
	Status       *handler.StatusHandler
	Liquidations *handler.LiquidationHandler
	Borrowers    *handler.BorrowerHandler
	// Audit serves /api/audit when set.
	Audit *handler.AuditHandler
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// Server is the operator API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers routes and wraps them in rate limiting, auth, request
// logging and CORS. wsHub and limiter may be nil; without a limiter an
// in-process one is used.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      buildHandler(cfg, handlers, wsHub, limiter, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

func buildHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	mux.HandleFunc("GET /api/opportunities", handlers.Status.ListOpportunities)

	mux.HandleFunc("GET /api/stats", handlers.Liquidations.GetStats)
	mux.HandleFunc("GET /api/liquidations", handlers.Liquidations.ListLiquidations)
	mux.HandleFunc("GET /api/archives", handlers.Liquidations.ListArchives)

	mux.HandleFunc("GET /api/borrowers", handlers.Borrowers.ListBorrowers)
	mux.HandleFunc("POST /api/borrowers", handlers.Borrowers.AddBorrowers)
	mux.HandleFunc("DELETE /api/borrowers/{address}", handlers.Borrowers.RemoveBorrower)

	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/audit", handlers.Audit.ListAudit)
	}
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	if limiter == nil {
		limiter = middleware.NewLocalLimiter()
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}

	var h http.Handler = mux
	h = middleware.RateLimit(limiter, limit, defaultRateWindow)(h)
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
