package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	checks    map[string]Check
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. checks may be empty.
func NewHealthHandler(checks map[string]Check, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// HealthCheck runs every dependency probe and answers 200 when all pass,
// 503 otherwise.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	components := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			components[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			h.logger.WarnContext(ctx, "health check failed",
				slog.String("component", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"components":     components,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
