package handler

import (
	"net/http"

	"github.com/alanyoungcy/liquidbot/internal/domain"
	"github.com/alanyoungcy/liquidbot/internal/scheduler"
)

// StatusSource exposes the scheduler's live state.
type StatusSource interface {
	Status() scheduler.Status
	RecentOpportunities(limit int) []domain.LiquidationOpportunity
}

// StatusHandler serves the engine status and the latest opportunities.
type StatusHandler struct {
	mode    string
	pairing string
	source  StatusSource
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode, pairing string, source StatusSource) *StatusHandler {
	return &StatusHandler{mode: mode, pairing: pairing, source: source}
}

// GetStatus responds with the mode, pairing strategy and scheduler state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":      h.mode,
		"pairing":   h.pairing,
		"scheduler": h.source.Status(),
	})
}

// ListOpportunities responds with opportunities from recent scans, newest
// first.
// GET /api/opportunities?limit=
func (h *StatusHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	opps := h.source.RecentOpportunities(parseLimit(r, 50, 500))
	views := make([]domain.OpportunityView, 0, len(opps))
	for _, o := range opps {
		views = append(views, o.View())
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": views})
}
