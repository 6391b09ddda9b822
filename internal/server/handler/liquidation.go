package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

// LedgerView is the read side of the session ledger.
type LedgerView interface {
	Stats() domain.LedgerStats
	Recent(limit int) []domain.LiquidationRecord
}

// ArchiveLister lists ledger archives in object storage.
type ArchiveLister interface {
	List(ctx context.Context) ([]domain.ArchiveObject, error)
}

// LiquidationHandler serves ledger statistics and history.
type LiquidationHandler struct {
	ledger   LedgerView
	store    domain.LiquidationStore
	archives ArchiveLister
	logger   *slog.Logger
}

// NewLiquidationHandler creates a LiquidationHandler. store and archives
// may be nil.
func NewLiquidationHandler(ledger LedgerView, store domain.LiquidationStore, archives ArchiveLister, logger *slog.Logger) *LiquidationHandler {
	return &LiquidationHandler{ledger: ledger, store: store, archives: archives, logger: logger}
}

// GetStats responds with the session totals.
// GET /api/stats
func (h *LiquidationHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.Stats())
}

// ListLiquidations responds with confirmed liquidations, newest first. With
// a store configured it pages through persisted history; otherwise it serves
// the current session.
// GET /api/liquidations?limit=&offset=
func (h *LiquidationHandler) ListLiquidations(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	if h.store == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"source":       "session",
			"liquidations": nonNil(h.ledger.Recent(opts.Limit)),
		})
		return
	}

	recs, err := h.store.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list liquidations failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list liquidations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":       "store",
		"liquidations": nonNil(recs),
	})
}

// ListArchives responds with the ledger archives in object storage.
// GET /api/archives
func (h *LiquidationHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	if h.archives == nil {
		writeError(w, http.StatusNotFound, "archive storage is not configured")
		return
	}
	infos, err := h.archives.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list archives failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}
	if infos == nil {
		infos = []domain.ArchiveObject{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": infos})
}

func nonNil(recs []domain.LiquidationRecord) []domain.LiquidationRecord {
	if recs == nil {
		return []domain.LiquidationRecord{}
	}
	return recs
}
