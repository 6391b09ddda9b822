package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

// AuditHandler serves the persisted audit log.
type AuditHandler struct {
	store  domain.AuditStore
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler. store may be nil when Postgres
// is disabled.
func NewAuditHandler(store domain.AuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{store: store, logger: logger}
}

// ListAudit responds with audit entries, newest first.
// GET /api/audit?event=&borrower=&limit=&offset=
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "audit log is not configured")
		return
	}

	q := r.URL.Query()
	filter := domain.AuditFilter{
		ListOpts: parseListOpts(r),
		Event:    q.Get("event"),
	}
	if b := q.Get("borrower"); b != "" {
		if !common.IsHexAddress(b) {
			writeError(w, http.StatusBadRequest, "invalid borrower address")
			return
		}
		filter.Borrower = common.HexToAddress(b).Hex()
	}

	entries, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
