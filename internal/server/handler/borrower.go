package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/liquidbot/internal/directory"
)

// BorrowerDirectory is the mutable borrower set.
type BorrowerDirectory interface {
	List() []string
	Add(addr string) bool
	Remove(addr string) bool
	Len() int
}

// BorrowerHandler lets operators inspect and edit the borrower set.
type BorrowerHandler struct {
	dir    BorrowerDirectory
	logger *slog.Logger
}

// NewBorrowerHandler creates a BorrowerHandler.
func NewBorrowerHandler(dir BorrowerDirectory, logger *slog.Logger) *BorrowerHandler {
	return &BorrowerHandler{dir: dir, logger: logger}
}

type addBorrowersRequest struct {
	Address   string   `json:"address"`
	Addresses []string `json:"addresses"`
}

// ListBorrowers responds with every tracked borrower.
// GET /api/borrowers
func (h *BorrowerHandler) ListBorrowers(w http.ResponseWriter, r *http.Request) {
	list := h.dir.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(list),
		"borrowers": list,
	})
}

// AddBorrowers adds one or more addresses. Every address must be valid.
// POST /api/borrowers {"address": "0x.."} or {"addresses": [...]}
func (h *BorrowerHandler) AddBorrowers(w http.ResponseWriter, r *http.Request) {
	var req addBorrowersRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	addrs := req.Addresses
	if req.Address != "" {
		addrs = append(addrs, req.Address)
	}
	if len(addrs) == 0 {
		writeError(w, http.StatusBadRequest, "no address given")
		return
	}
	for _, a := range addrs {
		if _, ok := directory.Normalize(a); !ok {
			writeError(w, http.StatusBadRequest, "invalid address: "+a)
			return
		}
	}

	added := 0
	for _, a := range addrs {
		if h.dir.Add(a) {
			added++
		}
	}
	h.logger.InfoContext(r.Context(), "borrowers added via api",
		slog.Int("requested", len(addrs)),
		slog.Int("added", added),
	)
	writeJSON(w, http.StatusOK, map[string]any{"added": added, "count": h.dir.Len()})
}

// RemoveBorrower drops an address from the set.
// DELETE /api/borrowers/{address}
func (h *BorrowerHandler) RemoveBorrower(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("address")
	if _, ok := directory.Normalize(addr); !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	if !h.dir.Remove(addr) {
		writeError(w, http.StatusNotFound, "borrower not tracked")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": addr, "count": h.dir.Len()})
}
