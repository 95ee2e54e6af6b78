package routes

import (
	"context"
	"net/http"
	"strconv"

	"github.com/genomics-portal/platform/pkg/exports"
	"github.com/gorilla/mux"
)

type ExportLister interface {
	ListByProgram(ctx context.Context, program string, limit int) ([]exports.Record, error)
}

// ExportsHandler serves the download audit trail of a program.
type ExportsHandler struct {
	store ExportLister
}

func NewExportsHandler(store ExportLister) *ExportsHandler {
	return &ExportsHandler{store: store}
}

// Register expects r to be scoped to /programs/{shortName}.
func (h *ExportsHandler) Register(r *mux.Router) {
	r.HandleFunc("/exports", h.handleList).Methods(http.MethodGet)
}

func (h *ExportsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := h.store.ListByProgram(r.Context(), mux.Vars(r)["shortName"], limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"exports": records,
		"count":   len(records),
	})
}
