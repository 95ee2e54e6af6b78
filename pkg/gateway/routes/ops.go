package routes

import (
	"net/http"

	"github.com/genomics-portal/platform/pkg/observability/metrics"
	"github.com/gorilla/mux"
)

// RegisterOpsRoutes adds the health and prometheus endpoints shared by every
// service.
func RegisterOpsRoutes(r *mux.Router) {
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}
