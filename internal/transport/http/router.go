// Package httptransport is the thin HTTP layer over the deletion, monitoring
// and reporting services. Handlers decode, delegate and encode; business
// rules live in the services.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	deletionsvc "erasure/internal/deletion/service"
	"erasure/internal/monitor"
	"erasure/internal/report"
	"erasure/pkg/platform/httputil"
	"erasure/pkg/platform/middleware/auth"
	"erasure/pkg/platform/middleware/metadata"
	"erasure/pkg/platform/middleware/requesttime"
)

// Deps carries everything the router needs. Validator guards both the user
// and the admin surface.
type Deps struct {
	Deletion  *deletionsvc.Service
	Monitor   *monitor.Service
	Reports   *report.Service
	Validator auth.TokenValidator
	Logger    *slog.Logger
}

// NewRouter wires all endpoints. Every request gets a frozen clock, a
// correlation ID and extracted client metadata before it reaches a handler.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	NewDeletionHandler(deps.Deletion, deps.Validator, deps.Logger).Register(r)
	NewAdminHandler(deps.Deletion, deps.Monitor, deps.Reports, deps.Validator, deps.Logger).Register(r)

	return r
}
