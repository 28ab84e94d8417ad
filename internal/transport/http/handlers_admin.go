package httptransport

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	deletionsvc "erasure/internal/deletion/service"
	"erasure/internal/monitor"
	"erasure/internal/report"
	dErrors "erasure/pkg/domain-errors"
	"erasure/pkg/platform/httputil"
	"erasure/pkg/platform/middleware/auth"
	"erasure/pkg/requestcontext"
)

// defaultStatisticsWindow is used when the statistics endpoint gets no
// explicit range.
const defaultStatisticsWindow = 30 * 24 * time.Hour

// AdminHandler serves the privileged surface: review decisions, the deletion
// executions, recovery, alerts and reporting.
type AdminHandler struct {
	deletion  *deletionsvc.Service
	monitor   *monitor.Service
	reports   *report.Service
	validator auth.TokenValidator
	logger    *slog.Logger
}

func NewAdminHandler(
	deletion *deletionsvc.Service,
	monitorSvc *monitor.Service,
	reports *report.Service,
	validator auth.TokenValidator,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		deletion:  deletion,
		monitor:   monitorSvc,
		reports:   reports,
		validator: validator,
		logger:    logger,
	}
}

// Register mounts the admin routes behind the admin-role guard.
func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireAdmin(h.validator, h.logger))

		r.Post("/deletion/requests/{id}/review/approve", h.handleApproveReview)
		r.Post("/deletion/requests/{id}/soft-delete", h.handleSoftDelete)
		r.Post("/deletion/requests/{id}/hard-delete", h.handleHardDelete)
		r.Post("/deletion/requests/{id}/cancel", h.handleCancel)
		r.Post("/users/{userID}/recover", h.handleRecover)

		r.Get("/alerts", h.handleListAlerts)
		r.Post("/alerts/{alertID}/resolve", h.handleResolveAlert)

		r.Get("/reports", h.handleReport)
		r.Get("/deletion/statistics", h.handleStatistics)
	})
}

type requestResponse struct {
	RequestID uuid.UUID `json:"requestId"`
	Status    string    `json:"status"`
}

func (h *AdminHandler) requestAction(w http.ResponseWriter, r *http.Request, act func(id uuid.UUID, performedBy string) (*requestResponse, error)) {
	actor, _ := auth.Actor(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request id"))
		return
	}

	resp, err := act(id, actor.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) handleApproveReview(w http.ResponseWriter, r *http.Request) {
	h.requestAction(w, r, func(id uuid.UUID, performedBy string) (*requestResponse, error) {
		req, err := h.deletion.ApproveReview(r.Context(), id, performedBy)
		if err != nil {
			return nil, err
		}
		return &requestResponse{RequestID: req.ID, Status: strings.ToLower(string(req.Status))}, nil
	})
}

func (h *AdminHandler) handleSoftDelete(w http.ResponseWriter, r *http.Request) {
	h.requestAction(w, r, func(id uuid.UUID, performedBy string) (*requestResponse, error) {
		req, err := h.deletion.SoftDelete(r.Context(), id, performedBy)
		if err != nil {
			return nil, err
		}
		return &requestResponse{RequestID: req.ID, Status: strings.ToLower(string(req.Status))}, nil
	})
}

func (h *AdminHandler) handleHardDelete(w http.ResponseWriter, r *http.Request) {
	h.requestAction(w, r, func(id uuid.UUID, performedBy string) (*requestResponse, error) {
		req, err := h.deletion.HardDelete(r.Context(), id, performedBy)
		if err != nil {
			return nil, err
		}
		return &requestResponse{RequestID: req.ID, Status: strings.ToLower(string(req.Status))}, nil
	})
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *AdminHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	body, ok := httputil.Decode[cancelRequest](w, r, h.logger)
	if !ok {
		return
	}
	h.requestAction(w, r, func(id uuid.UUID, performedBy string) (*requestResponse, error) {
		req, err := h.deletion.Cancel(r.Context(), id, performedBy, body.Reason)
		if err != nil {
			return nil, err
		}
		return &requestResponse{RequestID: req.ID, Status: strings.ToLower(string(req.Status))}, nil
	})
}

func (h *AdminHandler) handleRecover(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.Actor(r.Context())
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed user id"))
		return
	}

	req, err := h.deletion.Recover(r.Context(), userID, actor.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, requestResponse{
		RequestID: req.ID,
		Status:    strings.ToLower(string(req.Status)),
	})
}

func (h *AdminHandler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.monitor.ActiveAlerts(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

type resolveAlertRequest struct {
	Notes string `json:"notes,omitempty"`
}

func (h *AdminHandler) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.Actor(r.Context())
	body, ok := httputil.Decode[resolveAlertRequest](w, r, h.logger)
	if !ok {
		return
	}

	alert, err := h.monitor.Resolve(r.Context(), chi.URLParam(r, "alertID"), actor.UserID, body.Notes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, alert)
}

func (h *AdminHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	reportType := report.Type(strings.ToUpper(r.URL.Query().Get("type")))
	if reportType == "" {
		reportType = report.TypeMonthly
	}
	format := report.Format(strings.ToUpper(r.URL.Query().Get("format")))
	if format == "" {
		format = report.FormatJSON
	}

	start, end, err := parseWindow(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	generated, err := h.reports.Generate(r.Context(), reportType, start, end, report.GeneratedByAdmin)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out, err := report.Export(generated, format)
	if err != nil {
		if errors.Is(err, report.ErrPDFNotImplemented) {
			httputil.WriteJSON(w, http.StatusNotImplemented, map[string]string{
				"error": "pdf export not implemented",
			})
			return
		}
		httputil.WriteError(w, err)
		return
	}

	switch format {
	case report.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="`+generated.ID+`.csv"`)
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (h *AdminHandler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if end.IsZero() {
		end = requestcontext.Now(r.Context())
	}
	if start.IsZero() {
		start = end.Add(-defaultStatisticsWindow)
	}

	stats, err := h.deletion.Statistics(r.Context(), start, end)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// parseWindow reads the optional start/end query parameters as RFC 3339.
func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	var start, end time.Time
	if raw := r.URL.Query().Get("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return start, end, dErrors.New(dErrors.CodeBadRequest, "start must be RFC 3339")
		}
		start = parsed
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return start, end, dErrors.New(dErrors.CodeBadRequest, "end must be RFC 3339")
		}
		end = parsed
	}
	return start, end, nil
}
