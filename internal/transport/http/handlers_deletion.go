package httptransport

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"erasure/internal/deletion"
	deletionsvc "erasure/internal/deletion/service"
	dErrors "erasure/pkg/domain-errors"
	"erasure/pkg/platform/httputil"
	"erasure/pkg/platform/middleware/auth"
)

// DeletionHandler serves the user-facing deletion endpoints. The consent and
// confirmation routes are unauthenticated: the capability is the emailed
// token itself, and parents do not hold platform accounts.
type DeletionHandler struct {
	service   *deletionsvc.Service
	validator auth.TokenValidator
	logger    *slog.Logger
}

func NewDeletionHandler(service *deletionsvc.Service, validator auth.TokenValidator, logger *slog.Logger) *DeletionHandler {
	return &DeletionHandler{service: service, validator: validator, logger: logger}
}

// Register mounts the deletion routes.
func (h *DeletionHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.validator))
		r.Post("/deletion/requests", h.handleInitiate)
		r.Get("/deletion/requests/{userID}/status", h.handleStatus)
	})

	r.Post("/deletion/consent/{token}", h.handleParentalConsent)
	r.Post("/deletion/confirm/{token}", h.handleConfirm)
}

type initiateRequest struct {
	UserID string `json:"userId,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type initiateResponse struct {
	RequestID               uuid.UUID `json:"requestId"`
	Status                  string    `json:"status"`
	RequiresParentalConsent bool      `json:"requiresParentalConsent"`
	RequiresReview          bool      `json:"requiresReview"`
	Warnings                []string  `json:"warnings,omitempty"`
	NextSteps               []string  `json:"nextSteps"`
}

func (h *DeletionHandler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := auth.Actor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	body, ok := httputil.Decode[initiateRequest](w, r, h.logger)
	if !ok {
		return
	}

	targetID, err := uuid.Parse(actor.UserID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "malformed subject claim"))
		return
	}
	source := deletion.SourceSelfService
	if body.UserID != "" && body.UserID != actor.UserID {
		if actor.Role != "ADMIN" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "cannot request deletion for another user"))
			return
		}
		targetID, err = uuid.Parse(body.UserID)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed user id"))
			return
		}
		source = deletion.SourceAdmin
	}

	result, err := h.service.Initiate(ctx, deletionsvc.RequestParams{
		UserID:          targetID,
		Reason:          body.Reason,
		Source:          source,
		PerformedBy:     actor.UserID,
		PerformedByRole: actor.Role,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, initiateResponse{
		RequestID:               result.Request.ID,
		Status:                  strings.ToLower(string(result.Request.Status)),
		RequiresParentalConsent: result.Request.ParentalConsentRequired,
		RequiresReview:          result.Request.ReviewRequired,
		Warnings:                result.Validation.Warnings,
		NextSteps:               result.NextSteps,
	})
}

func (h *DeletionHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := auth.Actor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed user id"))
		return
	}
	if actor.UserID != userID.String() && actor.Role != "ADMIN" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "cannot view another user's deletion status"))
		return
	}

	info, err := h.service.Status(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

type parentalConsentRequest struct {
	Granted     bool   `json:"granted"`
	ParentName  string `json:"parentName,omitempty"`
	ParentEmail string `json:"parentEmail,omitempty"`
}

type tokenActionResponse struct {
	RequestID uuid.UUID `json:"requestId"`
	Status    string    `json:"status"`
}

func (h *DeletionHandler) handleParentalConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := httputil.Decode[parentalConsentRequest](w, r, h.logger)
	if !ok {
		return
	}

	var parent *deletion.ParentInfo
	if body.Granted {
		if body.ParentName == "" || body.ParentEmail == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "parentName and parentEmail are required to grant consent"))
			return
		}
		parent = &deletion.ParentInfo{Name: body.ParentName, Email: body.ParentEmail}
	}

	req, err := h.service.ProcessParentalConsent(ctx, chi.URLParam(r, "token"), body.Granted, parent)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokenActionResponse{
		RequestID: req.ID,
		Status:    strings.ToLower(string(req.Status)),
	})
}

func (h *DeletionHandler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.ConfirmRequest(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokenActionResponse{
		RequestID: req.ID,
		Status:    strings.ToLower(string(req.Status)),
	})
}
