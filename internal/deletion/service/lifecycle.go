package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"erasure/internal/audit"
	"erasure/internal/deletion"
	dErrors "erasure/pkg/domain-errors"
	"erasure/pkg/platform/sentinel"
	"erasure/pkg/requestcontext"
)

// RequestParams describes a new deletion request. Client metadata (IP, user
// agent, session) is read from the request context.
type RequestParams struct {
	UserID          uuid.UUID
	Reason          string
	Source          deletion.Source
	PerformedBy     string
	PerformedByRole string
}

// InitiationResult is returned to the caller of Initiate: the persisted
// request, the validation that allowed it, and user-facing next steps.
type InitiationResult struct {
	Request    *deletion.Request
	Validation *deletion.ValidationResult
	NextSteps  []string
}

// Initiate validates and creates a deletion request. The initial status
// routes the request: parental consent outranks review, review outranks the
// plain confirmation flow.
func (s *Service) Initiate(ctx context.Context, params RequestParams) (*InitiationResult, error) {
	if _, err := s.accounts.FindUser(ctx, params.UserID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, fmt.Errorf("initiate deletion: %w", err)
	}

	validation, err := s.Validate(ctx, params.UserID)
	if err != nil {
		return nil, err
	}
	if !validation.CanDelete {
		return nil, dErrors.Newf(dErrors.CodeInvalidState,
			"cannot delete account: %s", strings.Join(validation.Blockers, ", "))
	}

	source := params.Source
	if source == "" {
		source = deletion.SourceSelfService
	}

	now := requestcontext.Now(ctx)
	ip := requestcontext.ClientIP(ctx)
	userAgent := requestcontext.UserAgent(ctx)
	sessionID := requestcontext.SessionID(ctx)

	req := &deletion.Request{
		ID:                      uuid.New(),
		UserID:                  params.UserID,
		Status:                  deletion.StatusPending,
		Reason:                  params.Reason,
		Source:                  source,
		ParentalConsentRequired: validation.RequiresParentalConsent,
		ReviewRequired:          validation.RequiresReview,
		IPAddress:               ip,
		UserAgent:               userAgent,
		Context: deletion.AdditionalContext{
			Warnings:                validation.Warnings,
			RequiresParentalConsent: validation.RequiresParentalConsent,
			RequiresReview:          validation.RequiresReview,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if validation.RequiresParentalConsent {
		req.Status = deletion.StatusParentalConsentRequired
		token, err := newToken()
		if err != nil {
			return nil, err
		}
		expiry := now.Add(deletion.ParentConfirmationTTL)
		req.ParentConfirmationToken = token
		req.ParentConfirmationExpiry = &expiry
	} else if validation.RequiresReview {
		req.Status = deletion.StatusReviewRequired
	}

	finalToken, err := newToken()
	if err != nil {
		return nil, err
	}
	finalExpiry := now.Add(deletion.FinalConfirmationTTL)
	req.FinalConfirmationToken = finalToken
	req.FinalConfirmationExpiry = &finalExpiry

	if err := s.requests.Create(ctx, req); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "active deletion request already exists")
		}
		return nil, fmt.Errorf("create deletion request: %w", err)
	}

	if s.metrics != nil {
		s.metrics.DeletionRequestsCreated.Inc()
	}
	s.countTransition(req.Status)

	actorType := audit.ActorUser
	if source == deletion.SourceAdmin {
		actorType = audit.ActorAdmin
	}
	auditCtx := &audit.Context{
		IPAddress: ip,
		UserAgent: userAgent,
		SessionID: sessionID,
		Device:    requestcontext.Device(ctx),
	}
	if sessionID != "" {
		auditCtx.Fingerprint = fingerprint(params.UserID, ip, userAgent, sessionID, now)
	}
	if _, err := s.recorder.Record(ctx, audit.EntryParams{
		DeletionRequestID: req.ID,
		Action:            audit.ActionRequestCreated,
		PerformedBy:       params.PerformedBy,
		PerformedByRole:   params.PerformedByRole,
		PerformedByType:   actorType,
		NewStatus:         string(req.Status),
		Details:           fmt.Sprintf("deletion request initiated with status: %s", req.Status),
		Metadata: map[string]any{
			"reason":            params.Reason,
			"warnings":          validation.Warnings,
			"requestSource":     string(source),
			"validationResults": validation,
		},
		Context: auditCtx,
	}); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "deletion request created",
		"deletion_request_id", req.ID,
		"user_id", params.UserID,
		"status", req.Status,
		"source", source,
	)

	return &InitiationResult{
		Request:    req,
		Validation: validation,
		NextSteps:  nextSteps(validation),
	}, nil
}

func nextSteps(validation *deletion.ValidationResult) []string {
	var steps []string
	if validation.RequiresParentalConsent {
		steps = append(steps,
			"Parental consent email will be sent",
			"Parent must approve deletion within 7 days",
		)
	}
	if validation.RequiresReview {
		steps = append(steps, "Manual review required for account with active commitments")
	}
	if !validation.RequiresParentalConsent && !validation.RequiresReview {
		steps = append(steps,
			"Final confirmation email will be sent",
			"Click confirmation link within 24 hours",
			"Account will be soft deleted (7 day recovery period)",
			"After 7 days, account will be permanently deleted",
		)
	}
	return steps
}

// ProcessParentalConsent resolves a minor's request with the parent's
// decision. A grant routes onward to review or confirmation; a denial
// cancels the request. The consumed token is cleared either way.
func (s *Service) ProcessParentalConsent(ctx context.Context, token string, granted bool, parent *deletion.ParentInfo) (*deletion.Request, error) {
	req, err := s.requests.GetByParentToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "invalid parental consent token")
		}
		return nil, fmt.Errorf("lookup parental consent token: %w", err)
	}

	now := requestcontext.Now(ctx)
	if req.ParentConfirmationExpiry != nil && req.ParentConfirmationExpiry.Before(now) {
		return nil, dErrors.New(dErrors.CodeExpired, "parental consent token has expired")
	}

	newContext := req.Context
	newContext.ParentInfo = parent

	var (
		target deletion.Status
		action audit.Action
		detail string
	)
	if granted {
		target = deletion.StatusConfirmed
		if req.ReviewRequired {
			target = deletion.StatusReviewRequired
		}
		action = audit.ActionParentalConsentGranted
		detail = "parental consent granted for minor account deletion"
	} else {
		target = deletion.StatusCancelled
		newContext.CancellationReason = "parental consent denied"
		action = audit.ActionParentalConsentDenied
		detail = "parental consent denied for minor account deletion"
	}

	update := deletion.Update{
		Status:                     target,
		ClearParentToken:           true,
		SetParentalConsentVerified: granted,
		Context:                    &newContext,
		UpdatedAt:                  now,
	}
	if err := s.requests.Transition(ctx, req.ID, deletion.StatusParentalConsentRequired, update); err != nil {
		return nil, s.invalidState(ctx, req.ID, "process parental consent", err)
	}
	s.countTransition(target)

	metadata := map[string]any{
		"consentToken": partialToken(token),
	}
	if parent != nil {
		metadata["parentInfo"] = parent
	}
	if !granted {
		metadata["cancellationReason"] = "parental consent denied"
	}
	if _, err := s.recorder.Record(ctx, audit.EntryParams{
		DeletionRequestID: req.ID,
		Action:            action,
		PerformedByType:   audit.ActorParent,
		PreviousStatus:    string(req.Status),
		NewStatus:         string(target),
		Details:           detail,
		Metadata:          metadata,
	}); err != nil {
		return nil, err
	}

	return s.requests.GetByID(ctx, req.ID)
}

// ConfirmRequest redeems the final confirmation token, moving a PENDING
// request to CONFIRMED.
func (s *Service) ConfirmRequest(ctx context.Context, token string) (*deletion.Request, error) {
	req, err := s.requests.GetByFinalToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "invalid confirmation token")
		}
		return nil, fmt.Errorf("lookup confirmation token: %w", err)
	}

	now := requestcontext.Now(ctx)
	if req.FinalConfirmationExpiry != nil && req.FinalConfirmationExpiry.Before(now) {
		return nil, dErrors.New(dErrors.CodeExpired, "confirmation token has expired")
	}

	update := deletion.Update{
		Status:          deletion.StatusConfirmed,
		ClearFinalToken: true,
		UpdatedAt:       now,
	}
	if err := s.requests.Transition(ctx, req.ID, deletion.StatusPending, update); err != nil {
		return nil, s.invalidState(ctx, req.ID, "confirm deletion request", err)
	}
	s.countTransition(deletion.StatusConfirmed)

	if _, err := s.recorder.Record(ctx, audit.EntryParams{
		DeletionRequestID: req.ID,
		Action:            audit.ActionRequestConfirmed,
		PerformedByType:   audit.ActorUser,
		PreviousStatus:    string(deletion.StatusPending),
		NewStatus:         string(deletion.StatusConfirmed),
		Details:           "deletion request confirmed by user",
		Metadata:          map[string]any{"confirmationToken": partialToken(token)},
	}); err != nil {
		return nil, err
	}

	return s.requests.GetByID(ctx, req.ID)
}

// ApproveReview clears a manual review, moving the request to CONFIRMED.
func (s *Service) ApproveReview(ctx context.Context, requestID uuid.UUID, performedBy string) (*deletion.Request, error) {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	update := deletion.Update{
		Status:    deletion.StatusConfirmed,
		UpdatedAt: now,
	}
	if err := s.requests.Transition(ctx, requestID, deletion.StatusReviewRequired, update); err != nil {
		return nil, s.invalidState(ctx, requestID, "approve review", err)
	}
	s.countTransition(deletion.StatusConfirmed)

	if _, err := s.recorder.Record(ctx, audit.EntryParams{
		DeletionRequestID: requestID,
		Action:            audit.ActionReviewApproved,
		PerformedBy:       performedBy,
		PerformedByType:   audit.ActorAdmin,
		PreviousStatus:    string(req.Status),
		NewStatus:         string(deletion.StatusConfirmed),
		Details:           "manual review approved",
	}); err != nil {
		return nil, err
	}

	return s.requests.GetByID(ctx, requestID)
}

// Cancel withdraws a request that has not yet been soft deleted.
func (s *Service) Cancel(ctx context.Context, requestID uuid.UUID, performedBy, reason string) (*deletion.Request, error) {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	switch req.Status {
	case deletion.StatusPending, deletion.StatusParentalConsentRequired,
		deletion.StatusReviewRequired, deletion.StatusConfirmed:
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidState,
			"cannot cancel deletion request: current status: %s", req.Status)
	}

	now := requestcontext.Now(ctx)
	newContext := req.Context
	newContext.CancellationReason = reason
	update := deletion.Update{
		Status:           deletion.StatusCancelled,
		ClearParentToken: true,
		ClearFinalToken:  true,
		Context:          &newContext,
		UpdatedAt:        now,
	}
	if err := s.requests.Transition(ctx, requestID, req.Status, update); err != nil {
		return nil, s.invalidState(ctx, requestID, "cancel deletion request", err)
	}
	s.countTransition(deletion.StatusCancelled)

	if _, err := s.recorder.Record(ctx, audit.EntryParams{
		DeletionRequestID: requestID,
		Action:            audit.ActionRequestCancelled,
		PerformedBy:       performedBy,
		PerformedByType:   audit.ActorUser,
		PreviousStatus:    string(req.Status),
		NewStatus:         string(deletion.StatusCancelled),
		Details:           "deletion request cancelled",
		Metadata:          map[string]any{"cancellationReason": reason},
	}); err != nil {
		return nil, err
	}

	return s.requests.GetByID(ctx, requestID)
}

func (s *Service) getRequest(ctx context.Context, requestID uuid.UUID) (*deletion.Request, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "deletion request not found")
		}
		return nil, fmt.Errorf("get deletion request: %w", err)
	}
	return req, nil
}

// invalidState turns a failed precondition into a domain error naming the
// request's actual status. The transition already refused to apply, so the
// re-read is purely for the message.
func (s *Service) invalidState(ctx context.Context, requestID uuid.UUID, op string, cause error) error {
	if !errors.Is(cause, sentinel.ErrInvalidState) && !errors.Is(cause, sentinel.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, cause)
	}
	current, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return dErrors.Wrap(cause, dErrors.CodeInvalidState, "cannot "+op)
	}
	return dErrors.Newf(dErrors.CodeInvalidState, "cannot %s: current status: %s", op, current.Status)
}
