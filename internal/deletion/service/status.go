package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"erasure/internal/audit"
	"erasure/internal/deletion"
	"erasure/pkg/platform/sentinel"
	"erasure/pkg/requestcontext"
)

// statusTrailLimit bounds the audit trail embedded in a status view.
const statusTrailLimit = 20

// StatusChange describes a transition seen in the audit trail.
type StatusChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// AuditTrailItem is one audit entry shaped for the status view.
type AuditTrailItem struct {
	ID           uuid.UUID     `json:"id"`
	Action       audit.Action  `json:"action"`
	Performer    string        `json:"performer"`
	Details      string        `json:"details,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
	StatusChange *StatusChange `json:"statusChange,omitempty"`
}

// StatusInfo is the user-facing view of a deletion request.
type StatusInfo struct {
	Status                  string           `json:"status"`
	CanRequest              bool             `json:"canRequest"`
	CanRecover              bool             `json:"canRecover"`
	CreatedAt               *time.Time       `json:"createdAt,omitempty"`
	SoftDeletedAt           *time.Time       `json:"softDeletedAt,omitempty"`
	HardDeletedAt           *time.Time       `json:"hardDeletedAt,omitempty"`
	RecoveryDeadline        *time.Time       `json:"recoveryDeadline,omitempty"`
	ParentalConsentRequired bool             `json:"parentalConsentRequired"`
	ReviewRequired          bool             `json:"reviewRequired"`
	AuditTrail              []AuditTrailItem `json:"auditTrail"`
	AuditTrailVerified      bool             `json:"auditTrailVerified"`
}

// Status returns the current deletion state for a user, with the recent
// audit trail and the result of verifying its integrity.
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (*StatusInfo, error) {
	req, err := s.requests.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &StatusInfo{
				Status:             "none",
				CanRequest:         true,
				AuditTrail:         []AuditTrailItem{},
				AuditTrailVerified: true,
			}, nil
		}
		return nil, fmt.Errorf("get deletion status: %w", err)
	}

	canRecover, err := s.CanRecover(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := s.recorder.Entries(ctx, req.ID, statusTrailLimit)
	if err != nil {
		return nil, fmt.Errorf("get audit trail: %w", err)
	}
	integrity, err := s.recorder.VerifyIntegrity(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	trail := make([]AuditTrailItem, 0, len(entries))
	for _, e := range entries {
		item := AuditTrailItem{
			ID:        e.ID,
			Action:    e.Action,
			Performer: string(e.PerformedByType),
			Details:   e.ActionDetails,
			Timestamp: e.CreatedAt,
		}
		if e.PreviousStatus != "" && e.NewStatus != "" {
			item.StatusChange = &StatusChange{From: e.PreviousStatus, To: e.NewStatus}
		}
		trail = append(trail, item)
	}

	created := req.CreatedAt
	return &StatusInfo{
		Status:                  strings.ToLower(string(req.Status)),
		CanRequest:              false,
		CanRecover:              canRecover,
		CreatedAt:               &created,
		SoftDeletedAt:           req.SoftDeletedAt,
		HardDeletedAt:           req.HardDeletedAt,
		RecoveryDeadline:        req.RecoveryDeadline,
		ParentalConsentRequired: req.ParentalConsentRequired,
		ReviewRequired:          req.ReviewRequired,
		AuditTrail:              trail,
		AuditTrailVerified:      integrity.Valid,
	}, nil
}

// Statistics aggregates request and audit counts over [from, to) for
// compliance reporting.
type Statistics struct {
	TotalRequests   int                     `json:"totalRequests"`
	ActionBreakdown map[audit.Action]int    `json:"actionBreakdown"`
	StatusBreakdown map[deletion.Status]int `json:"statusBreakdown"`
	GeneratedAt     time.Time               `json:"generatedAt"`
}

func (s *Service) Statistics(ctx context.Context, from, to time.Time) (*Statistics, error) {
	total, err := s.requests.CountCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("count requests: %w", err)
	}
	actions, err := s.recorder.ActionBreakdown(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("action breakdown: %w", err)
	}
	statuses, err := s.requests.StatusBreakdown(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("status breakdown: %w", err)
	}
	return &Statistics{
		TotalRequests:   total,
		ActionBreakdown: actions,
		StatusBreakdown: statuses,
		GeneratedAt:     requestcontext.Now(ctx),
	}, nil
}
