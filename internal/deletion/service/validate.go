package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"erasure/internal/account"
	"erasure/internal/coppa"
	"erasure/internal/deletion"
	"erasure/pkg/platform/sentinel"
	"erasure/pkg/requestcontext"
)

// Validate checks whether a user may request deletion. It never mutates
// state: blockers and warnings come back as data so callers can present them,
// and Initiate re-runs it before creating anything.
func (s *Service) Validate(ctx context.Context, userID uuid.UUID) (*deletion.ValidationResult, error) {
	user, err := s.accounts.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &deletion.ValidationResult{
				Blockers: []string{"user not found"},
				Warnings: []string{},
			}, nil
		}
		return nil, fmt.Errorf("validate deletion: %w", err)
	}

	result := &deletion.ValidationResult{
		Blockers: []string{},
		Warnings: []string{},
	}

	if _, err := s.requests.GetActiveByUser(ctx, userID); err == nil {
		result.Blockers = append(result.Blockers, "active deletion request already exists")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("check active request: %w", err)
	}

	openOrders, err := s.accounts.CountOrdersByStatus(ctx, userID, []account.OrderStatus{account.OrderPending, account.OrderProcessing})
	if err != nil {
		return nil, fmt.Errorf("check open orders: %w", err)
	}
	if openOrders > 0 {
		result.Blockers = append(result.Blockers, "active orders must be completed or cancelled first")
	}

	donations, err := s.accounts.CountActiveRecurringDonations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check recurring donations: %w", err)
	}
	if donations > 0 {
		result.Warnings = append(result.Warnings, "active recurring donations will be cancelled")
	}

	volunteer, err := s.accounts.FindVolunteerProfile(ctx, userID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("check volunteer profile: %w", err)
	}
	if volunteer != nil && volunteer.PendingApplications > 0 {
		result.Warnings = append(result.Warnings, "active volunteer applications will be transferred or cancelled")
		result.RequiresReview = true
	}

	profile, err := s.accounts.FindProfile(ctx, userID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("check profile: %w", err)
	}
	if profile != nil && profile.DateOfBirth != nil {
		if coppa.IsMinor(*profile.DateOfBirth, requestcontext.Now(ctx)) {
			result.RequiresParentalConsent = true
			result.Warnings = append(result.Warnings, "parental consent required for users under 13")
		}
	}

	if user.Role == account.RoleTeacher || user.Role == account.RoleInstitution {
		classes, err := s.accounts.CountActiveClasses(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("check active classes: %w", err)
		}
		if classes > 0 {
			result.Warnings = append(result.Warnings, "active classes will need to be transferred to another educator")
			result.RequiresReview = true
		}
	}

	result.CanDelete = len(result.Blockers) == 0
	return result, nil
}
