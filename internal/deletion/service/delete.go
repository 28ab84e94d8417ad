package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"erasure/internal/audit"
	"erasure/internal/deletion"
	dErrors "erasure/pkg/domain-errors"
	"erasure/pkg/platform/sentinel"
	"erasure/pkg/requestcontext"
)

// SoftDelete suspends the account of a CONFIRMED request. The user row and
// the request transition inside one transaction; the account stays fully
// recoverable until the recovery deadline.
func (s *Service) SoftDelete(ctx context.Context, requestID uuid.UUID, performedBy string) (*deletion.Request, error) {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != deletion.StatusConfirmed {
		return nil, dErrors.Newf(dErrors.CodeInvalidState,
			"cannot perform soft delete: current status: %s", req.Status)
	}

	now := requestcontext.Now(ctx)
	deadline := now.Add(deletion.RecoveryWindow)

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.accounts.MarkDeleted(ctx, req.UserID, requestID, now); err != nil {
			return fmt.Errorf("mark user deleted: %w", err)
		}
		update := deletion.Update{
			Status:           deletion.StatusSoftDeleted,
			SoftDeletedAt:    &now,
			RecoveryDeadline: &deadline,
			UpdatedAt:        now,
		}
		return s.requests.Transition(ctx, requestID, deletion.StatusConfirmed, update)
	})
	if err != nil {
		return nil, s.invalidState(ctx, requestID, "perform soft delete", err)
	}
	s.countTransition(deletion.StatusSoftDeleted)

	if _, err := s.recorder.Record(ctx, audit.EntryParams{
		DeletionRequestID: requestID,
		Action:            audit.ActionSoftDeleteExecuted,
		PerformedBy:       performedBy,
		PerformedByType:   audit.ActorSystem,
		PreviousStatus:    string(deletion.StatusConfirmed),
		NewStatus:         string(deletion.StatusSoftDeleted),
		Details:           fmt.Sprintf("account soft deleted, recovery deadline: %s", deadline.UTC().Format("2006-01-02T15:04:05Z07:00")),
		Metadata: map[string]any{
			"recoveryDeadline": deadline.UTC(),
			"softDeletedAt":    now.UTC(),
		},
	}); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "account soft deleted",
		"deletion_request_id", requestID,
		"user_id", req.UserID,
		"recovery_deadline", deadline,
	)

	return s.requests.GetByID(ctx, requestID)
}

// Recover restores a soft-deleted account before its recovery deadline.
func (s *Service) Recover(ctx context.Context, userID uuid.UUID, performedBy string) (*deletion.Request, error) {
	req, err := s.requests.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no active deletion request found")
		}
		return nil, fmt.Errorf("recover account: %w", err)
	}
	if req.Status != deletion.StatusSoftDeleted {
		return nil, dErrors.Newf(dErrors.CodeInvalidState,
			"cannot recover account: current status: %s", req.Status)
	}

	now := requestcontext.Now(ctx)
	if req.RecoveryDeadline == nil || req.RecoveryDeadline.Before(now) {
		return nil, dErrors.New(dErrors.CodeExpired, "recovery period has expired")
	}

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.accounts.ClearDeleted(ctx, userID); err != nil {
			return fmt.Errorf("restore user: %w", err)
		}
		update := deletion.Update{
			Status:    deletion.StatusRecovered,
			UpdatedAt: now,
		}
		return s.requests.Transition(ctx, req.ID, deletion.StatusSoftDeleted, update)
	})
	if err != nil {
		return nil, s.invalidState(ctx, req.ID, "recover account", err)
	}
	s.countTransition(deletion.StatusRecovered)

	daysLeft := int(math.Ceil(req.RecoveryDeadline.Sub(now).Hours() / 24))
	if _, err := s.recorder.Record(ctx, audit.EntryParams{
		DeletionRequestID: req.ID,
		Action:            audit.ActionAccountRecovered,
		PerformedBy:       performedBy,
		PerformedByType:   audit.ActorUser,
		PreviousStatus:    string(deletion.StatusSoftDeleted),
		NewStatus:         string(deletion.StatusRecovered),
		Details:           "account recovered during soft delete period",
		Metadata: map[string]any{
			"recoveredAt":         now.UTC(),
			"daysUntilHardDelete": daysLeft,
		},
	}); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "account recovered",
		"deletion_request_id", req.ID,
		"user_id", userID,
	)

	return s.requests.GetByID(ctx, req.ID)
}

// CanRecover reports whether the user has a soft-deleted account still
// inside its recovery window.
func (s *Service) CanRecover(ctx context.Context, userID uuid.UUID) (bool, error) {
	req, err := s.requests.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check recovery: %w", err)
	}
	if req.Status != deletion.StatusSoftDeleted || req.RecoveryDeadline == nil {
		return false, nil
	}
	return req.RecoveryDeadline.After(requestcontext.Now(ctx)), nil
}

// HardDelete permanently removes the account of a SOFT_DELETED request.
// Everything happens in one transaction: personal data is deleted, retained
// data is anonymized with documented legal bases, and the user row goes
// last. The operation is irreversible; a second call fails the status
// precondition.
func (s *Service) HardDelete(ctx context.Context, requestID uuid.UUID, performedBy string) (*deletion.Request, error) {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != deletion.StatusSoftDeleted {
		return nil, dErrors.Newf(dErrors.CodeInvalidState,
			"cannot perform hard delete: current status: %s", req.Status)
	}

	now := requestcontext.Now(ctx)
	var records []deletion.AnonymizationRecord

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		records, err = s.anonymizeUserData(ctx, req.UserID, requestID)
		if err != nil {
			return err
		}
		update := deletion.Update{
			Status:        deletion.StatusHardDeleted,
			HardDeletedAt: &now,
			UpdatedAt:     now,
		}
		return s.requests.Transition(ctx, requestID, deletion.StatusSoftDeleted, update)
	})
	if err != nil {
		return nil, s.invalidState(ctx, requestID, "perform hard delete", err)
	}
	s.countTransition(deletion.StatusHardDeleted)
	if s.metrics != nil {
		s.metrics.HardDeletes.Inc()
	}

	if _, err := s.recorder.Record(ctx, audit.EntryParams{
		DeletionRequestID: requestID,
		Action:            audit.ActionHardDeleteExecuted,
		PerformedBy:       performedBy,
		PerformedByType:   audit.ActorSystem,
		PreviousStatus:    string(deletion.StatusSoftDeleted),
		NewStatus:         string(deletion.StatusHardDeleted),
		Details:           "account permanently deleted with data anonymization",
		Metadata: map[string]any{
			"hardDeletedAt":  now.UTC(),
			"dataAnonymized": true,
		},
	}); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "account hard deleted",
		"deletion_request_id", requestID,
		"user_id", req.UserID,
		"anonymized_tables", len(records),
	)

	return s.requests.GetByID(ctx, requestID)
}
