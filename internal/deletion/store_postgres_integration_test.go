//go:build integration

package deletion_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"erasure/internal/deletion"
	"erasure/pkg/platform/sentinel"
	"erasure/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *deletion.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = deletion.NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "user_deletion_requests", "anonymization_log")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newRequest(userID uuid.UUID, status deletion.Status) *deletion.Request {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &deletion.Request{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    status,
		Reason:    "no longer needed",
		Source:    deletion.SourceSelfService,
		IPAddress: "203.0.113.7",
		UserAgent: "integration-test",
		Context:   deletion.AdditionalContext{Warnings: []string{"active subscription"}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *PostgresStoreSuite) TestCreateAndGetRoundtrip() {
	ctx := context.Background()

	req := s.newRequest(uuid.New(), deletion.StatusPending)
	req.FinalConfirmationToken = uuid.NewString()
	expiry := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Microsecond)
	req.FinalConfirmationExpiry = &expiry

	s.Require().NoError(s.store.Create(ctx, req))

	got, err := s.store.GetByID(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(req.UserID, got.UserID)
	s.Equal(deletion.StatusPending, got.Status)
	s.Equal(req.Reason, got.Reason)
	s.Equal(deletion.SourceSelfService, got.Source)
	s.Equal(req.FinalConfirmationToken, got.FinalConfirmationToken)
	s.Require().NotNil(got.FinalConfirmationExpiry)
	s.True(expiry.Equal(*got.FinalConfirmationExpiry))
	s.Equal(req.IPAddress, got.IPAddress)
	s.Equal([]string{"active subscription"}, got.Context.Warnings)
	s.Nil(got.SoftDeletedAt)
	s.Nil(got.HardDeletedAt)
}

func (s *PostgresStoreSuite) TestGetByIDNotFound() {
	_, err := s.store.GetByID(context.Background(), uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestSingleActiveRequestPerUser() {
	ctx := context.Background()
	userID := uuid.New()

	first := s.newRequest(userID, deletion.StatusPending)
	s.Require().NoError(s.store.Create(ctx, first))

	// The partial unique index rejects a second active request.
	second := s.newRequest(userID, deletion.StatusConfirmed)
	s.ErrorIs(s.store.Create(ctx, second), sentinel.ErrConflict)

	// A terminal request releases the slot.
	err := s.store.Transition(ctx, first.ID, deletion.StatusPending, deletion.Update{
		Status:    deletion.StatusCancelled,
		UpdatedAt: time.Now().UTC(),
	})
	s.Require().NoError(err)

	second = s.newRequest(userID, deletion.StatusPending)
	s.NoError(s.store.Create(ctx, second))
}

// TestConcurrentCreateSingleWinner verifies that concurrent creation for the
// same user results in exactly one success.
func (s *PostgresStoreSuite) TestConcurrentCreateSingleWinner() {
	ctx := context.Background()
	userID := uuid.New()
	const goroutines = 20

	var wg sync.WaitGroup
	var successCount atomic.Int32
	var conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := s.store.Create(ctx, s.newRequest(userID, deletion.StatusPending))
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrConflict) {
				conflictCount.Add(1)
			}
		}()
	}

	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one create should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should get a conflict")
}

func (s *PostgresStoreSuite) TestGetActiveByUser() {
	ctx := context.Background()
	userID := uuid.New()

	cancelled := s.newRequest(userID, deletion.StatusCancelled)
	s.Require().NoError(s.store.Create(ctx, cancelled))

	_, err := s.store.GetActiveByUser(ctx, userID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	active := s.newRequest(userID, deletion.StatusSoftDeleted)
	s.Require().NoError(s.store.Create(ctx, active))

	got, err := s.store.GetActiveByUser(ctx, userID)
	s.Require().NoError(err)
	s.Equal(active.ID, got.ID)
}

func (s *PostgresStoreSuite) TestTokenLookups() {
	ctx := context.Background()

	req := s.newRequest(uuid.New(), deletion.StatusParentalConsentRequired)
	req.ParentConfirmationToken = uuid.NewString()
	req.FinalConfirmationToken = uuid.NewString()
	s.Require().NoError(s.store.Create(ctx, req))

	byParent, err := s.store.GetByParentToken(ctx, req.ParentConfirmationToken)
	s.Require().NoError(err)
	s.Equal(req.ID, byParent.ID)

	byFinal, err := s.store.GetByFinalToken(ctx, req.FinalConfirmationToken)
	s.Require().NoError(err)
	s.Equal(req.ID, byFinal.ID)

	_, err = s.store.GetByParentToken(ctx, uuid.NewString())
	s.ErrorIs(err, sentinel.ErrNotFound)

	// Rows with NULL tokens must never match an empty lookup.
	_, err = s.store.GetByFinalToken(ctx, "")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestTransitionGuardsOnStatus() {
	ctx := context.Background()

	req := s.newRequest(uuid.New(), deletion.StatusConfirmed)
	req.FinalConfirmationToken = uuid.NewString()
	s.Require().NoError(s.store.Create(ctx, req))

	softAt := time.Now().UTC().Truncate(time.Microsecond)
	deadline := softAt.Add(deletion.RecoveryWindow)
	update := deletion.Update{
		Status:           deletion.StatusSoftDeleted,
		ClearFinalToken:  true,
		SoftDeletedAt:    &softAt,
		RecoveryDeadline: &deadline,
		UpdatedAt:        softAt,
	}

	// Wrong expected status: no rows move.
	err := s.store.Transition(ctx, req.ID, deletion.StatusPending, update)
	s.ErrorIs(err, sentinel.ErrInvalidState)

	s.Require().NoError(s.store.Transition(ctx, req.ID, deletion.StatusConfirmed, update))

	got, err := s.store.GetByID(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(deletion.StatusSoftDeleted, got.Status)
	s.Empty(got.FinalConfirmationToken)
	s.Require().NotNil(got.SoftDeletedAt)
	s.True(softAt.Equal(*got.SoftDeletedAt))
	s.Require().NotNil(got.RecoveryDeadline)
	s.True(deadline.Equal(*got.RecoveryDeadline))

	// Replaying the same transition fails: the status already moved.
	err = s.store.Transition(ctx, req.ID, deletion.StatusConfirmed, update)
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *PostgresStoreSuite) TestTransitionReplacesContext() {
	ctx := context.Background()

	req := s.newRequest(uuid.New(), deletion.StatusParentalConsentRequired)
	s.Require().NoError(s.store.Create(ctx, req))

	newContext := req.Context
	newContext.ParentInfo = &deletion.ParentInfo{Name: "Jordan Doe", Email: "jordan@example.com"}
	err := s.store.Transition(ctx, req.ID, deletion.StatusParentalConsentRequired, deletion.Update{
		Status:                     deletion.StatusConfirmed,
		SetParentalConsentVerified: true,
		Context:                    &newContext,
		UpdatedAt:                  time.Now().UTC(),
	})
	s.Require().NoError(err)

	got, err := s.store.GetByID(ctx, req.ID)
	s.Require().NoError(err)
	s.True(got.ParentalConsentVerified)
	s.Require().NotNil(got.Context.ParentInfo)
	s.Equal("jordan@example.com", got.Context.ParentInfo.Email)
	s.Equal([]string{"active subscription"}, got.Context.Warnings)
}

func (s *PostgresStoreSuite) TestListRecoveryExpired() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	expired := s.newRequest(uuid.New(), deletion.StatusSoftDeleted)
	past := now.Add(-time.Hour)
	expired.RecoveryDeadline = &past
	s.Require().NoError(s.store.Create(ctx, expired))

	pending := s.newRequest(uuid.New(), deletion.StatusSoftDeleted)
	future := now.Add(time.Hour)
	pending.RecoveryDeadline = &future
	s.Require().NoError(s.store.Create(ctx, pending))

	notSoftDeleted := s.newRequest(uuid.New(), deletion.StatusCancelled)
	notSoftDeleted.RecoveryDeadline = &past
	s.Require().NoError(s.store.Create(ctx, notSoftDeleted))

	due, err := s.store.ListRecoveryExpired(ctx, now)
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	s.Equal(expired.ID, due[0].ID)
}

func (s *PostgresStoreSuite) TestReportingReads() {
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	statuses := []deletion.Status{
		deletion.StatusPending,
		deletion.StatusHardDeleted,
		deletion.StatusHardDeleted,
	}
	for i, status := range statuses {
		req := s.newRequest(uuid.New(), status)
		req.CreatedAt = base.Add(time.Duration(i) * 24 * time.Hour)
		req.UpdatedAt = req.CreatedAt
		s.Require().NoError(s.store.Create(ctx, req))
	}

	// Outside the window, same user space.
	outside := s.newRequest(uuid.New(), deletion.StatusPending)
	outside.CreatedAt = base.Add(30 * 24 * time.Hour)
	outside.UpdatedAt = outside.CreatedAt
	s.Require().NoError(s.store.Create(ctx, outside))

	from, to := base, base.Add(7*24*time.Hour)

	count, err := s.store.CountCreatedBetween(ctx, from, to)
	s.Require().NoError(err)
	s.Equal(3, count)

	breakdown, err := s.store.StatusBreakdown(ctx, from, to)
	s.Require().NoError(err)
	s.Equal(1, breakdown[deletion.StatusPending])
	s.Equal(2, breakdown[deletion.StatusHardDeleted])

	listed, err := s.store.ListCreatedBetween(ctx, from, to)
	s.Require().NoError(err)
	s.Require().Len(listed, 3)
	for i := 1; i < len(listed); i++ {
		s.False(listed[i].CreatedAt.Before(listed[i-1].CreatedAt), "ascending by created_at")
	}

	// Window boundaries are half-open.
	count, err = s.store.CountCreatedBetween(ctx, from, base.Add(24*time.Hour))
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *PostgresStoreSuite) TestAnonymizationRecordsPersist() {
	ctx := context.Background()
	requestID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	records := []deletion.AnonymizationRecord{
		{
			ID:                uuid.New(),
			DeletionRequestID: requestID,
			TableName:         "orders",
			RecordID:          "user-scope",
			AnonymizedFields:  map[string]any{"customer_email": "deleted@example.invalid"},
			RetainedFields:    []string{"amount_cents", "status"},
			Method:            deletion.MethodPseudonymization,
			RetentionReason:   "financial records",
			RetentionPeriod:   "7 years",
			LegalBasis:        "legal obligation",
			ProcessedBy:       "system",
			VerificationHash:  "abc123",
			CreatedAt:         now,
		},
		{
			ID:                uuid.New(),
			DeletionRequestID: requestID,
			TableName:         "stories",
			RecordID:          "user-scope",
			AnonymizedFields:  map[string]any{"author_name": "Anonymous"},
			RetainedFields:    []string{"title", "content"},
			Method:            deletion.MethodPseudonymization,
			RetentionReason:   "published content",
			RetentionPeriod:   "indefinite",
			LegalBasis:        "legitimate interest",
			ProcessedBy:       "system",
			VerificationHash:  "def456",
			CreatedAt:         now,
		},
	}
	s.Require().NoError(s.store.AppendAnonymizationRecords(ctx, records))

	var count int
	err := s.postgres.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM anonymization_log WHERE deletion_request_id = $1`, requestID,
	).Scan(&count)
	s.Require().NoError(err)
	s.Equal(2, count)

	var method, basis string
	err = s.postgres.DB.QueryRowContext(ctx,
		`SELECT method, legal_basis FROM anonymization_log WHERE table_name = 'orders'`,
	).Scan(&method, &basis)
	s.Require().NoError(err)
	s.Equal(deletion.MethodPseudonymization, method)
	s.Equal("legal obligation", basis)
}
