package deletion

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Update is the mutation applied when a request transitions. Zero-valued
// fields are left untouched; token clearing is explicit because consumed
// tokens must not survive redemption.
type Update struct {
	Status Status

	ClearParentToken bool
	ClearFinalToken  bool

	SetParentalConsentVerified bool

	SoftDeletedAt    *time.Time
	RecoveryDeadline *time.Time
	HardDeletedAt    *time.Time

	// Context, when set, replaces the stored context blob.
	Context *AdditionalContext

	UpdatedAt time.Time
}

// Store persists deletion requests. Transitions are guarded by the expected
// current status: implementations must apply the update only when the stored
// status matches, and return sentinel.ErrInvalidState otherwise. That is the
// whole concurrency model; no row locks, no retries.
type Store interface {
	// Create persists a new request. A user may hold at most one active
	// request; violating that returns sentinel.ErrConflict.
	Create(ctx context.Context, req *Request) error

	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)

	// GetActiveByUser returns the user's active request, or
	// sentinel.ErrNotFound when none exists.
	GetActiveByUser(ctx context.Context, userID uuid.UUID) (*Request, error)

	GetByParentToken(ctx context.Context, token string) (*Request, error)
	GetByFinalToken(ctx context.Context, token string) (*Request, error)

	// Transition applies update iff the stored status equals from.
	Transition(ctx context.Context, id uuid.UUID, from Status, update Update) error

	// AppendAnonymizationRecords stores the anonymization evidence written
	// during hard delete.
	AppendAnonymizationRecords(ctx context.Context, records []AnonymizationRecord) error

	// ListRecoveryExpired returns SOFT_DELETED requests whose recovery
	// deadline has passed. The hard delete sweeper consumes it.
	ListRecoveryExpired(ctx context.Context, now time.Time) ([]*Request, error)

	// Reporting reads over [from, to).
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
	StatusBreakdown(ctx context.Context, from, to time.Time) (map[Status]int, error)
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*Request, error)
}
