package account

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence boundary for account records. Postgres
// implementations honour a context-carried transaction (pkg/platform/tx) so
// the deletion engine can run multi-table mutations atomically. Absent rows
// surface as sentinel.ErrNotFound.
type Store interface {
	// Reads used by deletion validation.
	FindUser(ctx context.Context, userID uuid.UUID) (*User, error)
	FindProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	FindVolunteerProfile(ctx context.Context, userID uuid.UUID) (*VolunteerProfile, error)
	CountOrdersByStatus(ctx context.Context, userID uuid.UUID, statuses []OrderStatus) (int, error)
	CountActiveRecurringDonations(ctx context.Context, userID uuid.UUID) (int, error)
	CountActiveClasses(ctx context.Context, teacherID uuid.UUID) (int, error)

	// Soft delete / recovery.
	MarkDeleted(ctx context.Context, userID, deletionRequestID uuid.UUID, at time.Time) error
	ClearDeleted(ctx context.Context, userID uuid.UUID) error

	// Hard delete: immediate removal of personal data.
	DeleteProfile(ctx context.Context, userID uuid.UUID) error
	DeleteSessions(ctx context.Context, userID uuid.UUID) error
	DeleteOAuthAccounts(ctx context.Context, userID uuid.UUID) error

	// Hard delete: anonymization of retained data. Each returns the number
	// of rows touched.
	AnonymizeOrders(ctx context.Context, userID uuid.UUID, email, name string) (int, error)
	AnonymizeStories(ctx context.Context, userID uuid.UUID, authorName string) (int, error)
	GeneralizeVolunteerProfile(ctx context.Context, userID uuid.UUID, bio string) (int, error)

	// Hard delete: the user row goes last, after all dependent writes.
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}
