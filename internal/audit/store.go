package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists audit entries. The log is append-only: there is no update
// and no delete, and implementations must not expose either.
type Store interface {
	Append(ctx context.Context, entry *Entry) error

	// ListByRequest returns the entries for a deletion request, newest
	// first. A limit of 0 returns all entries.
	ListByRequest(ctx context.Context, deletionRequestID uuid.UUID, limit int) ([]*Entry, error)

	// ListBetween returns all entries created in [from, to), oldest first.
	// Reporting and integrity sweeps use it.
	ListBetween(ctx context.Context, from, to time.Time) ([]*Entry, error)

	// CountByActionSince counts entries with the given action created at or
	// after since. Drives threshold-based alert rules.
	CountByActionSince(ctx context.Context, action Action, since time.Time) (int, error)

	// CountByIPSince counts entries with the given action from a single IP
	// created at or after since. Drives pattern-based alert rules.
	CountByIPSince(ctx context.Context, ip string, action Action, since time.Time) (int, error)

	// ActionBreakdown groups entry counts by action over [from, to).
	ActionBreakdown(ctx context.Context, from, to time.Time) (map[Action]int, error)
}
