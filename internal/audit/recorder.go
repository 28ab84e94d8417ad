package audit

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"erasure/internal/platform/metrics"
	"erasure/pkg/requestcontext"
)

// CriticalPublisher fans critical entries out to an external stream (Kafka in
// production). Publishing is best effort: the log write has already committed
// when the publisher runs.
type CriticalPublisher interface {
	PublishCritical(ctx context.Context, entry *Entry) error
}

// Recorder writes audit entries. Every entry gets an integrity hash before it
// is persisted; critical entries are additionally logged and published for
// real-time monitoring.
type Recorder struct {
	store     Store
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher CriticalPublisher
	observer  func(ctx context.Context, entry *Entry)
}

// SetObserver registers a callback invoked after each persisted entry. The
// monitoring layer hooks in here. Set once during wiring, before traffic.
func (r *Recorder) SetObserver(fn func(ctx context.Context, entry *Entry)) {
	r.observer = fn
}

type skipObservationKey struct{}

// WithoutObservation marks a context so entries recorded under it bypass the
// observer. The monitor uses it for its own audit writes, which would
// otherwise feed back into rule evaluation.
func WithoutObservation(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipObservationKey{}, true)
}

func observationSuppressed(ctx context.Context) bool {
	v, _ := ctx.Value(skipObservationKey{}).(bool)
	return v
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

func WithCriticalPublisher(p CriticalPublisher) Option {
	return func(r *Recorder) { r.publisher = p }
}

func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record persists a new audit entry. Client metadata falls back to the
// request context when the caller does not pass it explicitly, and the
// timestamp comes from the context clock so tests stay deterministic.
func (r *Recorder) Record(ctx context.Context, params EntryParams) (*Entry, error) {
	entry := &Entry{
		ID:                uuid.New(),
		DeletionRequestID: params.DeletionRequestID,
		Action:            params.Action,
		PerformedBy:       params.PerformedBy,
		PerformedByRole:   params.PerformedByRole,
		PerformedByType:   params.PerformedByType,
		TableName:         params.TableName,
		RecordID:          params.RecordID,
		RecordCount:       params.RecordCount,
		PreviousStatus:    params.PreviousStatus,
		NewStatus:         params.NewStatus,
		ActionDetails:     params.Details,
		CreatedAt:         requestcontext.Now(ctx),
	}

	rc := params.Context
	if rc == nil {
		rc = &Context{
			IPAddress: requestcontext.ClientIP(ctx),
			UserAgent: requestcontext.UserAgent(ctx),
			SessionID: requestcontext.SessionID(ctx),
			Device:    requestcontext.Device(ctx),
		}
	}
	entry.IPAddress = rc.IPAddress
	entry.UserAgent = rc.UserAgent
	entry.SessionID = rc.SessionID

	meta := map[string]any{}
	if params.Metadata != nil {
		meta = maps.Clone(params.Metadata)
	}
	if rc.Device != "" {
		meta["device"] = rc.Device
	}
	if rc.Fingerprint != "" {
		meta["fingerprint"] = rc.Fingerprint
	}

	hash, err := ComputeIntegrityHash(entry)
	if err != nil {
		return nil, err
	}
	meta[MetadataKeyIntegrityHash] = hash
	entry.Metadata = meta

	if err := r.store.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("record audit entry: %w", err)
	}

	if r.metrics != nil {
		r.metrics.AuditEntries.WithLabelValues(string(entry.Action)).Inc()
	}

	if entry.Action.Critical() {
		r.logger.WarnContext(ctx, "critical audit action",
			"audit_entry_id", entry.ID,
			"deletion_request_id", entry.DeletionRequestID,
			"action", entry.Action,
			"performed_by_type", entry.PerformedByType,
		)
		if r.publisher != nil {
			if err := r.publisher.PublishCritical(ctx, entry); err != nil {
				r.logger.ErrorContext(ctx, "critical audit publish failed",
					"audit_entry_id", entry.ID, "error", err)
			}
		}
	}

	if r.observer != nil && !observationSuppressed(ctx) {
		r.observer(ctx, entry)
	}

	return entry, nil
}

// Entries returns the audit trail for a deletion request, newest first.
func (r *Recorder) Entries(ctx context.Context, deletionRequestID uuid.UUID, limit int) ([]*Entry, error) {
	return r.store.ListByRequest(ctx, deletionRequestID, limit)
}

// ActionBreakdown exposes grouped entry counts for statistics and reports.
func (r *Recorder) ActionBreakdown(ctx context.Context, from, to time.Time) (map[Action]int, error) {
	return r.store.ActionBreakdown(ctx, from, to)
}

// EntriesBetween exposes the raw entries of a reporting window.
func (r *Recorder) EntriesBetween(ctx context.Context, from, to time.Time) ([]*Entry, error) {
	return r.store.ListBetween(ctx, from, to)
}
