package service

import (
	"context"
	"log/slog"
	"time"

	"erasure/internal/audit"
	"erasure/pkg/requestcontext"
)

// Sweeper hard-deletes soft-deleted accounts whose recovery deadline has
// passed. One sweep per interval; a failing request is recorded as a
// SYSTEM_ERROR audit entry and retried on the next sweep.
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(service *Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{service: service, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. Exported so tests and admin tooling can trigger it
// directly.
func (w *Sweeper) Sweep(ctx context.Context) {
	expired, err := w.service.requests.ListRecoveryExpired(ctx, requestcontext.Now(ctx))
	if err != nil {
		w.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
		return
	}
	for _, req := range expired {
		if _, err := w.service.HardDelete(ctx, req.ID, "retention_sweeper"); err != nil {
			w.logger.ErrorContext(ctx, "scheduled hard delete failed",
				"deletion_request_id", req.ID, "error", err)
			if _, recErr := w.service.recorder.Record(ctx, audit.EntryParams{
				DeletionRequestID: req.ID,
				Action:            audit.ActionSystemError,
				PerformedBy:       "retention_sweeper",
				PerformedByType:   audit.ActorAutomated,
				Details:           "scheduled hard delete failed: " + err.Error(),
			}); recErr != nil {
				w.logger.ErrorContext(ctx, "failed to record sweep error",
					"deletion_request_id", req.ID, "error", recErr)
			}
		}
	}
}
