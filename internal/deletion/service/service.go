// Package service orchestrates the deletion request lifecycle over the
// account and request stores, recording every transition in the audit log.
package service

import (
	"log/slog"

	"erasure/internal/account"
	"erasure/internal/audit"
	"erasure/internal/deletion"
	"erasure/internal/platform/metrics"
	"erasure/pkg/platform/tx"
)

// Service implements the deletion request engine. All lifecycle deadlines
// are evaluated against the request-scoped clock (requestcontext.Now), and
// every cross-table mutation runs inside the transaction runner.
type Service struct {
	requests deletion.Store
	accounts account.Store
	recorder *audit.Recorder
	runner   tx.Runner
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(requests deletion.Store, accounts account.Store, recorder *audit.Recorder, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		requests: requests,
		accounts: accounts,
		recorder: recorder,
		runner:   runner,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) countTransition(status deletion.Status) {
	if s.metrics != nil {
		s.metrics.DeletionTransitions.WithLabelValues(string(status)).Inc()
	}
}
