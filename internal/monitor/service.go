package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"erasure/internal/audit"
	"erasure/internal/deletion"
	"erasure/internal/platform/metrics"
	dErrors "erasure/pkg/domain-errors"
	"erasure/pkg/platform/sentinel"
	"erasure/pkg/requestcontext"
)

// Channel delivers an alert over one medium. Implementations must be safe
// for concurrent use.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert *Alert) error
}

// Service evaluates every new audit entry against the rule set. A failing
// rule never stops the others, and a failing notification channel never
// stops the rest of the fan-out: monitoring is best effort by construction.
type Service struct {
	rules    []Rule
	alerts   AlertStore
	auditLog audit.Store
	requests deletion.Store
	recorder *audit.Recorder
	channels map[string]Channel
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithRules(rules []Rule) Option {
	return func(s *Service) {
		if len(rules) > 0 {
			s.rules = rules
		}
	}
}

func WithChannels(channels ...Channel) Option {
	return func(s *Service) {
		for _, ch := range channels {
			s.channels[ch.Name()] = ch
		}
	}
}

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

func NewService(alerts AlertStore, auditLog audit.Store, requests deletion.Store, recorder *audit.Recorder, opts ...Option) *Service {
	s := &Service{
		rules:    DefaultRules(),
		alerts:   alerts,
		auditLog: auditLog,
		requests: requests,
		recorder: recorder,
		channels: make(map[string]Channel),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rules exposes the loaded rule set.
func (s *Service) Rules() []Rule {
	return append([]Rule(nil), s.rules...)
}

// ProcessEntry evaluates one new audit entry against every enabled rule.
func (s *Service) ProcessEntry(ctx context.Context, entry *audit.Entry) {
	now := requestcontext.Now(ctx)
	for _, rule := range s.rules {
		if !rule.Enabled {
			continue
		}
		matched, err := s.evaluate(ctx, rule, entry, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "alert rule evaluation failed",
				"rule_id", rule.ID, "audit_entry_id", entry.ID, "error", err)
			continue
		}
		if matched {
			s.trigger(ctx, rule, entry, now)
		}
	}
}

func (s *Service) trigger(ctx context.Context, rule Rule, entry *audit.Entry, now time.Time) {
	alert := &Alert{
		ID:          fmt.Sprintf("%s_%d", rule.ID, now.UnixMilli()),
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Severity:    rule.Severity,
		Title:       "Security Alert: " + rule.Name,
		Description: describeAlert(rule, entry),
		Metadata: map[string]any{
			"auditLogId":        entry.ID.String(),
			"deletionRequestId": entry.DeletionRequestID.String(),
			"action":            string(entry.Action),
			"ipAddress":         maskIP(entry.IPAddress),
			"triggeredBy":       rule.Condition,
		},
		TriggeredAt: now,
	}

	if err := s.alerts.Save(ctx, alert); err != nil {
		s.logger.ErrorContext(ctx, "failed to store alert",
			"alert_id", alert.ID, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.AlertsTriggered.WithLabelValues(string(alert.Severity)).Inc()
	}

	if _, err := s.recorder.Record(audit.WithoutObservation(ctx), audit.EntryParams{
		DeletionRequestID: entry.DeletionRequestID,
		Action:            audit.ActionSystemError,
		PerformedByType:   audit.ActorAutomated,
		Details:           "security alert triggered: " + rule.Name,
		Metadata: map[string]any{
			"alertId":     alert.ID,
			"ruleName":    rule.Name,
			"severity":    string(rule.Severity),
			"triggeredBy": entry.ID.String(),
		},
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to audit alert",
			"alert_id", alert.ID, "error", err)
	}

	s.notify(ctx, alert, rule.NotificationChannels)

	s.logger.WarnContext(ctx, "security alert",
		"alert_id", alert.ID,
		"rule_id", rule.ID,
		"severity", alert.Severity,
		"audit_entry_id", entry.ID,
	)
}

// notify fans the alert out to every configured channel. Each channel fails
// independently; a dead pager must not silence Slack.
func (s *Service) notify(ctx context.Context, alert *Alert, channelNames []string) {
	for _, name := range channelNames {
		ch, ok := s.channels[name]
		if !ok {
			s.logger.WarnContext(ctx, "unknown notification channel", "channel", name)
			continue
		}
		if err := ch.Send(ctx, alert); err != nil {
			if s.metrics != nil {
				s.metrics.NotificationFailures.WithLabelValues(name).Inc()
			}
			s.logger.ErrorContext(ctx, "notification failed",
				"channel", name, "alert_id", alert.ID, "error", err)
		}
	}
}

func describeAlert(rule Rule, entry *audit.Entry) string {
	requestID := entry.DeletionRequestID
	switch rule.ID {
	case "multiple_deletion_requests":
		return fmt.Sprintf("Multiple deletion requests detected. Last request %s at %s.",
			requestID, entry.CreatedAt.UTC().Format(time.RFC3339))
	case "failed_deletions":
		return fmt.Sprintf("Deletion process failure detected for request %s. Action: %s",
			requestID, entry.Action)
	case "suspicious_ip_activity":
		return fmt.Sprintf("Suspicious activity detected from IP address. Multiple deletion requests, last for request %s.", requestID)
	case "integrity_violations":
		return fmt.Sprintf("Audit log integrity violation detected for deletion request %s.", requestID)
	case "parental_consent_timeout":
		return fmt.Sprintf("Parental consent for deletion request %s is approaching expiry.", requestID)
	default:
		return "Security alert triggered: " + rule.Description
	}
}

// maskIP keeps only a prefix of the address in alert metadata.
func maskIP(ip string) string {
	if ip == "" {
		return ""
	}
	if len(ip) <= 8 {
		return ip + "..."
	}
	return ip[:8] + "..."
}

// ActiveAlerts returns unresolved alerts ordered by severity, then recency.
func (s *Service) ActiveAlerts(ctx context.Context) ([]*Alert, error) {
	alerts, err := s.alerts.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	SortAlerts(alerts)
	return alerts, nil
}

// Resolve marks an alert as handled.
func (s *Service) Resolve(ctx context.Context, alertID, resolvedBy, notes string) (*Alert, error) {
	alert, err := s.alerts.Get(ctx, alertID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "alert not found")
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	if alert.Resolved {
		return nil, dErrors.New(dErrors.CodeInvalidState, "alert already resolved")
	}

	now := requestcontext.Now(ctx)
	alert.Resolved = true
	alert.ResolvedAt = &now
	alert.ResolvedBy = resolvedBy
	alert.Notes = notes
	if err := s.alerts.Save(ctx, alert); err != nil {
		return nil, fmt.Errorf("resolve alert: %w", err)
	}

	s.logger.InfoContext(ctx, "alert resolved",
		"alert_id", alertID, "resolved_by", resolvedBy)
	return alert, nil
}

// Statistics summarizes alert volume over the trailing window.
func (s *Service) Statistics(ctx context.Context, window time.Duration) (*Statistics, error) {
	since := requestcontext.Now(ctx).Add(-window)
	alerts, err := s.alerts.ListSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("alert statistics: %w", err)
	}

	stats := &Statistics{
		TotalAlerts: len(alerts),
		BySeverity:  make(map[Severity]int),
		ByRule:      make(map[string]int),
		Window:      window.String(),
	}
	for _, alert := range alerts {
		if alert.Resolved {
			stats.ResolvedAlerts++
		} else {
			stats.ActiveAlerts++
		}
		stats.BySeverity[alert.Severity]++
		stats.ByRule[alert.RuleName]++
	}
	return stats, nil
}
