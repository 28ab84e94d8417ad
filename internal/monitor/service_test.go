package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"erasure/internal/audit"
	"erasure/internal/deletion"
	dErrors "erasure/pkg/domain-errors"
	"erasure/pkg/requestcontext"
)

type stubChannel struct {
	mu   sync.Mutex
	name string
	err  error
	sent []*Alert
}

func (c *stubChannel) Name() string { return c.name }

func (c *stubChannel) Send(_ context.Context, alert *Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, alert)
	return nil
}

func (c *stubChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type MonitorSuite struct {
	suite.Suite

	alerts   *MemoryAlertStore
	auditLog *audit.MemoryStore
	requests *deletion.MemoryStore
	recorder *audit.Recorder
	email    *stubChannel
	slack    *stubChannel

	base time.Time
	ctx  context.Context
}

func TestMonitorSuite(t *testing.T) {
	suite.Run(t, new(MonitorSuite))
}

func (s *MonitorSuite) SetupTest() {
	s.alerts = NewMemoryAlertStore()
	s.auditLog = audit.NewMemoryStore()
	s.requests = deletion.NewMemoryStore()
	s.recorder = audit.NewRecorder(s.auditLog, audit.WithLogger(slog.New(slog.DiscardHandler)))
	s.email = &stubChannel{name: "email"}
	s.slack = &stubChannel{name: "slack"}

	s.base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.base)
}

func (s *MonitorSuite) newService(rules []Rule, channels ...Channel) *Service {
	opts := []Option{
		WithLogger(slog.New(slog.DiscardHandler)),
		WithChannels(channels...),
	}
	if rules != nil {
		opts = append(opts, WithRules(rules))
	}
	return NewService(s.alerts, s.auditLog, s.requests, s.recorder, opts...)
}

func (s *MonitorSuite) record(action audit.Action, ip string) *audit.Entry {
	entry, err := s.recorder.Record(s.ctx, audit.EntryParams{
		DeletionRequestID: uuid.New(),
		Action:            action,
		PerformedBy:       "user-1",
		PerformedByType:   audit.ActorUser,
		Context:           &audit.Context{IPAddress: ip},
	})
	s.Require().NoError(err)
	return entry
}

func countRule(action audit.Action, threshold int) Rule {
	return Rule{
		ID:       "test_count",
		Name:     "Test Count",
		Severity: SeverityMedium,
		Enabled:  true,
		Condition: Condition{
			Type:       ConditionCount,
			Action:     string(action),
			TimeWindow: 60,
			Threshold:  threshold,
			Comparison: CompareGreaterThan,
		},
		NotificationChannels: []string{"email"},
	}
}

func (s *MonitorSuite) TestCountRuleThreshold() {
	svc := s.newService([]Rule{countRule(audit.ActionRequestCreated, 5)}, s.email)

	var last *audit.Entry
	for i := 0; i < 5; i++ {
		last = s.record(audit.ActionRequestCreated, "")
	}
	svc.ProcessEntry(s.ctx, last)

	active, err := svc.ActiveAlerts(s.ctx)
	s.Require().NoError(err)
	s.Empty(active, "exactly at threshold must not trigger GREATER_THAN")

	last = s.record(audit.ActionRequestCreated, "")
	svc.ProcessEntry(s.ctx, last)

	active, err = svc.ActiveAlerts(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal("test_count", active[0].RuleID)
	s.Equal(1, s.email.count())
}

func (s *MonitorSuite) TestCountRuleIgnoresOldEntries() {
	svc := s.newService([]Rule{countRule(audit.ActionRequestCreated, 2)}, s.email)

	old := requestcontext.WithTime(context.Background(), s.base.Add(-2*time.Hour))
	for i := 0; i < 5; i++ {
		_, err := s.recorder.Record(old, audit.EntryParams{
			DeletionRequestID: uuid.New(),
			Action:            audit.ActionRequestCreated,
			PerformedByType:   audit.ActorUser,
		})
		s.Require().NoError(err)
	}

	entry := s.record(audit.ActionRequestCreated, "")
	svc.ProcessEntry(s.ctx, entry)

	active, err := svc.ActiveAlerts(s.ctx)
	s.Require().NoError(err)
	s.Empty(active)
}

func (s *MonitorSuite) TestSameIPPattern() {
	rule := Rule{
		ID:       "suspicious_ip_activity",
		Name:     "Suspicious IP Activity",
		Severity: SeverityHigh,
		Enabled:  true,
		Condition: Condition{
			Type:       ConditionPattern,
			Pattern:    PatternSameIP,
			TimeWindow: 30,
			Threshold:  3,
		},
		NotificationChannels: []string{"email"},
	}
	svc := s.newService([]Rule{rule}, s.email)

	s.record(audit.ActionRequestCreated, "203.0.113.9")
	entry := s.record(audit.ActionRequestCreated, "203.0.113.9")
	svc.ProcessEntry(s.ctx, entry)

	active, err := svc.ActiveAlerts(s.ctx)
	s.Require().NoError(err)
	s.Empty(active, "two requests from one IP stay under the threshold")

	entry = s.record(audit.ActionRequestCreated, "203.0.113.9")
	svc.ProcessEntry(s.ctx, entry)

	active, err = svc.ActiveAlerts(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal("203.0.11...", active[0].Metadata["ipAddress"], "alert metadata must mask the IP")
}

func (s *MonitorSuite) TestIntegrityViolationRule() {
	rule := Rule{
		ID:        "integrity_violations",
		Name:      "Audit Log Integrity Violations",
		Severity:  SeverityCritical,
		Enabled:   true,
		Condition: Condition{Type: ConditionIntegrityViolation, Threshold: 1},
	}
	svc := s.newService([]Rule{rule})

	clean := s.record(audit.ActionRequestCreated, "")
	svc.ProcessEntry(s.ctx, clean)
	active, err := svc.ActiveAlerts(s.ctx)
	s.Require().NoError(err)
	s.Empty(active)

	violation, err := s.recorder.Record(s.ctx, audit.EntryParams{
		DeletionRequestID: uuid.New(),
		Action:            audit.ActionSystemError,
		PerformedByType:   audit.ActorAutomated,
		Metadata:          map[string]any{audit.MetadataKeyIntegrityViolation: true},
	})
	s.Require().NoError(err)
	svc.ProcessEntry(s.ctx, violation)

	active, err = svc.ActiveAlerts(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(SeverityCritical, active[0].Severity)
}

func (s *MonitorSuite) TestParentalConsentTimeout() {
	rule := Rule{
		ID:        "parental_consent_timeout",
		Name:      "Parental Consent Timeout",
		Severity:  SeverityMedium,
		Enabled:   true,
		Condition: Condition{Type: ConditionTimeThreshold, TimeWindow: 24},
	}
	svc := s.newService([]Rule{rule})

	expiry := s.base.Add(12 * time.Hour)
	req := &deletion.Request{
		ID:                       uuid.New(),
		UserID:                   uuid.New(),
		Status:                   deletion.StatusParentalConsentRequired,
		ParentalConsentRequired:  true,
		ParentConfirmationToken:  "tok",
		ParentConfirmationExpiry: &expiry,
		CreatedAt:                s.base.Add(-6 * 24 * time.Hour),
		UpdatedAt:                s.base.Add(-6 * 24 * time.Hour),
	}
	s.Require().NoError(s.requests.Create(s.ctx, req))

	entry, err := s.recorder.Record(s.ctx, audit.EntryParams{
		DeletionRequestID: req.ID,
		Action:            audit.ActionParentalConsentRequested,
		PerformedByType:   audit.ActorSystem,
	})
	s.Require().NoError(err)
	svc.ProcessEntry(s.ctx, entry)

	active, err := svc.ActiveAlerts(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal("parental_consent_timeout", active[0].RuleID)
}

func (s *MonitorSuite) TestTriggerWritesAuditEntry() {
	svc := s.newService([]Rule{countRule(audit.ActionSystemError, 1)})

	s.record(audit.ActionSystemError, "")
	entry := s.record(audit.ActionSystemError, "")
	svc.ProcessEntry(s.ctx, entry)

	entries, err := s.auditLog.ListByRequest(s.ctx, entry.DeletionRequestID, 0)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(audit.ActionSystemError, entries[0].Action)
	s.Equal(audit.ActorAutomated, entries[0].PerformedByType)
	s.Contains(entries[0].ActionDetails, "security alert triggered")
}

func (s *MonitorSuite) TestChannelFailureIsolation() {
	failing := &stubChannel{name: "email", err: errors.New("smtp down")}
	rule := countRule(audit.ActionRequestCreated, 1)
	rule.NotificationChannels = []string{"email", "slack", "pager"}
	svc := s.newService([]Rule{rule}, failing, s.slack)

	s.record(audit.ActionRequestCreated, "")
	entry := s.record(audit.ActionRequestCreated, "")
	svc.ProcessEntry(s.ctx, entry)

	s.Equal(1, s.slack.count(), "slack must still receive the alert")
	active, err := svc.ActiveAlerts(s.ctx)
	s.Require().NoError(err)
	s.Len(active, 1, "the alert itself must be stored despite channel failures")
}

func (s *MonitorSuite) TestActiveAlertsOrdering() {
	now := s.base
	seed := []*Alert{
		{ID: "a", Severity: SeverityMedium, TriggeredAt: now.Add(3 * time.Minute)},
		{ID: "b", Severity: SeverityCritical, TriggeredAt: now},
		{ID: "c", Severity: SeverityHigh, TriggeredAt: now.Add(time.Minute)},
		{ID: "d", Severity: SeverityHigh, TriggeredAt: now.Add(2 * time.Minute)},
		{ID: "e", Severity: SeverityLow, TriggeredAt: now.Add(4 * time.Minute), Resolved: true},
	}
	for _, alert := range seed {
		s.Require().NoError(s.alerts.Save(s.ctx, alert))
	}

	svc := s.newService(nil)
	active, err := svc.ActiveAlerts(s.ctx)
	s.Require().NoError(err)

	ids := make([]string, len(active))
	for i, alert := range active {
		ids[i] = alert.ID
	}
	s.Equal([]string{"b", "d", "c", "a"}, ids)
}

func (s *MonitorSuite) TestResolve() {
	alert := &Alert{ID: "x", Severity: SeverityHigh, TriggeredAt: s.base}
	s.Require().NoError(s.alerts.Save(s.ctx, alert))
	svc := s.newService(nil)

	resolved, err := svc.Resolve(s.ctx, "x", "admin-1", "false positive")
	s.Require().NoError(err)
	s.True(resolved.Resolved)
	s.Equal("admin-1", resolved.ResolvedBy)
	s.Require().NotNil(resolved.ResolvedAt)
	s.Equal(s.base, *resolved.ResolvedAt)

	_, err = svc.Resolve(s.ctx, "x", "admin-1", "")
	s.Equal(dErrors.CodeInvalidState, dErrors.CodeOf(err))

	_, err = svc.Resolve(s.ctx, "missing", "admin-1", "")
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func (s *MonitorSuite) TestStatistics() {
	resolvedAt := s.base
	seed := []*Alert{
		{ID: "a", RuleName: "Rule A", Severity: SeverityHigh, TriggeredAt: s.base.Add(-time.Hour)},
		{ID: "b", RuleName: "Rule A", Severity: SeverityHigh, TriggeredAt: s.base.Add(-2 * time.Hour), Resolved: true, ResolvedAt: &resolvedAt},
		{ID: "c", RuleName: "Rule B", Severity: SeverityLow, TriggeredAt: s.base.Add(-30 * time.Hour)},
	}
	for _, alert := range seed {
		s.Require().NoError(s.alerts.Save(s.ctx, alert))
	}

	svc := s.newService(nil)
	stats, err := svc.Statistics(s.ctx, 24*time.Hour)
	s.Require().NoError(err)

	s.Equal(2, stats.TotalAlerts, "alerts outside the window are excluded")
	s.Equal(1, stats.ActiveAlerts)
	s.Equal(1, stats.ResolvedAlerts)
	s.Equal(2, stats.BySeverity[SeverityHigh])
	s.Equal(2, stats.ByRule["Rule A"])
}

func (s *MonitorSuite) TestDisabledRuleNeverTriggers() {
	rule := countRule(audit.ActionRequestCreated, 1)
	rule.Enabled = false
	svc := s.newService([]Rule{rule})

	s.record(audit.ActionRequestCreated, "")
	entry := s.record(audit.ActionRequestCreated, "")
	svc.ProcessEntry(s.ctx, entry)

	active, err := svc.ActiveAlerts(s.ctx)
	s.Require().NoError(err)
	s.Empty(active)
}
