package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"erasure/internal/account"
	"erasure/internal/audit"
	"erasure/internal/deletion"
	"erasure/internal/platform/metrics"
	dErrors "erasure/pkg/domain-errors"
	"erasure/pkg/platform/sentinel"
	"erasure/pkg/requestcontext"
)

// Compliance thresholds driving status assessment and recommendations.
const (
	minComplianceRate     = 95
	maxSecurityIncidents  = 5
	gdprProcessingLimit   = 30 * 24 * time.Hour
	slowProcessingHours   = 168
	slowConsentHours      = 72
	suspiciousIPThreshold = 3
)

// Service aggregates deletion, audit and account data into compliance
// reports.
type Service struct {
	requests deletion.Store
	accounts account.Store
	recorder *audit.Recorder
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

func NewService(requests deletion.Store, accounts account.Store, recorder *audit.Recorder, opts ...Option) *Service {
	s := &Service{
		requests: requests,
		accounts: accounts,
		recorder: recorder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate builds a compliance report. When start and end are both set they
// override the window derived from the report type. Aggregation reads run in
// parallel and the first failure aborts the rest.
func (s *Service) Generate(ctx context.Context, reportType Type, start, end time.Time, generatedBy GeneratedBy) (*Report, error) {
	switch reportType {
	case TypeDaily, TypeWeekly, TypeMonthly, TypeQuarterly, TypeAnnual:
	default:
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unsupported report type: %s", reportType)
	}

	if s.metrics != nil {
		begin := time.Now()
		defer func() {
			s.metrics.ReportDuration.Observe(time.Since(begin).Seconds())
		}()
	}

	now := requestcontext.Now(ctx)
	period := determinePeriod(reportType, start, end, now)

	var (
		total           int
		statusBreakdown map[deletion.Status]int
		actionBreakdown map[audit.Action]int
		requests        []*deletion.Request
		entries         []*audit.Entry
		integrity       *audit.VerificationResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.requests.CountCreatedBetween(gctx, period.Start, period.End)
		return err
	})
	g.Go(func() error {
		var err error
		statusBreakdown, err = s.requests.StatusBreakdown(gctx, period.Start, period.End)
		return err
	})
	g.Go(func() error {
		var err error
		actionBreakdown, err = s.recorder.ActionBreakdown(gctx, period.Start, period.End)
		return err
	})
	g.Go(func() error {
		var err error
		requests, err = s.requests.ListCreatedBetween(gctx, period.Start, period.End)
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = s.recorder.EntriesBetween(gctx, period.Start, period.End)
		return err
	})
	g.Go(func() error {
		var err error
		integrity, err = s.recorder.VerifyBetween(gctx, period.Start, period.End)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("gather report data: %w", err)
	}

	roles, err := s.userRoleDistribution(ctx, requests)
	if err != nil {
		return nil, err
	}

	security := SecurityMetrics{
		SuspiciousActivities: suspiciousIPCount(entries),
		IntegrityViolations:  len(integrity.TamperedID),
		SystemErrors:         actionBreakdown[audit.ActionSystemError],
	}

	summary := Summary{
		TotalDeletionRequests: total,
		CompletedDeletions:    statusBreakdown[deletion.StatusHardDeleted],
		PendingDeletions: statusBreakdown[deletion.StatusPending] +
			statusBreakdown[deletion.StatusParentalConsentRequired] +
			statusBreakdown[deletion.StatusReviewRequired],
		FailedDeletions:       actionBreakdown[audit.ActionSystemError],
		ParentalConsentCases:  countParentalConsentCases(requests),
		AverageProcessingTime: averageProcessingHours(requests),
		ComplianceRate:        complianceRate(total, statusBreakdown),
		SecurityIncidents:     security.SuspiciousActivities + security.IntegrityViolations + security.SystemErrors,
	}

	details := Details{
		DeletionsByStatus:          statusBreakdown,
		DeletionsByAction:          actionBreakdown,
		ProcessingTimeDistribution: processingTimes(requests),
		GeographicDistribution:     map[string]int{},
		UserRoleDistribution:       roles,
		COPPACompliance:            coppaCompliance(requests, entries),
		GDPRCompliance:             gdprCompliance(requests),
		SecurityMetrics:            security,
	}

	status := assessCompliance(summary, details)
	report := &Report{
		ID:               fmt.Sprintf("%s_%s_%d", strings.ToLower(string(reportType)), period.Start.Format("2006-01-02"), now.UnixMilli()),
		Type:             reportType,
		Period:           period,
		GeneratedAt:      now,
		GeneratedBy:      generatedBy,
		Summary:          summary,
		Details:          details,
		ComplianceStatus: status,
		Recommendations:  recommendations(summary, details, status),
		Attachments:      []string{},
	}

	s.logger.InfoContext(ctx, "audit report generated",
		"report_id", report.ID,
		"report_type", reportType,
		"period_start", period.Start,
		"period_end", period.End,
		"compliance_status", status,
		"total_requests", total,
		"generated_by", generatedBy,
	)
	return report, nil
}

// determinePeriod resolves the reporting window. Calendar-based types cover
// the previous complete unit; sliding types end at now.
func determinePeriod(reportType Type, start, end, now time.Time) Period {
	if !start.IsZero() && !end.IsZero() {
		return Period{Start: start, End: end}
	}

	switch reportType {
	case TypeWeekly:
		return Period{Start: now.Add(-7 * 24 * time.Hour), End: now}
	case TypeMonthly:
		y, m, _ := now.Date()
		return Period{
			Start: time.Date(y, m-1, 1, 0, 0, 0, 0, now.Location()),
			End:   time.Date(y, m, 1, 0, 0, 0, 0, now.Location()),
		}
	case TypeQuarterly:
		y, m, _ := now.Date()
		quarterStart := time.Month((int(m)-1)/3*3 + 1)
		return Period{
			Start: time.Date(y, quarterStart-3, 1, 0, 0, 0, 0, now.Location()),
			End:   time.Date(y, quarterStart, 1, 0, 0, 0, 0, now.Location()),
		}
	case TypeAnnual:
		return Period{
			Start: time.Date(now.Year()-1, time.January, 1, 0, 0, 0, 0, now.Location()),
			End:   time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()),
		}
	default: // TypeDaily
		y, m, d := now.Date()
		return Period{Start: time.Date(y, m, d-1, 0, 0, 0, 0, now.Location()), End: now}
	}
}

// userRoleDistribution counts requesting users by role. Users already hard
// deleted no longer resolve and are skipped.
func (s *Service) userRoleDistribution(ctx context.Context, requests []*deletion.Request) (map[string]int, error) {
	seen := make(map[uuid.UUID]bool)
	roles := make(map[string]int)
	for _, req := range requests {
		if seen[req.UserID] {
			continue
		}
		seen[req.UserID] = true

		user, err := s.accounts.FindUser(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("resolve user role: %w", err)
		}
		roles[string(user.Role)]++
	}
	return roles, nil
}

func countParentalConsentCases(requests []*deletion.Request) int {
	n := 0
	for _, req := range requests {
		if req.ParentalConsentRequired {
			n++
		}
	}
	return n
}

func averageProcessingHours(requests []*deletion.Request) int {
	var total float64
	var n int
	for _, req := range requests {
		if req.Status != deletion.StatusHardDeleted || req.HardDeletedAt == nil {
			continue
		}
		total += req.HardDeletedAt.Sub(req.CreatedAt).Hours()
		n++
	}
	if n == 0 {
		return 0
	}
	return int(math.Round(total / float64(n)))
}

func complianceRate(total int, statuses map[deletion.Status]int) int {
	if total == 0 {
		return 100
	}
	compliant := statuses[deletion.StatusHardDeleted] + statuses[deletion.StatusRecovered]
	return int(math.Round(float64(compliant) / float64(total) * 100))
}

func processingTimes(requests []*deletion.Request) ProcessingTimes {
	var dist ProcessingTimes
	for _, req := range requests {
		if req.Status != deletion.StatusHardDeleted || req.HardDeletedAt == nil {
			continue
		}
		elapsed := req.HardDeletedAt.Sub(req.CreatedAt)
		switch {
		case elapsed < 24*time.Hour:
			dist.Under24h++
		case elapsed < 7*24*time.Hour:
			dist.Under7Days++
		case elapsed < gdprProcessingLimit:
			dist.Under30Days++
		default:
			dist.Over30Days++
		}
	}
	return dist
}

// coppaCompliance derives parental consent metrics. Grant timestamps come
// from the audit trail: the request row does not keep the decision time.
func coppaCompliance(requests []*deletion.Request, entries []*audit.Entry) COPPACompliance {
	grantedAt := make(map[uuid.UUID]time.Time)
	denied := make(map[uuid.UUID]bool)
	for _, entry := range entries {
		switch entry.Action {
		case audit.ActionParentalConsentGranted:
			grantedAt[entry.DeletionRequestID] = entry.CreatedAt
		case audit.ActionParentalConsentDenied:
			denied[entry.DeletionRequestID] = true
		}
	}

	var c COPPACompliance
	var consentHours float64
	var timed int
	for _, req := range requests {
		if !req.ParentalConsentRequired {
			continue
		}
		c.TotalMinorRequests++
		if req.ParentalConsentVerified {
			c.ParentalConsentGranted++
			if at, ok := grantedAt[req.ID]; ok {
				consentHours += at.Sub(req.CreatedAt).Hours()
				timed++
			}
		}
		if denied[req.ID] {
			c.ParentalConsentDenied++
		}
	}
	if timed > 0 {
		c.AvgConsentTime = int(math.Round(consentHours / float64(timed)))
	}
	return c
}

func gdprCompliance(requests []*deletion.Request) GDPRCompliance {
	var g GDPRCompliance
	for _, req := range requests {
		if req.Status != deletion.StatusHardDeleted || req.HardDeletedAt == nil {
			continue
		}
		if req.HardDeletedAt.Sub(req.CreatedAt) <= gdprProcessingLimit {
			g.Within30DayLimit++
		} else {
			g.Exceeding30Days++
		}
	}
	return g
}

// suspiciousIPCount counts distinct IPs that created more than
// suspiciousIPThreshold requests in the period.
func suspiciousIPCount(entries []*audit.Entry) int {
	perIP := make(map[string]int)
	for _, entry := range entries {
		if entry.Action == audit.ActionRequestCreated && entry.IPAddress != "" {
			perIP[entry.IPAddress]++
		}
	}
	n := 0
	for _, count := range perIP {
		if count > suspiciousIPThreshold {
			n++
		}
	}
	return n
}

func assessCompliance(summary Summary, details Details) ComplianceStatus {
	if summary.ComplianceRate < minComplianceRate {
		return StatusNonCompliant
	}
	if details.GDPRCompliance.Exceeding30Days > 0 {
		return StatusNonCompliant
	}
	if details.SecurityMetrics.IntegrityViolations > 0 {
		return StatusNonCompliant
	}
	if summary.SecurityIncidents > maxSecurityIncidents {
		return StatusReviewRequired
	}
	return StatusCompliant
}

func recommendations(summary Summary, details Details, status ComplianceStatus) []string {
	var recs []string
	if summary.ComplianceRate < 100 {
		recs = append(recs, "Investigate and resolve failed deletion requests to maintain 100% compliance rate")
	}
	if details.GDPRCompliance.Exceeding30Days > 0 {
		recs = append(recs, "Implement automated escalation for deletion requests approaching 30-day GDPR deadline")
	}
	if summary.AverageProcessingTime > slowProcessingHours {
		recs = append(recs, "Optimize deletion processing workflow to reduce average processing time")
	}
	if details.ProcessingTimeDistribution.Over30Days > 0 {
		recs = append(recs, "Review and document justifications for deletions exceeding 30 days")
	}
	if details.COPPACompliance.TotalMinorRequests > 0 && details.COPPACompliance.AvgConsentTime > slowConsentHours {
		recs = append(recs, "Improve parental consent response time through better communication")
	}
	if summary.SecurityIncidents > 0 {
		recs = append(recs, "Review security incidents and implement additional monitoring controls")
	}
	if details.SecurityMetrics.SuspiciousActivities > 0 {
		recs = append(recs, "Investigate suspicious IP activities and consider implementing rate limiting")
	}
	if status == StatusCompliant && len(recs) == 0 {
		recs = append(recs, "Continue current practices. All compliance metrics are within acceptable ranges.")
	}
	return recs
}
