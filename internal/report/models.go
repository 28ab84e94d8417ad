// Package report generates compliance reports over the deletion subsystem
// for regulatory auditing and internal security reviews.
package report

import (
	"time"

	"erasure/internal/audit"
	"erasure/internal/deletion"
)

// Type selects the reporting window.
type Type string

const (
	TypeDaily     Type = "DAILY"
	TypeWeekly    Type = "WEEKLY"
	TypeMonthly   Type = "MONTHLY"
	TypeQuarterly Type = "QUARTERLY"
	TypeAnnual    Type = "ANNUAL"
)

// GeneratedBy records who asked for the report.
type GeneratedBy string

const (
	GeneratedBySystem GeneratedBy = "SYSTEM"
	GeneratedByAdmin  GeneratedBy = "ADMIN"
)

// ComplianceStatus is the overall assessment of a reporting period.
type ComplianceStatus string

const (
	StatusCompliant      ComplianceStatus = "COMPLIANT"
	StatusNonCompliant   ComplianceStatus = "NON_COMPLIANT"
	StatusReviewRequired ComplianceStatus = "REVIEW_REQUIRED"
)

// Period is the half-open reporting window [Start, End).
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Summary carries the headline numbers of a report.
type Summary struct {
	TotalDeletionRequests int `json:"totalDeletionRequests"`
	CompletedDeletions    int `json:"completedDeletions"`
	PendingDeletions      int `json:"pendingDeletions"`
	FailedDeletions       int `json:"failedDeletions"`
	ParentalConsentCases  int `json:"parentalConsentCases"`

	// AverageProcessingTime is in whole hours, request creation to hard
	// delete.
	AverageProcessingTime int `json:"averageProcessingTime"`

	// ComplianceRate is the percentage of requests that reached a compliant
	// terminal state (hard deleted or recovered).
	ComplianceRate int `json:"complianceRate"`

	SecurityIncidents int `json:"securityIncidents"`
	DataBreaches      int `json:"dataBreaches"`
}

// ProcessingTimes buckets completed deletions by time to completion.
type ProcessingTimes struct {
	Under24h    int `json:"under24h"`
	Under7Days  int `json:"under7days"`
	Under30Days int `json:"under30days"`
	Over30Days  int `json:"over30days"`
}

// COPPACompliance covers the parental consent flow for minors.
type COPPACompliance struct {
	TotalMinorRequests     int `json:"totalMinorRequests"`
	ParentalConsentGranted int `json:"parentalConsentGranted"`
	ParentalConsentDenied  int `json:"parentalConsentDenied"`

	// AvgConsentTime is in whole hours, request creation to parental grant.
	AvgConsentTime int `json:"avgConsentTime"`
}

// GDPRCompliance covers the Article 17 one-month processing limit.
type GDPRCompliance struct {
	Within30DayLimit int `json:"within30DayLimit"`
	Exceeding30Days  int `json:"exceeding30Days"`
	JustifiedDelays  int `json:"justifiedDelays"`
}

// SecurityMetrics counts security-relevant events in the period.
type SecurityMetrics struct {
	SuspiciousActivities int `json:"suspiciousActivities"`
	IntegrityViolations  int `json:"integrityViolations"`
	UnauthorizedAccess   int `json:"unauthorizedAccess"`
	SystemErrors         int `json:"systemErrors"`
}

// Details carries the full breakdowns backing the summary.
type Details struct {
	DeletionsByStatus          map[deletion.Status]int `json:"deletionsByStatus"`
	DeletionsByAction          map[audit.Action]int    `json:"deletionsByAction"`
	ProcessingTimeDistribution ProcessingTimes         `json:"processingTimeDistribution"`
	GeographicDistribution     map[string]int          `json:"geographicDistribution"`
	UserRoleDistribution       map[string]int          `json:"userRoleDistribution"`
	COPPACompliance            COPPACompliance         `json:"coppaCompliance"`
	GDPRCompliance             GDPRCompliance          `json:"gdprCompliance"`
	SecurityMetrics            SecurityMetrics         `json:"securityMetrics"`
}

// Report is one generated compliance report.
type Report struct {
	ID               string           `json:"id"`
	Type             Type             `json:"reportType"`
	Period           Period           `json:"period"`
	GeneratedAt      time.Time        `json:"generatedAt"`
	GeneratedBy      GeneratedBy      `json:"generatedBy"`
	Summary          Summary          `json:"summary"`
	Details          Details          `json:"details"`
	ComplianceStatus ComplianceStatus `json:"complianceStatus"`
	Recommendations  []string         `json:"recommendations"`
	Attachments      []string         `json:"attachments"`
}
