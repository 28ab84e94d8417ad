// Package deletion implements the account deletion request lifecycle:
// validation, COPPA parental consent, confirmation, soft delete with a
// recovery window, and permanent deletion with selective anonymization.
package deletion

import (
	"time"

	"github.com/google/uuid"
)

// Status is the deletion request state machine.
type Status string

const (
	StatusPending                 Status = "PENDING"
	StatusParentalConsentRequired Status = "PARENTAL_CONSENT_REQUIRED"
	StatusReviewRequired          Status = "REVIEW_REQUIRED"
	StatusConfirmed               Status = "CONFIRMED"
	StatusSoftDeleted             Status = "SOFT_DELETED"
	StatusHardDeleted             Status = "HARD_DELETED"
	StatusRecovered               Status = "RECOVERED"
	StatusCancelled               Status = "CANCELLED"
)

// activeStatuses are the states in which a request still claims the account:
// a user may hold at most one request in any of them.
var activeStatuses = map[Status]bool{
	StatusPending:                 true,
	StatusParentalConsentRequired: true,
	StatusReviewRequired:          true,
	StatusConfirmed:               true,
	StatusSoftDeleted:             true,
}

// Active reports whether the status still claims the account.
func (s Status) Active() bool {
	return activeStatuses[s]
}

// Terminal reports whether the request can no longer transition.
func (s Status) Terminal() bool {
	return s == StatusHardDeleted || s == StatusRecovered || s == StatusCancelled
}

// Source identifies who initiated the request.
type Source string

const (
	SourceSelfService Source = "self_service"
	SourceParental    Source = "parental"
	SourceAdmin       Source = "admin"
)

// Lifecycle deadlines.
const (
	// ParentConfirmationTTL is how long a parent has to decide.
	ParentConfirmationTTL = 7 * 24 * time.Hour
	// FinalConfirmationTTL is how long the user has to confirm.
	FinalConfirmationTTL = 24 * time.Hour
	// RecoveryWindow is how long a soft-deleted account stays recoverable.
	RecoveryWindow = 7 * 24 * time.Hour
)

// ParentInfo identifies the parent who decided on a minor's request.
type ParentInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AdditionalContext is the free-form context blob stored with a request. It
// accumulates over the lifecycle: validation output at creation, parent info
// at consent, a reason at cancellation.
type AdditionalContext struct {
	Warnings                []string    `json:"warnings,omitempty"`
	RequiresParentalConsent bool        `json:"requiresParentalConsent,omitempty"`
	RequiresReview          bool        `json:"requiresReview,omitempty"`
	ParentInfo              *ParentInfo `json:"parentInfo,omitempty"`
	CancellationReason      string      `json:"cancellationReason,omitempty"`
}

// Request is one deletion request. Confirmation tokens are single use and
// cleared on redemption; status gating makes replay harmless either way.
type Request struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Status Status
	Reason string
	Source Source

	ParentalConsentRequired  bool
	ParentalConsentVerified  bool
	ParentConfirmationToken  string
	ParentConfirmationExpiry *time.Time

	FinalConfirmationToken  string
	FinalConfirmationExpiry *time.Time

	ReviewRequired bool

	IPAddress string
	UserAgent string

	SoftDeletedAt    *time.Time
	RecoveryDeadline *time.Time
	HardDeletedAt    *time.Time

	Context AdditionalContext

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidationResult is the outcome of checking whether a user may request
// deletion. Blockers stop the request outright; warnings inform the user and
// may route the request through consent or review.
type ValidationResult struct {
	CanDelete               bool     `json:"canDelete"`
	RequiresParentalConsent bool     `json:"requiresParentalConsent"`
	RequiresReview          bool     `json:"requiresReview"`
	Blockers                []string `json:"blockers"`
	Warnings                []string `json:"warnings"`
}

// AnonymizationRecord documents one table's anonymization during hard
// delete, including the legal basis for what was retained.
type AnonymizationRecord struct {
	ID                uuid.UUID
	DeletionRequestID uuid.UUID
	TableName         string
	RecordID          string
	AnonymizedFields  map[string]any
	RetainedFields    []string
	Method            string
	RetentionReason   string
	RetentionPeriod   string
	LegalBasis        string
	ProcessedBy       string
	VerificationHash  string
	CreatedAt         time.Time
}

// Anonymization methods.
const (
	MethodPseudonymization = "pseudonymization"
	MethodRemoval          = "removal"
	MethodGeneralization   = "generalization"
)
