// Package audit implements the append-only, integrity-hashed log of deletion
// request activity. Entries are immutable once written; tampering is detected
// by recomputing each entry's hash, not prevented at the storage level.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action identifies what happened to a deletion request.
type Action string

const (
	ActionRequestCreated           Action = "REQUEST_CREATED"
	ActionRequestConfirmed         Action = "REQUEST_CONFIRMED"
	ActionRequestCancelled         Action = "REQUEST_CANCELLED"
	ActionParentalConsentRequested Action = "PARENTAL_CONSENT_REQUESTED"
	ActionParentalConsentGranted   Action = "PARENTAL_CONSENT_GRANTED"
	ActionParentalConsentDenied    Action = "PARENTAL_CONSENT_DENIED"
	ActionReviewStarted            Action = "REVIEW_STARTED"
	ActionReviewApproved           Action = "REVIEW_APPROVED"
	ActionReviewRejected           Action = "REVIEW_REJECTED"
	ActionSoftDeleteExecuted       Action = "SOFT_DELETE_EXECUTED"
	ActionAccountRecovered         Action = "ACCOUNT_RECOVERED"
	ActionHardDeleteExecuted       Action = "HARD_DELETE_EXECUTED"
	ActionDataAnonymized           Action = "DATA_ANONYMIZED"
	ActionDataExported             Action = "DATA_EXPORTED"
	ActionSystemError              Action = "SYSTEM_ERROR"
)

// criticalActions are additionally emitted to the operational stream for
// real-time monitoring.
var criticalActions = map[Action]bool{
	ActionHardDeleteExecuted: true,
	ActionDataAnonymized:     true,
	ActionSystemError:        true,
}

// Critical reports whether the action belongs on the operational stream.
func (a Action) Critical() bool {
	return criticalActions[a]
}

// ActorType classifies who performed an action.
type ActorType string

const (
	ActorSystem    ActorType = "SYSTEM"
	ActorUser      ActorType = "USER"
	ActorAdmin     ActorType = "ADMIN"
	ActorParent    ActorType = "PARENT"
	ActorAutomated ActorType = "AUTOMATED"
)

// MetadataKeyIntegrityHash is where the entry's integrity hash lives inside
// the metadata blob. The hash covers the core fields, never the metadata
// itself, so per-action payloads can evolve without invalidating history.
const MetadataKeyIntegrityHash = "integrityHash"

// MetadataKeyIntegrityViolation marks an entry written in response to a
// detected integrity failure; the monitoring layer escalates it to CRITICAL.
const MetadataKeyIntegrityViolation = "integrityViolation"

// Context carries request-scoped client metadata onto an entry.
type Context struct {
	IPAddress   string
	UserAgent   string
	SessionID   string
	Device      string
	Fingerprint string
}

// Entry is one immutable audit log record. The core fields (everything
// except Metadata) are covered by the integrity hash stored under
// Metadata[MetadataKeyIntegrityHash].
type Entry struct {
	ID                uuid.UUID
	DeletionRequestID uuid.UUID
	Action            Action
	PerformedBy       string
	PerformedByRole   string
	PerformedByType   ActorType
	TableName         string
	RecordID          string
	RecordCount       int
	PreviousStatus    string
	NewStatus         string
	ActionDetails     string
	Metadata          map[string]any
	IPAddress         string
	UserAgent         string
	SessionID         string
	CreatedAt         time.Time
}

// IntegrityHash returns the hash stored when the entry was written, or ""
// for entries predating integrity hashing.
func (e *Entry) IntegrityHash() string {
	if e.Metadata == nil {
		return ""
	}
	h, _ := e.Metadata[MetadataKeyIntegrityHash].(string)
	return h
}

// EntryParams describes a new entry. The recorder fills in the ID, the
// timestamp and the integrity hash.
type EntryParams struct {
	DeletionRequestID uuid.UUID
	Action            Action
	PerformedBy       string
	PerformedByRole   string
	PerformedByType   ActorType
	TableName         string
	RecordID          string
	RecordCount       int
	PreviousStatus    string
	NewStatus         string
	Details           string
	Metadata          map[string]any
	Context           *Context
}
