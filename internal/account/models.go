// Package account holds the user-side records the deletion engine reads
// during validation and mutates during anonymization. It is a persistence
// collaborator only: registration, login and commerce flows live elsewhere.
package account

import (
	"time"

	"github.com/google/uuid"
)

// Role mirrors the platform's user roles. TEACHER and INSTITUTION accounts
// with active classes force a manual review before deletion.
type Role string

const (
	RoleStudent     Role = "STUDENT"
	RoleTeacher     Role = "TEACHER"
	RoleInstitution Role = "INSTITUTION"
	RoleVolunteer   Role = "VOLUNTEER"
	RoleAdmin       Role = "ADMIN"
)

// OrderStatus tracks commerce order lifecycle. PENDING and PROCESSING orders
// block account deletion.
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderCompleted  OrderStatus = "COMPLETED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

// User is the account row. DeletedAt marks a soft-deleted account;
// DeletionRequestID links it to the request that suspended it.
type User struct {
	ID                uuid.UUID
	Email             string
	Name              string
	Role              Role
	DeletedAt         *time.Time
	DeletionRequestID *uuid.UUID
	CreatedAt         time.Time
}

// Profile carries the personal data deleted outright on hard delete.
// DateOfBirth drives the COPPA minor check.
type Profile struct {
	UserID              uuid.UUID
	DateOfBirth         *time.Time
	ParentalConsentDate *time.Time
	Bio                 string
	Country             string
}

// Order is a financial record. On hard delete the customer identity is
// pseudonymized while amounts and dates are retained for the 7-year
// financial retention period.
type Order struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Status        OrderStatus
	CustomerEmail string
	CustomerName  string
	AmountCents   int64
	CreatedAt     time.Time
}

// Story is published content. Hard delete strips attribution but retains the
// content indefinitely (legitimate interest: educational value).
type Story struct {
	ID          uuid.UUID
	AuthorID    *uuid.UUID
	AuthorName  string
	Title       string
	Content     string
	PublishedAt time.Time
}

// VolunteerProfile aggregates volunteer activity. Hard delete generalizes
// the personal fields (bio, skills, languages) but keeps the impact metrics
// for 5 years.
type VolunteerProfile struct {
	UserID              uuid.UUID
	Bio                 string
	Skills              []string
	Languages           []string
	TotalHours          int
	CompletedProjects   int
	PendingApplications int
}

// RecurringDonation is checked during validation; active donations produce a
// warning (they will be cancelled) but do not block deletion.
type RecurringDonation struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Active bool
}
