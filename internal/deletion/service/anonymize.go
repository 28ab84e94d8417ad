package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"erasure/internal/audit"
	"erasure/internal/deletion"
	"erasure/pkg/requestcontext"
)

const (
	anonymizedName       = "Anonymized User"
	anonymousAuthor      = "Anonymous"
	anonymizedBio        = "Anonymized"
	anonymizerIdentity   = "system_anonymizer"
	anonymizedMailDomain = "anonymized.local"
)

// anonymizeUserData runs inside the hard delete transaction. Personal data
// is deleted outright; data under a retention obligation is anonymized and
// the legal basis for keeping it is written to the anonymization log. The
// user row is deleted last so every dependent write sees it.
func (s *Service) anonymizeUserData(ctx context.Context, userID, requestID uuid.UUID) ([]deletion.AnonymizationRecord, error) {
	if err := s.accounts.DeleteProfile(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.accounts.DeleteSessions(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.accounts.DeleteOAuthAccounts(ctx, userID); err != nil {
		return nil, err
	}

	anonID, err := anonymizedIdentity()
	if err != nil {
		return nil, err
	}
	anonEmail := anonID + "@" + anonymizedMailDomain

	if _, err := s.accounts.AnonymizeOrders(ctx, userID, anonEmail, anonymizedName); err != nil {
		return nil, err
	}
	if _, err := s.accounts.AnonymizeStories(ctx, userID, anonymousAuthor); err != nil {
		return nil, err
	}
	if _, err := s.accounts.GeneralizeVolunteerProfile(ctx, userID, anonymizedBio); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	records := []deletion.AnonymizationRecord{
		{
			ID:                uuid.New(),
			DeletionRequestID: requestID,
			TableName:         "orders",
			RecordID:          userID.String(),
			AnonymizedFields:  map[string]any{"customerEmail": anonEmail, "customerName": anonymizedName},
			RetainedFields:    []string{"orderId", "amount", "date"},
			Method:            deletion.MethodPseudonymization,
			RetentionReason:   "Financial and tax compliance requirements",
			RetentionPeriod:   "7_years",
			LegalBasis:        "legal_obligation",
			ProcessedBy:       anonymizerIdentity,
			VerificationHash:  verificationHash("orders", userID, now),
			CreatedAt:         now,
		},
		{
			ID:                uuid.New(),
			DeletionRequestID: requestID,
			TableName:         "stories",
			RecordID:          userID.String(),
			AnonymizedFields:  map[string]any{"authorId": nil, "authorName": anonymousAuthor},
			RetainedFields:    []string{"title", "content", "publishedDate"},
			Method:            deletion.MethodRemoval,
			RetentionReason:   "Published content preservation for educational purposes",
			RetentionPeriod:   "indefinite",
			LegalBasis:        "legitimate_interest",
			ProcessedBy:       anonymizerIdentity,
			VerificationHash:  verificationHash("stories", userID, now),
			CreatedAt:         now,
		},
		{
			ID:                uuid.New(),
			DeletionRequestID: requestID,
			TableName:         "volunteer_profiles",
			RecordID:          userID.String(),
			AnonymizedFields:  map[string]any{"bio": anonymizedBio, "skills": []string{}, "languages": []string{}},
			RetainedFields:    []string{"totalHours", "completedProjects"},
			Method:            deletion.MethodGeneralization,
			RetentionReason:   "Volunteer impact metrics and program evaluation",
			RetentionPeriod:   "5_years",
			LegalBasis:        "legitimate_interest",
			ProcessedBy:       anonymizerIdentity,
			VerificationHash:  verificationHash("volunteer_profiles", userID, now),
			CreatedAt:         now,
		},
	}
	if err := s.requests.AppendAnonymizationRecords(ctx, records); err != nil {
		return nil, err
	}

	tables := make([]string, len(records))
	bases := make([]map[string]string, len(records))
	for i, rec := range records {
		tables[i] = rec.TableName
		bases[i] = map[string]string{
			"table":  rec.TableName,
			"basis":  rec.LegalBasis,
			"period": rec.RetentionPeriod,
		}
	}
	if _, err := s.recorder.Record(ctx, audit.EntryParams{
		DeletionRequestID: requestID,
		Action:            audit.ActionDataAnonymized,
		PerformedByType:   audit.ActorSystem,
		RecordCount:       len(records),
		Details:           fmt.Sprintf("data anonymized across %d tables", len(records)),
		Metadata: map[string]any{
			"anonymizedTables":    tables,
			"anonymizationMethod": "mixed_pseudonymization_removal",
			"retentionBases":      bases,
			"processedAt":         now.UTC(),
		},
	}); err != nil {
		return nil, err
	}

	if err := s.accounts.DeleteUser(ctx, userID); err != nil {
		return nil, err
	}
	return records, nil
}

func anonymizedIdentity() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymized identity: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func verificationHash(table string, userID uuid.UUID, at time.Time) string {
	data := fmt.Sprintf("%s_%s_%s", table, userID, at.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
