package monitor

import (
	"context"
	"fmt"
	"time"

	"erasure/internal/audit"
	"erasure/internal/deletion"
)

// evaluate reports whether a rule matches the entry being processed. The
// evaluators are read-only; triggering is the service's job.
func (s *Service) evaluate(ctx context.Context, rule Rule, entry *audit.Entry, now time.Time) (bool, error) {
	switch rule.Condition.Type {
	case ConditionCount:
		return s.evaluateCount(ctx, rule.Condition, now)
	case ConditionTimeThreshold:
		return s.evaluateTimeThreshold(ctx, rule.Condition, entry, now)
	case ConditionPattern:
		return s.evaluatePattern(ctx, rule.Condition, entry, now)
	case ConditionIntegrityViolation:
		return evaluateIntegrity(entry), nil
	default:
		return false, fmt.Errorf("unknown condition type %q", rule.Condition.Type)
	}
}

func (s *Service) evaluateCount(ctx context.Context, cond Condition, now time.Time) (bool, error) {
	if cond.TimeWindow <= 0 || cond.Threshold <= 0 || cond.Action == "" {
		return false, nil
	}
	since := now.Add(-time.Duration(cond.TimeWindow) * time.Minute)
	count, err := s.auditLog.CountByActionSince(ctx, audit.Action(cond.Action), since)
	if err != nil {
		return false, err
	}
	switch cond.Comparison {
	case CompareGreaterThan:
		return count > cond.Threshold, nil
	case CompareLessThan:
		return count < cond.Threshold, nil
	case CompareEquals:
		return count == cond.Threshold, nil
	default:
		return false, nil
	}
}

// evaluateTimeThreshold warns when a pending parental consent decision is
// inside the final hours before its token expires.
func (s *Service) evaluateTimeThreshold(ctx context.Context, cond Condition, entry *audit.Entry, now time.Time) (bool, error) {
	if cond.TimeWindow <= 0 {
		return false, nil
	}
	req, err := s.requests.GetByID(ctx, entry.DeletionRequestID)
	if err != nil {
		// The request may already be hard deleted; nothing to warn about.
		return false, nil
	}
	if !req.ParentalConsentRequired || req.Status != deletion.StatusParentalConsentRequired || req.ParentConfirmationExpiry == nil {
		return false, nil
	}
	warningStart := req.ParentConfirmationExpiry.Add(-time.Duration(cond.TimeWindow) * time.Hour)
	return !now.Before(warningStart) && now.Before(*req.ParentConfirmationExpiry), nil
}

func (s *Service) evaluatePattern(ctx context.Context, cond Condition, entry *audit.Entry, now time.Time) (bool, error) {
	if cond.TimeWindow <= 0 || cond.Threshold <= 0 {
		return false, nil
	}
	switch cond.Pattern {
	case PatternSameIP:
		if entry.IPAddress == "" {
			return false, nil
		}
		since := now.Add(-time.Duration(cond.TimeWindow) * time.Minute)
		count, err := s.auditLog.CountByIPSince(ctx, entry.IPAddress, audit.ActionRequestCreated, since)
		if err != nil {
			return false, err
		}
		return count >= cond.Threshold, nil
	default:
		return false, nil
	}
}

func evaluateIntegrity(entry *audit.Entry) bool {
	if entry.Metadata == nil {
		return false
	}
	violated, _ := entry.Metadata[audit.MetadataKeyIntegrityViolation].(bool)
	return violated
}
