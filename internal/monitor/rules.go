package monitor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	platformstrings "erasure/pkg/platform/strings"
)

// DefaultRules is the built-in rule set, used when no rules file is
// configured. Thresholds mirror the compliance team's runbook.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "multiple_deletion_requests",
			Name:        "Multiple Deletion Requests",
			Description: "Alert when more than 5 deletion requests are created in 1 hour",
			Condition: Condition{
				Type:       ConditionCount,
				Action:     "REQUEST_CREATED",
				TimeWindow: 60,
				Threshold:  5,
				Comparison: CompareGreaterThan,
			},
			Severity:             SeverityMedium,
			Enabled:              true,
			NotificationChannels: []string{"email", "slack"},
		},
		{
			ID:          "failed_deletions",
			Name:        "Failed Deletion Processes",
			Description: "Alert when deletion processes fail",
			Condition: Condition{
				Type:       ConditionCount,
				Action:     "SYSTEM_ERROR",
				TimeWindow: 60,
				Threshold:  1,
				Comparison: CompareGreaterThan,
			},
			Severity:             SeverityHigh,
			Enabled:              true,
			NotificationChannels: []string{"email", "slack", "webhook"},
		},
		{
			ID:          "suspicious_ip_activity",
			Name:        "Suspicious IP Activity",
			Description: "Alert when multiple deletion requests come from the same IP",
			Condition: Condition{
				Type:       ConditionPattern,
				Pattern:    PatternSameIP,
				TimeWindow: 30,
				Threshold:  3,
			},
			Severity:             SeverityHigh,
			Enabled:              true,
			NotificationChannels: []string{"email", "slack"},
		},
		{
			ID:          "integrity_violations",
			Name:        "Audit Log Integrity Violations",
			Description: "Alert when audit log integrity checks fail",
			Condition: Condition{
				Type:      ConditionIntegrityViolation,
				Threshold: 1,
			},
			Severity:             SeverityCritical,
			Enabled:              true,
			NotificationChannels: []string{"email", "slack", "webhook", "sms"},
		},
		{
			ID:          "parental_consent_timeout",
			Name:        "Parental Consent Timeout",
			Description: "Alert when parental consent requests are approaching expiry",
			Condition: Condition{
				Type:       ConditionTimeThreshold,
				TimeWindow: 24,
			},
			Severity:             SeverityMedium,
			Enabled:              true,
			NotificationChannels: []string{"email"},
		},
	}
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRulesFile reads an alert rule set from a YAML file.
func LoadRulesFile(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var file rulesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s defines no rules", path)
	}
	for i, rule := range file.Rules {
		if rule.ID == "" {
			return nil, fmt.Errorf("rules file %s: rule %d has no id", path, i)
		}
		if rule.Condition.Type == "" {
			return nil, fmt.Errorf("rules file %s: rule %q has no condition type", path, rule.ID)
		}
		// Channel names are matched case-insensitively against registered
		// channels; hand-edited files tend to repeat them.
		file.Rules[i].NotificationChannels = platformstrings.DedupeAndTrimLower(rule.NotificationChannels)
	}
	return file.Rules, nil
}
