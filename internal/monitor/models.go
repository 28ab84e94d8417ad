// Package monitor watches the audit log in real time: every new entry is
// evaluated against the alert rule set, and matches become alerts delivered
// over the configured notification channels.
package monitor

import (
	"time"
)

// Severity orders alerts for triage.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank maps severity onto a sortable weight. Unknown severities sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ConditionType selects the evaluator for a rule.
type ConditionType string

const (
	ConditionCount              ConditionType = "COUNT"
	ConditionTimeThreshold      ConditionType = "TIME_THRESHOLD"
	ConditionPattern            ConditionType = "PATTERN"
	ConditionIntegrityViolation ConditionType = "INTEGRITY_VIOLATION"
)

// Comparison applies to COUNT conditions.
type Comparison string

const (
	CompareGreaterThan Comparison = "GREATER_THAN"
	CompareLessThan    Comparison = "LESS_THAN"
	CompareEquals      Comparison = "EQUALS"
)

// PatternSameIP flags repeated deletion requests from one address.
const PatternSameIP = "same_ip_multiple_requests"

// Condition is a tagged union: Type selects the evaluator, the remaining
// fields parameterize it. Unused fields are zero.
type Condition struct {
	Type ConditionType `yaml:"type"`

	// Action filters COUNT conditions to one audit action.
	Action     string     `yaml:"action,omitempty"`
	// TimeWindow is minutes for COUNT/PATTERN, hours before expiry for
	// TIME_THRESHOLD.
	TimeWindow int        `yaml:"timeWindow,omitempty"`
	Threshold  int        `yaml:"threshold,omitempty"`
	Pattern    string     `yaml:"pattern,omitempty"`
	Comparison Comparison `yaml:"comparison,omitempty"`
}

// Rule is one alert rule. Rules are loaded once at startup, from YAML when
// configured and from the built-in defaults otherwise.
type Rule struct {
	ID                   string    `yaml:"id"`
	Name                 string    `yaml:"name"`
	Description          string    `yaml:"description"`
	Condition            Condition `yaml:"condition"`
	Severity             Severity  `yaml:"severity"`
	Enabled              bool      `yaml:"enabled"`
	NotificationChannels []string  `yaml:"notificationChannels"`
}

// Alert is a triggered rule instance.
type Alert struct {
	ID          string         `json:"id"`
	RuleID      string         `json:"ruleId"`
	RuleName    string         `json:"ruleName"`
	Severity    Severity       `json:"severity"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	TriggeredAt time.Time      `json:"triggeredAt"`
	Resolved    bool           `json:"resolved"`
	ResolvedAt  *time.Time     `json:"resolvedAt,omitempty"`
	ResolvedBy  string         `json:"resolvedBy,omitempty"`
	Notes       string         `json:"notes,omitempty"`
}

// Statistics summarizes alert volume over a trailing window.
type Statistics struct {
	TotalAlerts    int              `json:"totalAlerts"`
	ActiveAlerts   int              `json:"activeAlerts"`
	ResolvedAlerts int              `json:"resolvedAlerts"`
	BySeverity     map[Severity]int `json:"bySeverity"`
	ByRule         map[string]int   `json:"byRule"`
	Window         string           `json:"window"`
}
