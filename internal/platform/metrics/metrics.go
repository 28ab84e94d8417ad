package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the deletion service.
type Metrics struct {
	DeletionRequestsCreated prometheus.Counter
	DeletionTransitions     *prometheus.CounterVec
	HardDeletes             prometheus.Counter
	AuditEntries            *prometheus.CounterVec
	AlertsTriggered         *prometheus.CounterVec
	NotificationFailures    *prometheus.CounterVec
	ReportDuration          prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		DeletionRequestsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "erasure_deletion_requests_created_total",
			Help: "Total number of deletion requests initiated",
		}),
		DeletionTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "erasure_deletion_transitions_total",
			Help: "Deletion request status transitions by target status",
		}, []string{"status"}),
		HardDeletes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "erasure_hard_deletes_total",
			Help: "Accounts permanently deleted with anonymization",
		}),
		AuditEntries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "erasure_audit_entries_total",
			Help: "Audit log entries written by action",
		}, []string{"action"}),
		AlertsTriggered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "erasure_alerts_triggered_total",
			Help: "Monitoring alerts triggered by severity",
		}, []string{"severity"}),
		NotificationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "erasure_notification_failures_total",
			Help: "Alert notification failures by channel",
		}, []string{"channel"}),
		ReportDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "erasure_report_generation_seconds",
			Help:    "Time spent generating compliance reports",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
