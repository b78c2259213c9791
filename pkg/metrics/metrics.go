package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BalanceChangesProcessed counts balance change requests by outcome (accepted/rejected/failed)
var BalanceChangesProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "balancecore_balance_changes_total",
		Help: "Total number of balance change requests processed",
	},
	[]string{"result"},
)

// ValidationFailures counts rule violations by the rule that rejected the change
var ValidationFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "balancecore_validation_failures_total",
		Help: "Total number of balance change validations rejected, by rule",
	},
	[]string{"rule"},
)

// Audit trail metrics
var (
	AuditEventsRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "balancecore_audit_events_recorded_total",
			Help: "Total number of balance change events written to the audit trail",
		},
	)

	AuditEventsEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "balancecore_audit_events_evicted_total",
			Help: "Total number of audit events evicted by the per-customer cap or retention purge",
		},
	)
)

// Notification engine metrics
var (
	AlertsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balancecore_alerts_created_total",
			Help: "Total number of threshold alerts created, by type and severity",
		},
		[]string{"type", "severity"},
	)

	AlertsEscalated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "balancecore_alerts_escalated_total",
			Help: "Total number of alert escalations",
		},
	)

	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balancecore_notifications_sent_total",
			Help: "Total number of notifications delivered per channel",
		},
		[]string{"channel"},
	)

	NotificationsSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "balancecore_notifications_suppressed_total",
			Help: "Total number of notification dispatches skipped by template cooldown",
		},
	)
)

func init() {
	prometheus.MustRegister(BalanceChangesProcessed, ValidationFailures)
	prometheus.MustRegister(AuditEventsRecorded, AuditEventsEvicted)
	prometheus.MustRegister(AlertsCreated, AlertsEscalated, NotificationsSent, NotificationsSuppressed)
}
