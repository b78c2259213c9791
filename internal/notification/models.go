// Package notification creates, deduplicates, dispatches and escalates
// balance threshold alerts.
package notification

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AlertType classifies a threshold alert.
type AlertType string

const (
	AlertWarning       AlertType = "warning"
	AlertCritical      AlertType = "critical"
	AlertLimitExceeded AlertType = "limit_exceeded"
)

// Severity orders alerts on the ladder low -> medium -> high -> critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityLadder = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Next returns the severity one step up the ladder; critical stays critical.
func (s Severity) Next() Severity {
	if i := s.rank(); i >= 0 && i < len(severityLadder)-1 {
		return severityLadder[i+1]
	}
	return s
}

// rank returns the position of a severity on the ladder, -1 when unknown.
func (s Severity) rank() int {
	for i, step := range severityLadder {
		if step == s {
			return i
		}
	}
	return -1
}

// Alert is a stored balance threshold alert. Alerts mutate only through
// Acknowledge and Escalate and are never physically deleted within the
// retention window.
type Alert struct {
	ID              uuid.UUID       `json:"id"`
	CustomerID      string          `json:"customer_id"`
	AgentID         string          `json:"agent_id"`
	Type            AlertType       `json:"alert_type"`
	Threshold       decimal.Decimal `json:"threshold"`
	CurrentBalance  decimal.Decimal `json:"current_balance"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	TriggerAmount   decimal.Decimal `json:"trigger_amount"`
	Message         string          `json:"message"`
	Severity        Severity        `json:"severity"`
	Acknowledged    bool            `json:"acknowledged"`
	AcknowledgedBy  string          `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time      `json:"acknowledged_at,omitempty"`
	EscalationLevel int             `json:"escalation_level"`
	ResolutionNotes string          `json:"resolution_notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// AlertParams carries the inputs for creating an alert.
type AlertParams struct {
	CustomerID      string
	AgentID         string
	Type            AlertType
	Threshold       decimal.Decimal
	CurrentBalance  decimal.Decimal
	PreviousBalance decimal.Decimal
	TriggerAmount   decimal.Decimal
	Message         string
}

// deriveSeverity maps an alert's type and its deviation from the
// threshold onto the severity ladder.
func deriveSeverity(alertType AlertType, threshold, currentBalance decimal.Decimal) Severity {
	deviation := threshold.Sub(currentBalance).Abs()

	switch alertType {
	case AlertCritical:
		return SeverityCritical
	case AlertLimitExceeded:
		if deviation.GreaterThan(decimal.NewFromInt(10000)) {
			return SeverityCritical
		}
		return SeverityHigh
	case AlertWarning:
		if deviation.GreaterThan(decimal.NewFromInt(1000)) {
			return SeverityHigh
		}
		if deviation.GreaterThan(decimal.NewFromInt(100)) {
			return SeverityMedium
		}
		return SeverityLow
	default:
		return SeverityLow
	}
}

// AlertFilter narrows alert queries. Nil / zero fields mean no constraint.
type AlertFilter struct {
	Acknowledged *bool
	Severity     Severity
	Limit        int
}

// Stats summarizes the engine's alert population.
type Stats struct {
	Total             int               `json:"total"`
	Unacknowledged    int               `json:"unacknowledged"`
	Critical          int               `json:"critical"`
	ByType            map[AlertType]int `json:"by_type"`
	BySeverity        map[Severity]int  `json:"by_severity"`
	AvgResolutionTime time.Duration     `json:"avg_resolution_time"`
	EscalationRate    float64           `json:"escalation_rate"`
}
