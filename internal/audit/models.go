// Package audit provides the append-only, multiply-indexed trail of
// customer balance change events together with a risk-scoring heuristic.
package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChangeType classifies a balance mutation.
type ChangeType string

const (
	ChangeTypeDeposit    ChangeType = "deposit"
	ChangeTypeWithdrawal ChangeType = "withdrawal"
	ChangeTypeWager      ChangeType = "wager"
	ChangeTypeSettlement ChangeType = "settlement"
	ChangeTypeAdjustment ChangeType = "adjustment"
	ChangeTypeSystem     ChangeType = "system"
)

var changeTypes = map[ChangeType]struct{}{
	ChangeTypeDeposit:    {},
	ChangeTypeWithdrawal: {},
	ChangeTypeWager:      {},
	ChangeTypeSettlement: {},
	ChangeTypeAdjustment: {},
	ChangeTypeSystem:     {},
}

// Known reports whether t is one of the declared change types.
func (t ChangeType) Known() bool {
	_, ok := changeTypes[t]
	return ok
}

// ChangeReason records why a balance mutation was performed.
type ChangeReason string

const (
	ReasonCustomerRequest   ChangeReason = "customer_request"
	ReasonBetPlaced         ChangeReason = "bet_placed"
	ReasonBetSettled        ChangeReason = "bet_settled"
	ReasonBonus             ChangeReason = "bonus"
	ReasonManualAdjustment  ChangeReason = "manual_adjustment"
	ReasonCorrection        ChangeReason = "correction"
	ReasonSystemMaintenance ChangeReason = "system_maintenance"
)

// BalanceChangeEvent is an immutable record of a single balance mutation.
// NewBalance always equals PreviousBalance + ChangeAmount exactly; the
// trail computes it rather than accepting it from the caller.
type BalanceChangeEvent struct {
	ID              uuid.UUID              `json:"id"`
	CustomerID      string                 `json:"customer_id"`
	AgentID         string                 `json:"agent_id"`
	Timestamp       time.Time              `json:"timestamp"`
	ChangeType      ChangeType             `json:"change_type"`
	PreviousBalance decimal.Decimal        `json:"previous_balance"`
	ChangeAmount    decimal.Decimal        `json:"change_amount"`
	NewBalance      decimal.Decimal        `json:"new_balance"`
	Reason          ChangeReason           `json:"reason"`
	PerformedBy     string                 `json:"performed_by"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	RiskScore       int                    `json:"risk_score"`
	IsActive        bool                   `json:"is_active"`
}

// RecordParams carries the inputs for recording a balance change event.
type RecordParams struct {
	CustomerID      string
	AgentID         string
	ChangeType      ChangeType
	PreviousBalance decimal.Decimal
	ChangeAmount    decimal.Decimal
	Reason          ChangeReason
	PerformedBy     string
	Metadata        map[string]interface{}
}

// QueryFilter narrows index-backed event queries. Zero values mean
// "no constraint"; Limit 0 returns everything after Offset.
type QueryFilter struct {
	Start  time.Time
	End    time.Time
	Type   ChangeType
	Offset int
	Limit  int
}

// SearchCriteria supports multi-predicate filtering across the whole trail.
// MinAmount/MaxAmount bound the absolute change amount.
type SearchCriteria struct {
	CustomerID  string
	AgentID     string
	Type        ChangeType
	Reason      ChangeReason
	MinAmount   *decimal.Decimal
	MaxAmount   *decimal.Decimal
	Start       time.Time
	End         time.Time
	PerformedBy string
	Offset      int
	Limit       int
}

// DayActivity aggregates one calendar day of trail activity.
type DayActivity struct {
	Count  int             `json:"count"`
	Volume decimal.Decimal `json:"volume"`
}

// Stats summarizes the current contents of the trail.
type Stats struct {
	TotalEvents     int                    `json:"total_events"`
	ByType          map[ChangeType]int     `json:"by_type"`
	ByReason        map[ChangeReason]int   `json:"by_reason"`
	UniqueCustomers int                    `json:"unique_customers"`
	UniqueAgents    int                    `json:"unique_agents"`
	AverageChange   decimal.Decimal        `json:"average_change"`
	MaxChange       decimal.Decimal        `json:"max_change"`
	Daily           map[string]DayActivity `json:"daily"`
}
