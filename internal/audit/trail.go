package audit

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/betops/balancecore/pkg/metrics"
)

const dayKeyFormat = "2006-01-02"

// Config holds audit trail configuration
type Config struct {
	MaxEventsPerCustomer int `yaml:"max_events_per_customer" json:"max_events_per_customer"`
}

// DefaultConfig returns default audit trail configuration
func DefaultConfig() *Config {
	return &Config{
		MaxEventsPerCustomer: 1000,
	}
}

// Trail is an in-memory append-only store of balance change events with
// secondary indices by customer, agent and calendar day. All four
// structures mutate under one lock so no id can ever exist in an index
// without existing in the primary store and the other two.
type Trail struct {
	mu     sync.RWMutex
	logger *zap.Logger
	config *Config

	events     map[uuid.UUID]*BalanceChangeEvent
	byCustomer map[string][]uuid.UUID // oldest first
	byAgent    map[string][]uuid.UUID
	byDay      map[string][]uuid.UUID

	now func() time.Time
}

// NewTrail creates a new audit trail
func NewTrail(logger *zap.Logger, config *Config) (*Trail, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxEventsPerCustomer <= 0 {
		return nil, fmt.Errorf("max events per customer must be positive")
	}

	return &Trail{
		logger:     logger,
		config:     config,
		events:     make(map[uuid.UUID]*BalanceChangeEvent),
		byCustomer: make(map[string][]uuid.UUID),
		byAgent:    make(map[string][]uuid.UUID),
		byDay:      make(map[string][]uuid.UUID),
		now:        time.Now,
	}, nil
}

// Record appends a balance change event to the trail, computes its risk
// score and maintains the per-customer cap by evicting the customer's
// oldest events from every index.
func (t *Trail) Record(params RecordParams) (*BalanceChangeEvent, error) {
	if params.CustomerID == "" {
		return nil, fmt.Errorf("customer id is required")
	}
	if !params.ChangeType.Known() {
		return nil, fmt.Errorf("unknown change type %q", params.ChangeType)
	}

	event := &BalanceChangeEvent{
		ID:              uuid.New(),
		CustomerID:      params.CustomerID,
		AgentID:         params.AgentID,
		Timestamp:       t.now().UTC(),
		ChangeType:      params.ChangeType,
		PreviousBalance: params.PreviousBalance,
		ChangeAmount:    params.ChangeAmount,
		NewBalance:      params.PreviousBalance.Add(params.ChangeAmount),
		Reason:          params.Reason,
		PerformedBy:     params.PerformedBy,
		Metadata:        params.Metadata,
		RiskScore:       riskScore(params.ChangeType, params.PreviousBalance, params.ChangeAmount),
		IsActive:        true,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	dayKey := event.Timestamp.Format(dayKeyFormat)
	t.events[event.ID] = event
	t.byCustomer[event.CustomerID] = append(t.byCustomer[event.CustomerID], event.ID)
	if event.AgentID != "" {
		t.byAgent[event.AgentID] = append(t.byAgent[event.AgentID], event.ID)
	}
	t.byDay[dayKey] = append(t.byDay[dayKey], event.ID)

	// Enforce the per-customer cap, oldest first.
	for len(t.byCustomer[event.CustomerID]) > t.config.MaxEventsPerCustomer {
		oldest := t.byCustomer[event.CustomerID][0]
		t.byCustomer[event.CustomerID] = t.byCustomer[event.CustomerID][1:]
		t.removeFromSecondaryIndices(oldest)
		delete(t.events, oldest)
		metrics.AuditEventsEvicted.Inc()
	}

	metrics.AuditEventsRecorded.Inc()
	t.logger.Debug("Balance change event recorded",
		zap.String("event_id", event.ID.String()),
		zap.String("customer_id", event.CustomerID),
		zap.String("change_type", string(event.ChangeType)),
		zap.Int("risk_score", event.RiskScore))

	return event, nil
}

// removeFromSecondaryIndices removes an id from the agent and day indices.
// Caller must hold the write lock. An id that is missing from an index it
// should belong to is an invariant violation and is logged loudly.
func (t *Trail) removeFromSecondaryIndices(id uuid.UUID) {
	event, ok := t.events[id]
	if !ok {
		t.logger.Error("Audit index inconsistency: id not in primary store",
			zap.String("event_id", id.String()))
		return
	}

	if event.AgentID != "" {
		if !removeID(t.byAgent, event.AgentID, id) {
			t.logger.Error("Audit index inconsistency: id missing from agent index",
				zap.String("event_id", id.String()),
				zap.String("agent_id", event.AgentID))
		}
	}

	dayKey := event.Timestamp.Format(dayKeyFormat)
	if !removeID(t.byDay, dayKey, id) {
		t.logger.Error("Audit index inconsistency: id missing from day index",
			zap.String("event_id", id.String()),
			zap.String("day", dayKey))
	}
}

// removeID deletes one id from an index bucket, dropping the bucket when
// it empties. Returns false when the id was not present.
func removeID(index map[string][]uuid.UUID, key string, id uuid.UUID) bool {
	ids, ok := index[key]
	if !ok {
		return false
	}
	for i, candidate := range ids {
		if candidate == id {
			index[key] = append(ids[:i], ids[i+1:]...)
			if len(index[key]) == 0 {
				delete(index, key)
			}
			return true
		}
	}
	return false
}

// CustomerEvents returns a customer's events, newest first, filtered and
// paginated per the query filter.
func (t *Trail) CustomerEvents(customerID string, filter QueryFilter) []*BalanceChangeEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.collect(t.byCustomer[customerID], filter)
}

// AgentEvents returns an agent's events, newest first.
func (t *Trail) AgentEvents(agentID string, filter QueryFilter) []*BalanceChangeEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.collect(t.byAgent[agentID], filter)
}

// DailyEvents returns the events recorded on one calendar day (UTC), newest first.
func (t *Trail) DailyEvents(day time.Time, filter QueryFilter) []*BalanceChangeEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.collect(t.byDay[day.UTC().Format(dayKeyFormat)], filter)
}

// collect walks an index bucket newest-first applying filter, offset and
// limit. Caller must hold at least the read lock.
func (t *Trail) collect(ids []uuid.UUID, filter QueryFilter) []*BalanceChangeEvent {
	var results []*BalanceChangeEvent
	skipped := 0

	for i := len(ids) - 1; i >= 0; i-- {
		event, ok := t.events[ids[i]]
		if !ok {
			t.logger.Error("Audit index inconsistency: indexed id not in primary store",
				zap.String("event_id", ids[i].String()))
			continue
		}
		if !matchesFilter(event, filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		results = append(results, event)
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}

	return results
}

func matchesFilter(event *BalanceChangeEvent, filter QueryFilter) bool {
	if !filter.Start.IsZero() && event.Timestamp.Before(filter.Start) {
		return false
	}
	if !filter.End.IsZero() && event.Timestamp.After(filter.End) {
		return false
	}
	if filter.Type != "" && event.ChangeType != filter.Type {
		return false
	}
	return true
}

// Search scans the trail with multi-predicate criteria, newest first.
func (t *Trail) Search(criteria SearchCriteria) []*BalanceChangeEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var matched []*BalanceChangeEvent
	for _, event := range t.events {
		if criteria.CustomerID != "" && event.CustomerID != criteria.CustomerID {
			continue
		}
		if criteria.AgentID != "" && event.AgentID != criteria.AgentID {
			continue
		}
		if criteria.Type != "" && event.ChangeType != criteria.Type {
			continue
		}
		if criteria.Reason != "" && event.Reason != criteria.Reason {
			continue
		}
		if criteria.PerformedBy != "" && event.PerformedBy != criteria.PerformedBy {
			continue
		}
		if !criteria.Start.IsZero() && event.Timestamp.Before(criteria.Start) {
			continue
		}
		if !criteria.End.IsZero() && event.Timestamp.After(criteria.End) {
			continue
		}
		magnitude := event.ChangeAmount.Abs()
		if criteria.MinAmount != nil && magnitude.LessThan(*criteria.MinAmount) {
			continue
		}
		if criteria.MaxAmount != nil && magnitude.GreaterThan(*criteria.MaxAmount) {
			continue
		}
		matched = append(matched, event)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].ID.String() > matched[j].ID.String()
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if criteria.Offset > 0 {
		if criteria.Offset >= len(matched) {
			return nil
		}
		matched = matched[criteria.Offset:]
	}
	if criteria.Limit > 0 && len(matched) > criteria.Limit {
		matched = matched[:criteria.Limit]
	}
	return matched
}

// GetStats summarizes the trail contents.
func (t *Trail) GetStats() *Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := &Stats{
		TotalEvents: len(t.events),
		ByType:      make(map[ChangeType]int),
		ByReason:    make(map[ChangeReason]int),
		Daily:       make(map[string]DayActivity),
	}

	customers := make(map[string]struct{})
	agents := make(map[string]struct{})
	total := decimal.Zero

	for _, event := range t.events {
		stats.ByType[event.ChangeType]++
		if event.Reason != "" {
			stats.ByReason[event.Reason]++
		}
		customers[event.CustomerID] = struct{}{}
		if event.AgentID != "" {
			agents[event.AgentID] = struct{}{}
		}

		magnitude := event.ChangeAmount.Abs()
		total = total.Add(magnitude)
		if magnitude.GreaterThan(stats.MaxChange) {
			stats.MaxChange = magnitude
		}

		dayKey := event.Timestamp.Format(dayKeyFormat)
		day := stats.Daily[dayKey]
		day.Count++
		day.Volume = day.Volume.Add(magnitude)
		stats.Daily[dayKey] = day
	}

	stats.UniqueCustomers = len(customers)
	stats.UniqueAgents = len(agents)
	if stats.TotalEvents > 0 {
		stats.AverageChange = total.Div(decimal.NewFromInt(int64(stats.TotalEvents)))
	}

	return stats
}

// ClearOldData purges events strictly older than retentionDays from the
// primary store and every index, returning the exact number removed.
func (t *Trail) ClearOldData(retentionDays int) int {
	cutoff := t.now().UTC().AddDate(0, 0, -retentionDays)

	t.mu.Lock()
	defer t.mu.Unlock()

	var stale []uuid.UUID
	for id, event := range t.events {
		if event.Timestamp.Before(cutoff) {
			stale = append(stale, id)
		}
	}

	for _, id := range stale {
		event := t.events[id]
		if !removeID(t.byCustomer, event.CustomerID, id) {
			t.logger.Error("Audit index inconsistency: id missing from customer index",
				zap.String("event_id", id.String()),
				zap.String("customer_id", event.CustomerID))
		}
		t.removeFromSecondaryIndices(id)
		delete(t.events, id)
		metrics.AuditEventsEvicted.Inc()
	}

	if len(stale) > 0 {
		t.logger.Info("Purged audit events past retention",
			zap.Int("removed", len(stale)),
			zap.Int("retention_days", retentionDays))
	}

	return len(stale)
}
