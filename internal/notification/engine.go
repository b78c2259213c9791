package notification

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/betops/balancecore/pkg/metrics"
)

// Engine stores threshold alerts, deduplicates dispatches via template
// cooldowns and drives the acknowledge/escalate lifecycle. Alerts are
// always stored; the cooldown only suppresses channel dispatch.
type Engine struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	registry *Registry
	senders  map[Channel]Sender

	alerts     map[uuid.UUID]*Alert
	byCustomer map[string][]uuid.UUID // oldest first
	byAgent    map[string][]uuid.UUID

	lastDispatch map[string]time.Time // customerID + "\x00" + templateID

	dispatchTimeout time.Duration
	dispatchWG      sync.WaitGroup

	now func() time.Time
}

// NewEngine creates a notification engine with the given template
// registry and channel senders.
func NewEngine(registry *Registry, logger *zap.Logger, senders ...Sender) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("template registry is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	e := &Engine{
		logger:          logger,
		registry:        registry,
		senders:         make(map[Channel]Sender),
		alerts:          make(map[uuid.UUID]*Alert),
		byCustomer:      make(map[string][]uuid.UUID),
		byAgent:         make(map[string][]uuid.UUID),
		lastDispatch:    make(map[string]time.Time),
		dispatchTimeout: 10 * time.Second,
		now:             time.Now,
	}
	for _, sender := range senders {
		e.senders[sender.Channel()] = sender
	}
	return e, nil
}

// CreateAlert derives severity from the alert type and threshold
// deviation, stores the alert unconditionally and triggers notification
// dispatch.
func (e *Engine) CreateAlert(params AlertParams) (*Alert, error) {
	if params.CustomerID == "" {
		return nil, fmt.Errorf("customer id is required")
	}
	switch params.Type {
	case AlertWarning, AlertCritical, AlertLimitExceeded:
	default:
		return nil, fmt.Errorf("unknown alert type: %s", params.Type)
	}

	now := e.now().UTC()
	alert := &Alert{
		ID:              uuid.New(),
		CustomerID:      params.CustomerID,
		AgentID:         params.AgentID,
		Type:            params.Type,
		Threshold:       params.Threshold,
		CurrentBalance:  params.CurrentBalance,
		PreviousBalance: params.PreviousBalance,
		TriggerAmount:   params.TriggerAmount,
		Message:         params.Message,
		Severity:        deriveSeverity(params.Type, params.Threshold, params.CurrentBalance),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	e.mu.Lock()
	e.alerts[alert.ID] = alert
	e.byCustomer[alert.CustomerID] = append(e.byCustomer[alert.CustomerID], alert.ID)
	if alert.AgentID != "" {
		e.byAgent[alert.AgentID] = append(e.byAgent[alert.AgentID], alert.ID)
	}
	snapshot := *alert
	e.mu.Unlock()

	metrics.AlertsCreated.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
	e.logger.Info("Alert created",
		zap.String("alert_id", alert.ID.String()),
		zap.String("customer_id", alert.CustomerID),
		zap.String("alert_type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)))

	e.notify(&snapshot, string(alert.Type), alert.Message, false)

	return &snapshot, nil
}

// notify resolves the template, applies the cooldown and fans out to the
// enabled channels. Cooldown bookkeeping is synchronous so that two
// rapid alerts for the same customer cannot both pass the check; channel
// I/O runs on its own goroutine and never blocks the caller.
func (e *Engine) notify(alert *Alert, templateID, message string, bypassCooldown bool) {
	template, ok := e.registry.Get(templateID)
	if !ok {
		e.logger.Warn("No template registered for notification",
			zap.String("template_id", templateID),
			zap.String("alert_id", alert.ID.String()))
		return
	}

	if !bypassCooldown && template.Cooldown > 0 {
		key := alert.CustomerID + "\x00" + template.ID
		e.mu.Lock()
		last, seen := e.lastDispatch[key]
		if seen && e.now().Sub(last) < template.Cooldown {
			e.mu.Unlock()
			metrics.NotificationsSuppressed.Inc()
			e.logger.Debug("Notification dispatch suppressed by cooldown",
				zap.String("template_id", template.ID),
				zap.String("customer_id", alert.CustomerID))
			return
		}
		e.lastDispatch[key] = e.now()
		e.mu.Unlock()
	}

	n := Notification{
		AlertID:    alert.ID,
		CustomerID: alert.CustomerID,
		TemplateID: template.ID,
		Subject:    renderTemplate(template.Subject, alert, message),
		Body:       renderTemplate(template.Body, alert, message),
		Priority:   template.Priority,
		Timestamp:  e.now().UTC(),
	}

	for _, channelConfig := range template.Channels {
		if !channelConfig.Enabled {
			continue
		}
		sender, ok := e.senders[channelConfig.Channel]
		if !ok {
			e.logger.Debug("No sender registered for channel",
				zap.String("channel", string(channelConfig.Channel)))
			continue
		}

		e.dispatchWG.Add(1)
		go func(sender Sender) {
			defer e.dispatchWG.Done()

			ctx, cancel := context.WithTimeout(context.Background(), e.dispatchTimeout)
			defer cancel()

			if err := sender.Send(ctx, n); err != nil {
				e.logger.Error("Failed to send notification via channel",
					zap.String("channel", string(sender.Channel())),
					zap.String("alert_id", n.AlertID.String()),
					zap.Error(err))
				return
			}
			metrics.NotificationsSent.WithLabelValues(string(sender.Channel())).Inc()
		}(sender)
	}
}

// renderTemplate substitutes named placeholders with alert fields.
// Monetary values render with two decimal places.
func renderTemplate(text string, alert *Alert, message string) string {
	replacer := strings.NewReplacer(
		"{alertId}", alert.ID.String(),
		"{customerId}", alert.CustomerID,
		"{agentId}", alert.AgentID,
		"{alertType}", string(alert.Type),
		"{threshold}", alert.Threshold.StringFixed(2),
		"{currentBalance}", alert.CurrentBalance.StringFixed(2),
		"{previousBalance}", alert.PreviousBalance.StringFixed(2),
		"{triggerAmount}", alert.TriggerAmount.StringFixed(2),
		"{severity}", string(alert.Severity),
		"{escalationLevel}", strconv.Itoa(alert.EscalationLevel),
		"{message}", message,
	)
	return replacer.Replace(text)
}

// Acknowledge marks an alert acknowledged and fires a cooldown-exempt
// resolution notification.
func (e *Engine) Acknowledge(alertID uuid.UUID, by, notes string) error {
	if by == "" {
		return fmt.Errorf("acknowledger is required")
	}

	e.mu.Lock()
	alert, ok := e.alerts[alertID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("alert not found: %s", alertID)
	}
	if alert.Acknowledged {
		e.mu.Unlock()
		return fmt.Errorf("alert already acknowledged: %s", alertID)
	}

	now := e.now().UTC()
	alert.Acknowledged = true
	alert.AcknowledgedBy = by
	alert.AcknowledgedAt = &now
	alert.ResolutionNotes = notes
	alert.UpdatedAt = now
	snapshot := *alert
	e.mu.Unlock()

	e.logger.Info("Alert acknowledged",
		zap.String("alert_id", alertID.String()),
		zap.String("acknowledged_by", by))

	e.notify(&snapshot, templateResolved, notes, true)
	return nil
}

// Escalate raises an alert's escalation level and moves its severity one
// step up the ladder, firing an urgent cooldown-exempt notification.
// The level can never decrease across calls.
func (e *Engine) Escalate(alertID uuid.UUID, newLevel int, reason string) error {
	e.mu.Lock()
	alert, ok := e.alerts[alertID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("alert not found: %s", alertID)
	}
	if newLevel <= alert.EscalationLevel {
		current := alert.EscalationLevel
		e.mu.Unlock()
		return fmt.Errorf("escalation level cannot decrease: %d <= %d", newLevel, current)
	}

	alert.EscalationLevel = newLevel
	alert.Severity = alert.Severity.Next()
	alert.UpdatedAt = e.now().UTC()
	snapshot := *alert
	e.mu.Unlock()

	metrics.AlertsEscalated.Inc()
	e.logger.Warn("Alert escalated",
		zap.String("alert_id", alertID.String()),
		zap.Int("escalation_level", newLevel),
		zap.String("severity", string(snapshot.Severity)),
		zap.String("reason", reason))

	e.notify(&snapshot, templateEscalated, reason, true)
	return nil
}

// Get returns a copy of the alert with the given id.
func (e *Engine) Get(alertID uuid.UUID) (*Alert, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	alert, ok := e.alerts[alertID]
	if !ok {
		return nil, false
	}
	snapshot := *alert
	return &snapshot, true
}

// CustomerAlerts returns a customer's alerts, newest first.
func (e *Engine) CustomerAlerts(customerID string, filter AlertFilter) []*Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.collect(e.byCustomer[customerID], filter)
}

// AgentAlerts returns an agent's alerts, newest first.
func (e *Engine) AgentAlerts(agentID string, filter AlertFilter) []*Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.collect(e.byAgent[agentID], filter)
}

// collect walks an index newest-first applying the filter. Caller must
// hold at least the read lock.
func (e *Engine) collect(ids []uuid.UUID, filter AlertFilter) []*Alert {
	var results []*Alert
	for i := len(ids) - 1; i >= 0; i-- {
		alert, ok := e.alerts[ids[i]]
		if !ok {
			continue
		}
		if filter.Acknowledged != nil && alert.Acknowledged != *filter.Acknowledged {
			continue
		}
		if filter.Severity != "" && alert.Severity != filter.Severity {
			continue
		}
		snapshot := *alert
		results = append(results, &snapshot)
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results
}

// UnacknowledgedAlerts returns every unacknowledged alert, newest first.
func (e *Engine) UnacknowledgedAlerts() []*Alert {
	return e.filterAll(func(a *Alert) bool { return !a.Acknowledged })
}

// CriticalAlerts returns unacknowledged critical-severity alerts, newest first.
func (e *Engine) CriticalAlerts() []*Alert {
	return e.filterAll(func(a *Alert) bool {
		return !a.Acknowledged && a.Severity == SeverityCritical
	})
}

func (e *Engine) filterAll(keep func(*Alert) bool) []*Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var results []*Alert
	for _, alert := range e.alerts {
		if keep(alert) {
			snapshot := *alert
			results = append(results, &snapshot)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results
}

// GetStats summarizes the alert population.
func (e *Engine) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := &Stats{
		ByType:     make(map[AlertType]int),
		BySeverity: make(map[Severity]int),
	}

	var totalResolution time.Duration
	acknowledged := 0
	escalated := 0

	for _, alert := range e.alerts {
		stats.Total++
		stats.ByType[alert.Type]++
		stats.BySeverity[alert.Severity]++
		if !alert.Acknowledged {
			stats.Unacknowledged++
		}
		if alert.Severity == SeverityCritical {
			stats.Critical++
		}
		if alert.Acknowledged && alert.AcknowledgedAt != nil {
			totalResolution += alert.AcknowledgedAt.Sub(alert.CreatedAt)
			acknowledged++
		}
		if alert.EscalationLevel > 0 {
			escalated++
		}
	}

	if acknowledged > 0 {
		stats.AvgResolutionTime = totalResolution / time.Duration(acknowledged)
	}
	if stats.Total > 0 {
		stats.EscalationRate = float64(escalated) / float64(stats.Total) * 100
	}

	return stats
}

// Drain waits for all in-flight channel dispatches to finish. Used on
// shutdown and in tests.
func (e *Engine) Drain() {
	e.dispatchWG.Wait()
}
