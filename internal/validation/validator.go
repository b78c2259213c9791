package validation

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/betops/balancecore/internal/audit"
	"github.com/betops/balancecore/pkg/metrics"
)

// Result reports the outcome of a single validation. Errors block the
// change; warnings are advisory and never do.
type Result struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// BulkChange is one item of a bulk validation request.
type BulkChange struct {
	CustomerID     string
	CurrentBalance float64
	ChangeAmount   float64
	ChangeType     audit.ChangeType
	Tier           string
}

// BulkResult pairs a bulk item with its outcome. Err is set only for
// malformed input.
type BulkResult struct {
	Result *Result
	Err    error
}

// Validator checks proposed balance changes against static bounds and
// the customer's rolling change totals.
type Validator struct {
	tracker *ChangeTracker
	logger  *zap.Logger
}

// NewValidator creates a new validator backed by the given tracker.
func NewValidator(tracker *ChangeTracker, logger *zap.Logger) (*Validator, error) {
	if tracker == nil {
		return nil, fmt.Errorf("change tracker is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Validator{tracker: tracker, logger: logger}, nil
}

// ValidateBalanceChange checks a proposed change. Rule violations are
// reported in the result, never as an error; the returned error is
// reserved for malformed input (missing customer id, non-finite amounts,
// unknown change type).
func (v *Validator) ValidateBalanceChange(customerID string, currentBalance, changeAmount float64, changeType audit.ChangeType, rules Rules) (*Result, error) {
	if customerID == "" {
		return nil, fmt.Errorf("customer id is required")
	}
	if math.IsNaN(changeAmount) || math.IsInf(changeAmount, 0) {
		return nil, fmt.Errorf("change amount must be finite")
	}
	if math.IsNaN(currentBalance) || math.IsInf(currentBalance, 0) {
		return nil, fmt.Errorf("current balance must be finite")
	}
	if !changeType.Known() {
		return nil, fmt.Errorf("unknown change type %q", changeType)
	}

	current := decimal.NewFromFloat(currentBalance)
	amount := decimal.NewFromFloat(changeAmount)
	newBalance := current.Add(amount)

	result := &Result{IsValid: true, Errors: []string{}, Warnings: []string{}}

	if newBalance.LessThan(rules.MinBalance) {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"new balance %s is below minimum limit %s",
			newBalance.StringFixed(2), rules.MinBalance.StringFixed(2)))
		metrics.ValidationFailures.WithLabelValues("min_balance").Inc()
	}
	if newBalance.GreaterThan(rules.MaxBalance) {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"new balance %s exceeds maximum limit %s",
			newBalance.StringFixed(2), rules.MaxBalance.StringFixed(2)))
		metrics.ValidationFailures.WithLabelValues("max_balance").Inc()
	}

	dayTotal, weekTotal := v.tracker.Totals(customerID)
	magnitude := amount.Abs()
	if dayTotal.Add(magnitude).GreaterThan(rules.DailyChangeLimit) {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"daily change limit %s exceeded: %s already changed in the last 24h",
			rules.DailyChangeLimit.StringFixed(2), dayTotal.StringFixed(2)))
		metrics.ValidationFailures.WithLabelValues("daily_limit").Inc()
	}
	if weekTotal.Add(magnitude).GreaterThan(rules.WeeklyChangeLimit) {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"weekly change limit %s exceeded: %s already changed in the last 7 days",
			rules.WeeklyChangeLimit.StringFixed(2), weekTotal.StringFixed(2)))
		metrics.ValidationFailures.WithLabelValues("weekly_limit").Inc()
	}

	// Advisory thresholds: critical is evaluated before warning and wins.
	if newBalance.LessThanOrEqual(rules.CriticalThreshold) {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"balance %s at or below critical threshold %s",
			newBalance.StringFixed(2), rules.CriticalThreshold.StringFixed(2)))
	} else if newBalance.LessThanOrEqual(rules.WarningThreshold) {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"balance %s at or below warning threshold %s",
			newBalance.StringFixed(2), rules.WarningThreshold.StringFixed(2)))
	}

	if len(result.Errors) > 0 {
		result.IsValid = false
		v.logger.Debug("Balance change rejected",
			zap.String("customer_id", customerID),
			zap.Float64("change_amount", changeAmount),
			zap.Strings("errors", result.Errors))
	}

	return result, nil
}

// ValidateBulk validates every item independently and never
// short-circuits: a malformed item is reported in its own slot.
func (v *Validator) ValidateBulk(changes []BulkChange) []BulkResult {
	results := make([]BulkResult, len(changes))
	for i, change := range changes {
		result, err := v.ValidateBalanceChange(
			change.CustomerID, change.CurrentBalance, change.ChangeAmount,
			change.ChangeType, RulesForTier(change.Tier))
		results[i] = BulkResult{Result: result, Err: err}
	}
	return results
}

// RecordChange feeds an applied change into the rolling window used by
// the daily and weekly limit checks.
func (v *Validator) RecordChange(customerID string, changeAmount float64) error {
	if customerID == "" {
		return fmt.Errorf("customer id is required")
	}
	if math.IsNaN(changeAmount) || math.IsInf(changeAmount, 0) {
		return fmt.Errorf("change amount must be finite")
	}
	v.tracker.Record(customerID, decimal.NewFromFloat(changeAmount))
	return nil
}
