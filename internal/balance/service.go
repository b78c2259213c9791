// Package balance composes the validator, audit trail and notification
// engine into one logical "apply balance change" operation.
package balance

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/betops/balancecore/internal/audit"
	"github.com/betops/balancecore/internal/notification"
	"github.com/betops/balancecore/internal/validation"
	"github.com/betops/balancecore/pkg/metrics"
)

// Committer persists the authoritative balance value. The core never
// stores balances itself; the committer is called only after validation
// succeeds, and the caller must only persist NewBalance on Success.
type Committer interface {
	CommitBalance(ctx context.Context, customerID string, newBalance decimal.Decimal) error
}

// Request describes one proposed balance change. Rules, when nil, are
// resolved from the customer's VIP tier.
type Request struct {
	CustomerID     string
	AgentID        string
	CurrentBalance float64
	ChangeAmount   float64
	ChangeType     audit.ChangeType
	Reason         audit.ChangeReason
	PerformedBy    string
	Tier           string
	Rules          *validation.Rules
	Metadata       map[string]interface{}
}

// Result reports the outcome of a balance change. NewBalance is only
// meaningful when Success is true; on failure it echoes the current
// balance.
type Result struct {
	Success    bool
	NewBalance decimal.Decimal
	Validation *validation.Result
	AuditEvent *audit.BalanceChangeEvent
	Error      error
}

// Service is the orchestrator for balance mutations.
type Service struct {
	logger    *zap.Logger
	validator *validation.Validator
	trail     *audit.Trail
	engine    *notification.Engine
	committer Committer

	mu            sync.Mutex
	customerLocks map[string]*sync.Mutex
}

// NewService creates the orchestrator. The committer may be nil, in
// which case the caller is responsible for persisting the new balance.
func NewService(logger *zap.Logger, validator *validation.Validator, trail *audit.Trail, engine *notification.Engine, committer Committer) (*Service, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if trail == nil {
		return nil, fmt.Errorf("audit trail is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("notification engine is required")
	}

	return &Service{
		logger:        logger,
		validator:     validator,
		trail:         trail,
		engine:        engine,
		committer:     committer,
		customerLocks: make(map[string]*sync.Mutex),
	}, nil
}

// customerLock returns the mutex serializing all changes for one
// customer, eliminating check-then-act races between the rolling limit
// read and the aggregate append.
func (s *Service) customerLock(customerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.customerLocks[customerID]
	if !ok {
		lock = &sync.Mutex{}
		s.customerLocks[customerID] = lock
	}
	return lock
}

// PerformBalanceChange validates, commits, audits and alerts for one
// balance change. On validation failure or internal error no audit or
// alert state is created and Success is false.
func (s *Service) PerformBalanceChange(ctx context.Context, req Request) (result *Result) {
	currentBalance := decimal.Zero
	if !math.IsNaN(req.CurrentBalance) && !math.IsInf(req.CurrentBalance, 0) {
		currentBalance = decimal.NewFromFloat(req.CurrentBalance)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Balance change panicked",
				zap.String("customer_id", req.CustomerID),
				zap.Any("panic", r))
			metrics.BalanceChangesProcessed.WithLabelValues("failed").Inc()
			result = &Result{
				Success:    false,
				NewBalance: currentBalance,
				Error:      fmt.Errorf("internal error: %v", r),
			}
		}
	}()

	rules := validation.RulesForTier(req.Tier)
	if req.Rules != nil {
		rules = *req.Rules
	}

	lock := s.customerLock(req.CustomerID)
	lock.Lock()
	defer lock.Unlock()

	vres, err := s.validator.ValidateBalanceChange(
		req.CustomerID, req.CurrentBalance, req.ChangeAmount, req.ChangeType, rules)
	if err != nil {
		metrics.BalanceChangesProcessed.WithLabelValues("failed").Inc()
		return &Result{Success: false, NewBalance: currentBalance, Error: err}
	}

	if !vres.IsValid {
		metrics.BalanceChangesProcessed.WithLabelValues("rejected").Inc()
		return &Result{
			Success:    false,
			NewBalance: currentBalance,
			Validation: vres,
			Error:      fmt.Errorf("validation failed: %s", strings.Join(vres.Errors, "; ")),
		}
	}

	changeAmount := decimal.NewFromFloat(req.ChangeAmount)
	newBalance := currentBalance.Add(changeAmount)

	if s.committer != nil {
		if err := s.committer.CommitBalance(ctx, req.CustomerID, newBalance); err != nil {
			s.logger.Error("Balance commit failed",
				zap.String("customer_id", req.CustomerID),
				zap.Error(err))
			metrics.BalanceChangesProcessed.WithLabelValues("failed").Inc()
			return &Result{Success: false, NewBalance: currentBalance, Validation: vres, Error: err}
		}
	}

	event, err := s.trail.Record(audit.RecordParams{
		CustomerID:      req.CustomerID,
		AgentID:         req.AgentID,
		ChangeType:      req.ChangeType,
		PreviousBalance: currentBalance,
		ChangeAmount:    changeAmount,
		Reason:          req.Reason,
		PerformedBy:     req.PerformedBy,
		Metadata:        req.Metadata,
	})
	if err != nil {
		metrics.BalanceChangesProcessed.WithLabelValues("failed").Inc()
		return &Result{Success: false, NewBalance: currentBalance, Validation: vres, Error: err}
	}

	if err := s.validator.RecordChange(req.CustomerID, req.ChangeAmount); err != nil {
		// Validation already passed with the same inputs, so this can
		// only fire on an invariant violation.
		s.logger.Error("Failed to record change in rolling window",
			zap.String("customer_id", req.CustomerID),
			zap.Error(err))
	}

	s.raiseAlerts(req, vres, newBalance, currentBalance, changeAmount)

	metrics.BalanceChangesProcessed.WithLabelValues("accepted").Inc()
	return &Result{
		Success:    true,
		NewBalance: newBalance,
		Validation: vres,
		AuditEvent: event,
	}
}

// raiseAlerts maps advisory validation warnings onto threshold alerts.
func (s *Service) raiseAlerts(req Request, vres *validation.Result, newBalance, previousBalance, changeAmount decimal.Decimal) {
	for _, warning := range vres.Warnings {
		var alertType notification.AlertType
		var threshold decimal.Decimal

		lowered := strings.ToLower(warning)
		switch {
		case strings.Contains(lowered, "critical"):
			alertType = notification.AlertCritical
			threshold = decimal.NewFromInt(100)
		case strings.Contains(lowered, "warning"):
			alertType = notification.AlertWarning
			threshold = decimal.NewFromInt(1000)
		default:
			continue
		}

		if _, err := s.engine.CreateAlert(notification.AlertParams{
			CustomerID:      req.CustomerID,
			AgentID:         req.AgentID,
			Type:            alertType,
			Threshold:       threshold,
			CurrentBalance:  newBalance,
			PreviousBalance: previousBalance,
			TriggerAmount:   changeAmount,
			Message:         warning,
		}); err != nil {
			s.logger.Error("Failed to create alert for validation warning",
				zap.String("customer_id", req.CustomerID),
				zap.String("warning", warning),
				zap.Error(err))
		}
	}
}
