package balance

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/betops/balancecore/internal/audit"
	"github.com/betops/balancecore/internal/notification"
	"github.com/betops/balancecore/internal/validation"
)

type fixture struct {
	svc    *Service
	trail  *audit.Trail
	engine *notification.Engine
}

func newFixture(t *testing.T, committer Committer) *fixture {
	t.Helper()
	log := zap.NewNop()

	validator, err := validation.NewValidator(validation.NewChangeTracker(), log)
	require.NoError(t, err)

	trail, err := audit.NewTrail(log, nil)
	require.NoError(t, err)

	engine, err := notification.NewEngine(notification.NewRegistry(), log)
	require.NoError(t, err)

	svc, err := NewService(log, validator, trail, engine, committer)
	require.NoError(t, err)

	return &fixture{svc: svc, trail: trail, engine: engine}
}

type recordingCommitter struct {
	calls    int
	lastSeen decimal.Decimal
	fail     bool
}

func (r *recordingCommitter) CommitBalance(ctx context.Context, customerID string, newBalance decimal.Decimal) error {
	r.calls++
	r.lastSeen = newBalance
	if r.fail {
		return fmt.Errorf("balance store unavailable")
	}
	return nil
}

func TestPerformBalanceChange(t *testing.T) {
	t.Run("SuccessfulChange", func(t *testing.T) {
		f := newFixture(t, nil)

		result := f.svc.PerformBalanceChange(context.Background(), Request{
			CustomerID:     "cust-1",
			AgentID:        "agent-1",
			CurrentBalance: 10000,
			ChangeAmount:   2500,
			ChangeType:     audit.ChangeTypeDeposit,
			Reason:         audit.ReasonCustomerRequest,
			PerformedBy:    "ops-user",
			Tier:           validation.TierGold,
		})

		require.True(t, result.Success)
		assert.NoError(t, result.Error)
		assert.True(t, result.NewBalance.Equal(decimal.NewFromInt(12500)))
		require.NotNil(t, result.AuditEvent)
		assert.True(t, result.AuditEvent.NewBalance.Equal(result.NewBalance))

		events := f.trail.CustomerEvents("cust-1", audit.QueryFilter{})
		require.Len(t, events, 1)
		assert.Equal(t, result.AuditEvent.ID, events[0].ID)
	})

	t.Run("ValidationFailureHasNoSideEffects", func(t *testing.T) {
		f := newFixture(t, nil)

		result := f.svc.PerformBalanceChange(context.Background(), Request{
			CustomerID:     "cust-2",
			CurrentBalance: 0,
			ChangeAmount:   -5000,
			ChangeType:     audit.ChangeTypeWithdrawal,
			Tier:           validation.TierBronze,
		})

		require.False(t, result.Success)
		assert.Error(t, result.Error)
		assert.True(t, result.NewBalance.Equal(decimal.Zero))
		require.NotNil(t, result.Validation)
		assert.False(t, result.Validation.IsValid)
		assert.Nil(t, result.AuditEvent)

		assert.Empty(t, f.trail.CustomerEvents("cust-2", audit.QueryFilter{}))
		assert.Empty(t, f.engine.CustomerAlerts("cust-2", notification.AlertFilter{}))
	})

	t.Run("MalformedInputFailsFast", func(t *testing.T) {
		f := newFixture(t, nil)

		result := f.svc.PerformBalanceChange(context.Background(), Request{
			CustomerID:     "cust-3",
			CurrentBalance: 100,
			ChangeAmount:   math.NaN(),
			ChangeType:     audit.ChangeTypeDeposit,
		})

		assert.False(t, result.Success)
		assert.Error(t, result.Error)
		assert.Empty(t, f.trail.CustomerEvents("cust-3", audit.QueryFilter{}))
	})

	t.Run("CriticalWarningRaisesCriticalAlert", func(t *testing.T) {
		f := newFixture(t, nil)

		result := f.svc.PerformBalanceChange(context.Background(), Request{
			CustomerID:     "cust-4",
			AgentID:        "agent-4",
			CurrentBalance: 200,
			ChangeAmount:   -250,
			ChangeType:     audit.ChangeTypeWager,
			Reason:         audit.ReasonBetPlaced,
			Tier:           validation.TierBronze,
		})

		require.True(t, result.Success)
		assert.True(t, result.NewBalance.Equal(decimal.NewFromInt(-50)))
		require.NotEmpty(t, result.Validation.Warnings)

		alerts := f.engine.CustomerAlerts("cust-4", notification.AlertFilter{})
		require.Len(t, alerts, 1)
		assert.Equal(t, notification.AlertCritical, alerts[0].Type)
		assert.True(t, alerts[0].Threshold.Equal(decimal.NewFromInt(100)))
		assert.True(t, alerts[0].CurrentBalance.Equal(result.NewBalance))

		f.engine.Drain()
	})

	t.Run("WarningMapsToWarningAlert", func(t *testing.T) {
		f := newFixture(t, nil)

		result := f.svc.PerformBalanceChange(context.Background(), Request{
			CustomerID:     "cust-5",
			CurrentBalance: 200,
			ChangeAmount:   -120,
			ChangeType:     audit.ChangeTypeWager,
			Tier:           validation.TierBronze,
		})

		require.True(t, result.Success)

		alerts := f.engine.CustomerAlerts("cust-5", notification.AlertFilter{})
		require.Len(t, alerts, 1)
		assert.Equal(t, notification.AlertWarning, alerts[0].Type)
		assert.True(t, alerts[0].Threshold.Equal(decimal.NewFromInt(1000)))

		f.engine.Drain()
	})

	t.Run("DailyLimitBlocksSecondChange", func(t *testing.T) {
		f := newFixture(t, nil)
		rules := validation.Rules{
			MinBalance:        decimal.NewFromInt(-1000),
			MaxBalance:        decimal.NewFromInt(100000),
			WarningThreshold:  decimal.NewFromInt(100),
			CriticalThreshold: decimal.NewFromInt(50),
			DailyChangeLimit:  decimal.NewFromInt(1000),
			WeeklyChangeLimit: decimal.NewFromInt(100000),
		}

		first := f.svc.PerformBalanceChange(context.Background(), Request{
			CustomerID:     "cust-6",
			CurrentBalance: 1000,
			ChangeAmount:   600,
			ChangeType:     audit.ChangeTypeDeposit,
			Rules:          &rules,
		})
		require.True(t, first.Success)

		second := f.svc.PerformBalanceChange(context.Background(), Request{
			CustomerID:     "cust-6",
			CurrentBalance: 1600,
			ChangeAmount:   600,
			ChangeType:     audit.ChangeTypeDeposit,
			Rules:          &rules,
		})
		require.False(t, second.Success)
		require.NotNil(t, second.Validation)
		assert.Contains(t, second.Validation.Errors[0], "daily change limit")

		// Only the first change reached the audit trail.
		assert.Len(t, f.trail.CustomerEvents("cust-6", audit.QueryFilter{}), 1)
	})

	t.Run("CommitterReceivesNewBalance", func(t *testing.T) {
		committer := &recordingCommitter{}
		f := newFixture(t, committer)

		result := f.svc.PerformBalanceChange(context.Background(), Request{
			CustomerID:     "cust-7",
			CurrentBalance: 500,
			ChangeAmount:   250,
			ChangeType:     audit.ChangeTypeDeposit,
			Tier:           validation.TierGold,
		})

		require.True(t, result.Success)
		assert.Equal(t, 1, committer.calls)
		assert.True(t, committer.lastSeen.Equal(decimal.NewFromInt(750)))
	})

	t.Run("CommitFailureLeavesNoAuditRecord", func(t *testing.T) {
		committer := &recordingCommitter{fail: true}
		f := newFixture(t, committer)

		result := f.svc.PerformBalanceChange(context.Background(), Request{
			CustomerID:     "cust-8",
			CurrentBalance: 500,
			ChangeAmount:   250,
			ChangeType:     audit.ChangeTypeDeposit,
			Tier:           validation.TierGold,
		})

		require.False(t, result.Success)
		assert.Error(t, result.Error)
		assert.True(t, result.NewBalance.Equal(decimal.NewFromInt(500)))
		assert.Empty(t, f.trail.CustomerEvents("cust-8", audit.QueryFilter{}))
	})

	t.Run("UnknownChangeTypeFailsBeforeCommit", func(t *testing.T) {
		committer := &recordingCommitter{}
		f := newFixture(t, committer)

		result := f.svc.PerformBalanceChange(context.Background(), Request{
			CustomerID:     "cust-10",
			CurrentBalance: 500,
			ChangeAmount:   250,
			ChangeType:     audit.ChangeType(""),
			Tier:           validation.TierGold,
		})

		require.False(t, result.Success)
		assert.Error(t, result.Error)
		// The external store must stay untouched when the change fails.
		assert.Equal(t, 0, committer.calls)
		assert.Empty(t, f.trail.CustomerEvents("cust-10", audit.QueryFilter{}))
	})

	t.Run("CommitterNotCalledOnValidationFailure", func(t *testing.T) {
		committer := &recordingCommitter{}
		f := newFixture(t, committer)

		result := f.svc.PerformBalanceChange(context.Background(), Request{
			CustomerID:     "cust-9",
			CurrentBalance: 0,
			ChangeAmount:   -5000,
			ChangeType:     audit.ChangeTypeWithdrawal,
			Tier:           validation.TierBronze,
		})

		assert.False(t, result.Success)
		assert.Equal(t, 0, committer.calls)
	})
}

func TestConcurrentChangesSameCustomer(t *testing.T) {
	f := newFixture(t, nil)
	rules := validation.Rules{
		MinBalance:        decimal.NewFromInt(-1000000),
		MaxBalance:        decimal.NewFromInt(1000000),
		WarningThreshold:  decimal.NewFromInt(-999999),
		CriticalThreshold: decimal.NewFromInt(-999999),
		DailyChangeLimit:  decimal.NewFromInt(1000),
		WeeklyChangeLimit: decimal.NewFromInt(1000000),
	}

	const attempts = 20
	results := make(chan *Result, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			results <- f.svc.PerformBalanceChange(context.Background(), Request{
				CustomerID:     "cust-race",
				CurrentBalance: 0,
				ChangeAmount:   600,
				ChangeType:     audit.ChangeTypeDeposit,
				Rules:          &rules,
			})
		}()
	}

	succeeded := 0
	for i := 0; i < attempts; i++ {
		if r := <-results; r.Success {
			succeeded++
		}
	}

	// With a 1000 daily limit, only one 600 change can ever be admitted;
	// serialization per customer means no check-then-act race lets a
	// second one through.
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.trail.CustomerEvents("cust-race", audit.QueryFilter{}), 1)
	f.engine.Drain()
}
