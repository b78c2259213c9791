package validation

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/betops/balancecore/internal/audit"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(NewChangeTracker(), zap.NewNop())
	require.NoError(t, err)
	return v
}

func TestValidateBalanceChange(t *testing.T) {
	t.Run("DiamondTierLargeWithdrawal", func(t *testing.T) {
		v := newTestValidator(t)
		rules := RulesForTier(TierDiamond)

		result, err := v.ValidateBalanceChange("cust-1", 10000, -40000, audit.ChangeTypeWithdrawal, rules)
		require.NoError(t, err)

		assert.True(t, result.IsValid)
		assert.Empty(t, result.Errors)
	})

	t.Run("BronzeTierCriticalThreshold", func(t *testing.T) {
		v := newTestValidator(t)
		rules := RulesForTier(TierBronze)

		result, err := v.ValidateBalanceChange("cust-2", 200, -250, audit.ChangeTypeWager, rules)
		require.NoError(t, err)

		assert.True(t, result.IsValid)
		assert.Empty(t, result.Errors)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "critical threshold")
	})

	t.Run("BelowMinimumLimit", func(t *testing.T) {
		v := newTestValidator(t)
		rules := RulesForTier(TierBronze)

		result, err := v.ValidateBalanceChange("cust-3", 0, -2000, audit.ChangeTypeWithdrawal, rules)
		require.NoError(t, err)

		assert.False(t, result.IsValid)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "below minimum limit")
	})

	t.Run("ExceedsMaximumLimit", func(t *testing.T) {
		v := newTestValidator(t)
		rules := RulesForTier(TierBronze)

		result, err := v.ValidateBalanceChange("cust-4", 99000, 5000, audit.ChangeTypeDeposit, rules)
		require.NoError(t, err)

		assert.False(t, result.IsValid)
		require.NotEmpty(t, result.Errors)
		assert.Contains(t, result.Errors[0], "exceeds maximum limit")
	})

	t.Run("DailyLimitSecondCallRejected", func(t *testing.T) {
		v := newTestValidator(t)
		rules := Rules{
			MinBalance:        decimal.NewFromInt(-1000),
			MaxBalance:        decimal.NewFromInt(100000),
			WarningThreshold:  decimal.NewFromInt(100),
			CriticalThreshold: decimal.NewFromInt(50),
			DailyChangeLimit:  decimal.NewFromInt(1000),
			WeeklyChangeLimit: decimal.NewFromInt(100000),
		}

		first, err := v.ValidateBalanceChange("cust-5", 1000, 600, audit.ChangeTypeDeposit, rules)
		require.NoError(t, err)
		assert.True(t, first.IsValid)

		require.NoError(t, v.RecordChange("cust-5", 600))

		second, err := v.ValidateBalanceChange("cust-5", 1600, 600, audit.ChangeTypeDeposit, rules)
		require.NoError(t, err)
		assert.False(t, second.IsValid)
		require.NotEmpty(t, second.Errors)
		assert.Contains(t, second.Errors[0], "daily change limit")
	})

	t.Run("WeeklyLimitRejected", func(t *testing.T) {
		v := newTestValidator(t)
		rules := RulesForTier(TierBronze) // weekly limit 50000

		for i := 0; i < 5; i++ {
			require.NoError(t, v.RecordChange("cust-6", 9900))
		}

		result, err := v.ValidateBalanceChange("cust-6", 0, 600, audit.ChangeTypeDeposit, rules)
		require.NoError(t, err)
		assert.False(t, result.IsValid)

		joined := strings.Join(result.Errors, " ")
		assert.Contains(t, joined, "weekly change limit")
	})

	t.Run("WarningThresholdAdvisoryOnly", func(t *testing.T) {
		v := newTestValidator(t)
		rules := RulesForTier(TierBronze) // warning 100, critical 50

		result, err := v.ValidateBalanceChange("cust-7", 200, -120, audit.ChangeTypeWager, rules)
		require.NoError(t, err)

		assert.True(t, result.IsValid)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "warning threshold")
		assert.NotContains(t, result.Warnings[0], "critical")
	})

	t.Run("InBoundsChangesAlwaysValid", func(t *testing.T) {
		v := newTestValidator(t)
		rules := RulesForTier(TierGold)

		cases := []struct {
			current float64
			amount  float64
		}{
			{0, 0},
			{500, 250},
			{1000, -500},
			{-5000, 4000},
			{2500.55, -2500.55},
		}
		for i, tc := range cases {
			result, err := v.ValidateBalanceChange(fmt.Sprintf("cust-prop-%d", i), tc.current, tc.amount, audit.ChangeTypeAdjustment, rules)
			require.NoError(t, err)
			assert.True(t, result.IsValid, "current=%v amount=%v", tc.current, tc.amount)
			assert.Empty(t, result.Errors)
		}
	})

	t.Run("MalformedInput", func(t *testing.T) {
		v := newTestValidator(t)
		rules := RulesForTier(TierBronze)

		_, err := v.ValidateBalanceChange("", 100, 10, audit.ChangeTypeDeposit, rules)
		assert.Error(t, err)

		_, err = v.ValidateBalanceChange("cust-8", 100, math.NaN(), audit.ChangeTypeDeposit, rules)
		assert.Error(t, err)

		_, err = v.ValidateBalanceChange("cust-8", math.Inf(1), 10, audit.ChangeTypeDeposit, rules)
		assert.Error(t, err)

		_, err = v.ValidateBalanceChange("cust-8", 100, 10, audit.ChangeType(""), rules)
		assert.Error(t, err)

		_, err = v.ValidateBalanceChange("cust-8", 100, 10, audit.ChangeType("transfer"), rules)
		assert.Error(t, err)
	})
}

func TestValidateBulk(t *testing.T) {
	v := newTestValidator(t)

	results := v.ValidateBulk([]BulkChange{
		{CustomerID: "bulk-1", CurrentBalance: 100, ChangeAmount: 50, ChangeType: audit.ChangeTypeDeposit, Tier: TierGold},
		{CustomerID: "", CurrentBalance: 100, ChangeAmount: 50, ChangeType: audit.ChangeTypeDeposit, Tier: TierGold},
		{CustomerID: "bulk-3", CurrentBalance: 0, ChangeAmount: -5000, ChangeType: audit.ChangeTypeWithdrawal, Tier: TierBronze},
	})

	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.True(t, results[0].Result.IsValid)

	// Malformed item is reported in its own slot without short-circuiting.
	assert.Error(t, results[1].Err)
	assert.Nil(t, results[1].Result)

	assert.NoError(t, results[2].Err)
	assert.False(t, results[2].Result.IsValid)
}

func TestRulesForTier(t *testing.T) {
	t.Run("CaseInsensitive", func(t *testing.T) {
		assert.Equal(t, RulesForTier(TierDiamond), RulesForTier("DIAMOND"))
		assert.Equal(t, RulesForTier(TierGold), RulesForTier(" Gold "))
	})

	t.Run("UnknownTierFallsBackToBronze", func(t *testing.T) {
		assert.Equal(t, RulesForTier(TierBronze), RulesForTier("copper"))
		assert.Equal(t, RulesForTier(TierBronze), RulesForTier(""))
	})

	t.Run("TiersWidenMonotonically", func(t *testing.T) {
		order := []string{TierBronze, TierSilver, TierGold, TierPlatinum, TierDiamond}
		for i := 1; i < len(order); i++ {
			lower := RulesForTier(order[i-1])
			higher := RulesForTier(order[i])

			assert.True(t, higher.MinBalance.LessThan(lower.MinBalance), "%s min", order[i])
			assert.True(t, higher.MaxBalance.GreaterThan(lower.MaxBalance), "%s max", order[i])
			assert.True(t, higher.DailyChangeLimit.GreaterThan(lower.DailyChangeLimit), "%s daily", order[i])
			assert.True(t, higher.WeeklyChangeLimit.GreaterThan(lower.WeeklyChangeLimit), "%s weekly", order[i])
		}
	})
}
