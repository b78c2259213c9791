// Package validation admits or rejects proposed balance changes against
// static bounds and rolling per-customer change limits.
package validation

import (
	"strings"

	"github.com/shopspring/decimal"
)

// VIP tier names. Each tier widens bounds and limits monotonically.
const (
	TierBronze   = "bronze"
	TierSilver   = "silver"
	TierGold     = "gold"
	TierPlatinum = "platinum"
	TierDiamond  = "diamond"
)

// Rules bound a single customer's balance and its rate of change.
type Rules struct {
	MinBalance        decimal.Decimal `json:"min_balance"`
	MaxBalance        decimal.Decimal `json:"max_balance"`
	WarningThreshold  decimal.Decimal `json:"warning_threshold"`
	CriticalThreshold decimal.Decimal `json:"critical_threshold"`
	DailyChangeLimit  decimal.Decimal `json:"daily_change_limit"`
	WeeklyChangeLimit decimal.Decimal `json:"weekly_change_limit"`
}

func tierRules(min, max, warning, critical, daily, weekly int64) Rules {
	return Rules{
		MinBalance:        decimal.NewFromInt(min),
		MaxBalance:        decimal.NewFromInt(max),
		WarningThreshold:  decimal.NewFromInt(warning),
		CriticalThreshold: decimal.NewFromInt(critical),
		DailyChangeLimit:  decimal.NewFromInt(daily),
		WeeklyChangeLimit: decimal.NewFromInt(weekly),
	}
}

var tierPresets = map[string]Rules{
	TierBronze:   tierRules(-1000, 100000, 100, 50, 10000, 50000),
	TierSilver:   tierRules(-5000, 500000, 500, 100, 25000, 100000),
	TierGold:     tierRules(-10000, 1000000, 1000, 250, 50000, 250000),
	TierPlatinum: tierRules(-25000, 5000000, 2500, 500, 100000, 500000),
	TierDiamond:  tierRules(-50000, 10000000, 5000, 1000, 250000, 1000000),
}

// RulesForTier returns the validation rules preset for a VIP tier.
// Tier names are case-insensitive; unknown tiers fall back to bronze.
func RulesForTier(tier string) Rules {
	if rules, ok := tierPresets[strings.ToLower(strings.TrimSpace(tier))]; ok {
		return rules
	}
	return tierPresets[TierBronze]
}
