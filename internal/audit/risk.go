package audit

import "github.com/shopspring/decimal"

// The risk score is the sum of three threshold ladders, clamped to [0,100].
// Each ladder is an ordered table evaluated top to bottom; the first
// matching row wins.

type scoreStep struct {
	threshold decimal.Decimal
	points    int
}

var magnitudeLadder = []scoreStep{
	{decimal.NewFromInt(100000), 50},
	{decimal.NewFromInt(50000), 30},
	{decimal.NewFromInt(10000), 15},
}

var ratioLadder = []scoreStep{
	{decimal.NewFromInt(1), 40},
	{decimal.NewFromFloat(0.5), 20},
	{decimal.NewFromFloat(0.1), 10},
}

var typeWeights = map[ChangeType]int{
	ChangeTypeAdjustment: 20,
	ChangeTypeSystem:     20,
	ChangeTypeWithdrawal: 10,
	ChangeTypeWager:      5,
}

// riskScore estimates how unusual a balance change is on a 0-100 scale.
func riskScore(changeType ChangeType, previousBalance, changeAmount decimal.Decimal) int {
	score := 0
	magnitude := changeAmount.Abs()

	for _, step := range magnitudeLadder {
		if magnitude.GreaterThan(step.threshold) {
			score += step.points
			break
		}
	}

	score += typeWeights[changeType]

	// Ratio to previous balance is only meaningful for positive balances.
	if previousBalance.IsPositive() {
		ratio := magnitude.Div(previousBalance)
		for _, step := range ratioLadder {
			if ratio.GreaterThan(step.threshold) {
				score += step.points
				break
			}
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
