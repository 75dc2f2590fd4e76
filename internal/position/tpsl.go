package position

import (
	"github.com/shopspring/decimal"

	"perp-engine/pkg/types"
)

const (
	TakeProfit = "take_profit"
	StopLoss   = "stop_loss"
)

// TPSLConfig holds the fixed take-profit/stop-loss percentages.
type TPSLConfig struct {
	TakeProfitPct decimal.Decimal
	StopLossPct   decimal.Decimal
}

// DefaultTPSLConfig returns the spec defaults: 2% TP, 1% SL.
func DefaultTPSLConfig() TPSLConfig {
	return TPSLConfig{
		TakeProfitPct: decimal.NewFromFloat(0.02),
		StopLossPct:   decimal.NewFromFloat(0.01),
	}
}

// CheckPositionRisk evaluates pos against price using fixed TP/SL
// percentages. Boundary is inclusive at the trigger side. A no-op
// (reason "") if the position is flat or has no valid entry price.
func CheckPositionRisk(pos types.Position, price decimal.Decimal, cfg TPSLConfig) (shouldClose bool, reason string) {
	if pos.Size.IsZero() || !pos.EntryPrice.IsPositive() {
		return false, ""
	}

	entry := pos.EntryPrice
	tpLevel := entry.Mul(decimal.NewFromInt(1).Add(cfg.TakeProfitPct))
	slLevel := entry.Mul(decimal.NewFromInt(1).Sub(cfg.StopLossPct))

	if pos.IsLong() {
		if price.GreaterThanOrEqual(tpLevel) {
			return true, TakeProfit
		}
		if price.LessThanOrEqual(slLevel) {
			return true, StopLoss
		}
		return false, ""
	}

	// Short: TP below entry, SL above entry.
	shortTP := entry.Mul(decimal.NewFromInt(1).Sub(cfg.TakeProfitPct))
	shortSL := entry.Mul(decimal.NewFromInt(1).Add(cfg.StopLossPct))
	if price.LessThanOrEqual(shortTP) {
		return true, TakeProfit
	}
	if price.GreaterThanOrEqual(shortSL) {
		return true, StopLoss
	}
	return false, ""
}
