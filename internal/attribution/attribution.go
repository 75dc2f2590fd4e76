// Package attribution implements per-trade PnL Attribution: decomposing a
// realised fill into alpha, fee, slippage, impact, and rebate so the signal's
// own predictive power can be judged apart from execution cost.
package attribution

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"perp-engine/pkg/types"
)

const (
	defaultMakerFeeBps    = 1.5
	defaultTakerFeeBps    = 4.5
	defaultMakerRebateBps = 1.5

	defaultHorizonFactor  = 1.0
	defaultAlphaThreshold = 0.70
	defaultMaxHistory     = 10000
)

// Config tunes the Attributor's fee schedule, alpha scaling, and health
// threshold.
type Config struct {
	MakerFeeBps    float64
	TakerFeeBps    float64
	MakerRebateBps float64

	// HorizonFactor scales the signal-proportional alpha estimate
	// (signal_value * |size| * fill_price * HorizonFactor) down to a
	// magnitude comparable with fee/slippage/impact, which are all
	// fractions of notional.
	HorizonFactor float64

	// AlphaThreshold is the alpha_percentage fraction (0-1) above which
	// check_alpha_health reports healthy. Default 0.70.
	AlphaThreshold float64

	MaxHistory int
}

func (c Config) withDefaults() Config {
	if c.MakerFeeBps == 0 {
		c.MakerFeeBps = defaultMakerFeeBps
	}
	if c.TakerFeeBps == 0 {
		c.TakerFeeBps = defaultTakerFeeBps
	}
	if c.MakerRebateBps == 0 {
		c.MakerRebateBps = defaultMakerRebateBps
	}
	if c.HorizonFactor == 0 {
		c.HorizonFactor = defaultHorizonFactor
	}
	if c.AlphaThreshold == 0 {
		c.AlphaThreshold = defaultAlphaThreshold
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = defaultMaxHistory
	}
	return c
}

// Summary is the running cumulative attribution across all recorded trades.
type Summary struct {
	Alpha          decimal.Decimal
	Fee            decimal.Decimal
	Slippage       decimal.Decimal
	Impact         decimal.Decimal
	Rebate         decimal.Decimal
	Total          decimal.Decimal
	AlphaPct       float64
	CostPct        float64
	NumTrades      int
}

// Attributor decomposes realised trades into alpha/fee/slippage/impact/rebate
// and maintains a running cumulative Summary plus a bounded per-trade
// history.
type Attributor struct {
	mu sync.Mutex

	cfg    Config
	logger *slog.Logger

	history    []types.TradeAttribution
	cumulative types.TradeAttribution
	numTrades  int
}

// NewAttributor constructs an Attributor.
func NewAttributor(cfg Config, logger *slog.Logger) *Attributor {
	return &Attributor{cfg: cfg.withDefaults(), logger: logger}
}

// directionSign returns +1 for BUY, -1 for SELL.
func directionSign(side types.Side) decimal.Decimal {
	if side == types.SELL {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// AttributeTrade decomposes one realised fill into its alpha/fee/slippage/
// impact/rebate components, records it into the bounded history, folds it
// into the running cumulative Summary, and returns the per-trade result.
func (a *Attributor) AttributeTrade(order types.Order, signalValue float64, referencePrice, actualFillPrice, bestPrice decimal.Decimal) types.TradeAttribution {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := order.FilledSize
	sign := directionSign(order.Side)

	fillValue := size.Mul(actualFillPrice)

	feeBps := a.cfg.MakerFeeBps
	rebate := decimal.Zero
	if order.Type == types.IOC {
		feeBps = a.cfg.TakerFeeBps
	} else {
		rebate = fillValue.Mul(decimal.NewFromFloat(a.cfg.MakerRebateBps / 10000))
	}
	fee := fillValue.Mul(decimal.NewFromFloat(feeBps / 10000)).Neg()

	// slippage: negative when the fill is worse than the reference price,
	// with "worse" meaning higher for a buy, lower for a sell.
	slippage := sign.Neg().Mul(actualFillPrice.Sub(referencePrice)).Mul(size)

	// impact: negative when the fill is worse than the best price observed
	// at decision time, same sign convention as slippage but against best.
	impact := decimal.Zero
	if bestPrice.IsPositive() {
		impact = sign.Neg().Mul(actualFillPrice.Sub(bestPrice)).Mul(size)
	}

	alpha := decimal.NewFromFloat(signalValue).
		Mul(size.Abs()).
		Mul(actualFillPrice).
		Mul(decimal.NewFromFloat(a.cfg.HorizonFactor))

	total := alpha.Add(fee).Add(slippage).Add(impact).Add(rebate)

	result := types.TradeAttribution{
		Alpha:    alpha,
		Fee:      fee,
		Slippage: slippage,
		Impact:   impact,
		Rebate:   rebate,
		Total:    total,
	}

	a.record(result)
	return result
}

func (a *Attributor) record(t types.TradeAttribution) {
	a.history = append(a.history, t)
	if len(a.history) > a.cfg.MaxHistory {
		a.history = a.history[len(a.history)-a.cfg.MaxHistory:]
	}

	a.cumulative.Alpha = a.cumulative.Alpha.Add(t.Alpha)
	a.cumulative.Fee = a.cumulative.Fee.Add(t.Fee)
	a.cumulative.Slippage = a.cumulative.Slippage.Add(t.Slippage)
	a.cumulative.Impact = a.cumulative.Impact.Add(t.Impact)
	a.cumulative.Rebate = a.cumulative.Rebate.Add(t.Rebate)
	a.cumulative.Total = a.cumulative.Total.Add(t.Total)
	a.numTrades++
}

// AlphaPercentage returns the cumulative alpha as a percentage of |total|,
// so sign never inverts meaning on a losing session. Returns 0 when total
// is zero.
func (a *Attributor) AlphaPercentage() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return alphaPercentage(a.cumulative)
}

func alphaPercentage(t types.TradeAttribution) float64 {
	if t.Total.IsZero() {
		return 0
	}
	pct, _ := t.Alpha.Div(t.Total.Abs()).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// CostPercentage returns (fee+slippage+impact) as a percentage of |total|.
func (a *Attributor) CostPercentage() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return costPercentage(a.cumulative)
}

func costPercentage(t types.TradeAttribution) float64 {
	if t.Total.IsZero() {
		return 0
	}
	totalCost := t.Fee.Add(t.Slippage).Add(t.Impact)
	pct, _ := totalCost.Div(t.Total.Abs()).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// CheckAlphaHealth reports whether cumulative alpha_percentage meets the
// configured threshold (default 70%).
func (a *Attributor) CheckAlphaHealth() (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pct := alphaPercentage(a.cumulative)
	thresholdPct := a.cfg.AlphaThreshold * 100

	if pct >= thresholdPct {
		return true, fmt.Sprintf("PASS: alpha_percentage=%.2f%% >= threshold=%.2f%%", pct, thresholdPct)
	}
	return false, fmt.Sprintf("FAIL: alpha_percentage=%.2f%% < threshold=%.2f%%", pct, thresholdPct)
}

// GetCumulativeAttribution returns a point-in-time Summary of all recorded
// trades.
func (a *Attributor) GetCumulativeAttribution() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Summary{
		Alpha:     a.cumulative.Alpha,
		Fee:       a.cumulative.Fee,
		Slippage:  a.cumulative.Slippage,
		Impact:    a.cumulative.Impact,
		Rebate:    a.cumulative.Rebate,
		Total:     a.cumulative.Total,
		AlphaPct:  alphaPercentage(a.cumulative),
		CostPct:   costPercentage(a.cumulative),
		NumTrades: a.numTrades,
	}
}

// History returns a copy of the bounded per-trade attribution history.
func (a *Attributor) History() []types.TradeAttribution {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]types.TradeAttribution, len(a.history))
	copy(out, a.history)
	return out
}
