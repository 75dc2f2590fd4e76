// Package cost implements pre-trade cost estimation: slippage via a
// book-depth VWAP walk, and a dynamic cost estimator that composes fee,
// slippage and market-impact components into a single bps figure, with
// post-trade tracking of estimation accuracy.
package cost

import (
	"math"

	"github.com/shopspring/decimal"

	"perp-engine/pkg/types"
)

// SlippageResult is the outcome of walking the book for size.
type SlippageResult struct {
	EstimatedPrice decimal.Decimal
	SlippageBps    float64
	IsAcceptable   bool
	LevelsConsumed int
}

// SlippageEstimator walks the relevant side of the book to find the
// volume-weighted execution price for a hypothetical order and expresses
// the deviation from the best price as a signed-positive bps cost.
//
// Sign convention: slippage is always non-negative for an order that
// crosses the spread as expected (buy fills above best ask, sell fills
// below best bid make the number worse, i.e. larger). A negative value
// would mean price improvement and is never produced by this walk.
type SlippageEstimator struct {
	maxSlippageBps float64
}

// NewSlippageEstimator constructs an estimator with maxSlippageBps as the
// acceptability threshold (default 20 bps when zero is passed).
func NewSlippageEstimator(maxSlippageBps float64) *SlippageEstimator {
	if maxSlippageBps <= 0 {
		maxSlippageBps = 20.0
	}
	return &SlippageEstimator{maxSlippageBps: maxSlippageBps}
}

// Estimate walks md's book on side's relevant side for size and reports
// the resulting slippage. An empty side or zero reference price is
// reported as +Inf slippage and not acceptable.
func (e *SlippageEstimator) Estimate(md types.MarketData, side types.Side, size decimal.Decimal) SlippageResult {
	var levels []types.Level
	var reference decimal.Decimal

	if side == types.BUY {
		levels = md.Asks
		if len(md.Asks) > 0 {
			reference = md.Asks[0].Price
		}
	} else {
		levels = md.Bids
		if len(md.Bids) > 0 {
			reference = md.Bids[0].Price
		}
	}

	if len(levels) == 0 || reference.IsZero() {
		return SlippageResult{
			EstimatedPrice: decimal.Zero,
			SlippageBps:    math.Inf(1),
			IsAcceptable:   false,
			LevelsConsumed: 0,
		}
	}

	weighted, consumed := walkBook(levels, size)
	if consumed == 0 {
		return SlippageResult{
			EstimatedPrice: decimal.Zero,
			SlippageBps:    math.Inf(1),
			IsAcceptable:   false,
			LevelsConsumed: 0,
		}
	}

	slippage := weighted.Sub(reference).Div(reference)
	if side == types.SELL {
		slippage = slippage.Neg()
	}
	slippageBps, _ := slippage.Mul(decimal.NewFromInt(10000)).Float64()

	return SlippageResult{
		EstimatedPrice: weighted,
		SlippageBps:    slippageBps,
		IsAcceptable:   slippageBps <= e.maxSlippageBps,
		LevelsConsumed: consumed,
	}
}

// IsAcceptable reports whether slippageBps is within the configured bound.
func (e *SlippageEstimator) IsAcceptable(slippageBps float64) bool {
	return slippageBps <= e.maxSlippageBps
}

// CalculateActualSlippage computes realised slippage (bps) for a fill at
// executionPrice against referencePrice, using the same sign convention
// as Estimate.
func (e *SlippageEstimator) CalculateActualSlippage(executionPrice, referencePrice decimal.Decimal, side types.Side) float64 {
	if referencePrice.IsZero() {
		return math.Inf(1)
	}
	diff := executionPrice.Sub(referencePrice)
	if side == types.SELL {
		diff = diff.Neg()
	}
	bps, _ := diff.Div(referencePrice).Mul(decimal.NewFromInt(10000)).Float64()
	return bps
}

// walkBook simulates filling size against levels in order, returning the
// size-weighted average fill price and how many levels were touched.
func walkBook(levels []types.Level, size decimal.Decimal) (decimal.Decimal, int) {
	remaining := size
	totalCost := decimal.Zero
	filled := decimal.Zero
	consumed := 0

	for _, lvl := range levels {
		if remaining.Sign() <= 0 {
			break
		}
		fillSize := remaining
		if lvl.Size.LessThan(remaining) {
			fillSize = lvl.Size
		}
		totalCost = totalCost.Add(fillSize.Mul(lvl.Price))
		filled = filled.Add(fillSize)
		remaining = remaining.Sub(fillSize)
		consumed++
	}

	if filled.Sign() <= 0 {
		return decimal.Zero, 0
	}
	return totalCost.Div(filled), consumed
}
