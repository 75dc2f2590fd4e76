package cost

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"perp-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func lvl(price, size float64) types.Level {
	return types.Level{Price: decimal.NewFromFloat(price), Size: decimal.NewFromFloat(size)}
}

func TestSlippageBuyWalksAsksAndIsPositive(t *testing.T) {
	t.Parallel()

	md := types.MarketData{
		Bids: []types.Level{lvl(99, 10)},
		Asks: []types.Level{lvl(100, 5), lvl(101, 10)},
	}
	e := NewSlippageEstimator(0)
	result := e.Estimate(md, types.BUY, decimal.NewFromInt(8))

	if result.SlippageBps <= 0 {
		t.Errorf("expected positive slippage walking up the ask side, got %f", result.SlippageBps)
	}
	if result.LevelsConsumed != 2 {
		t.Errorf("expected 2 levels consumed, got %d", result.LevelsConsumed)
	}
}

func TestSlippageSellWalksBidsAndIsPositive(t *testing.T) {
	t.Parallel()

	md := types.MarketData{
		Bids: []types.Level{lvl(100, 5), lvl(99, 10)},
		Asks: []types.Level{lvl(101, 10)},
	}
	e := NewSlippageEstimator(0)
	result := e.Estimate(md, types.SELL, decimal.NewFromInt(8))

	if result.SlippageBps <= 0 {
		t.Errorf("expected positive slippage walking down the bid side, got %f", result.SlippageBps)
	}
}

func TestSlippageEmptySideIsInfAndUnacceptable(t *testing.T) {
	t.Parallel()

	md := types.MarketData{Bids: []types.Level{lvl(99, 10)}}
	e := NewSlippageEstimator(0)
	result := e.Estimate(md, types.BUY, decimal.NewFromInt(1))

	if !math.IsInf(result.SlippageBps, 1) {
		t.Errorf("expected +Inf slippage for empty ask side, got %f", result.SlippageBps)
	}
	if result.IsAcceptable {
		t.Error("expected empty-side slippage to be unacceptable")
	}
}

func TestSlippageWithinTopOfBookBuyIsZero(t *testing.T) {
	t.Parallel()

	md := types.MarketData{
		Bids: []types.Level{lvl(99, 10)},
		Asks: []types.Level{lvl(100, 10)},
	}
	e := NewSlippageEstimator(0)
	result := e.Estimate(md, types.BUY, decimal.NewFromInt(5))

	if result.SlippageBps != 0 {
		t.Errorf("expected 0 slippage when fully filled at top of book, got %f", result.SlippageBps)
	}
}

func TestCalculateActualSlippageSignConvention(t *testing.T) {
	t.Parallel()

	e := NewSlippageEstimator(0)

	buyWorse := e.CalculateActualSlippage(decimal.NewFromFloat(101), decimal.NewFromFloat(100), types.BUY)
	if buyWorse <= 0 {
		t.Errorf("expected positive slippage for a buy filled above reference, got %f", buyWorse)
	}

	sellWorse := e.CalculateActualSlippage(decimal.NewFromFloat(99), decimal.NewFromFloat(100), types.SELL)
	if sellWorse <= 0 {
		t.Errorf("expected positive slippage for a sell filled below reference, got %f", sellWorse)
	}
}
