package cost

import (
	"testing"

	"github.com/shopspring/decimal"

	"perp-engine/pkg/types"
)

func sampleMarketData() types.MarketData {
	return types.MarketData{
		Symbol: "BTC-PERP",
		Bids:   []types.Level{lvl(99.9, 20), lvl(99.8, 20)},
		Asks:   []types.Level{lvl(100.1, 20), lvl(100.2, 20)},
	}
}

func TestEstimateCostMakerCheaperThanTaker(t *testing.T) {
	t.Parallel()

	est := NewEstimator(0, 0, nil, 0, testLogger())
	md := sampleMarketData()

	maker := est.EstimateCost(types.LIMIT, types.BUY, decimal.NewFromInt(1), md, 1000)
	taker := est.EstimateCost(types.IOC, types.BUY, decimal.NewFromInt(1), md, 1000)

	if maker.FeeBps != defaultMakerFeeBps {
		t.Errorf("expected maker fee %.1f, got %f", defaultMakerFeeBps, maker.FeeBps)
	}
	if taker.FeeBps != defaultTakerFeeBps {
		t.Errorf("expected taker fee %.1f, got %f", defaultTakerFeeBps, taker.FeeBps)
	}
	if maker.TotalBps >= taker.TotalBps {
		t.Errorf("expected maker total (%f) cheaper than taker total (%f)", maker.TotalBps, taker.TotalBps)
	}
}

func TestEstimateImpactBpsClampedRange(t *testing.T) {
	t.Parallel()

	est := NewEstimator(0, 0, nil, 0, testLogger())
	md := sampleMarketData()

	estimate := est.EstimateCost(types.IOC, types.BUY, decimal.NewFromInt(1), md, 1000)
	if estimate.ImpactBps < impactMinBps || estimate.ImpactBps > impactMaxBps {
		t.Errorf("expected impact within [%f, %f], got %f", impactMinBps, impactMaxBps, estimate.ImpactBps)
	}
}

func TestEstimateImpactEmptyLiquidityFallsBackToFiveBps(t *testing.T) {
	t.Parallel()

	est := NewEstimator(0, 0, nil, 0, testLogger())
	md := types.MarketData{
		Symbol: "BTC-PERP",
		Bids:   []types.Level{lvl(99.9, 10)},
		Asks:   []types.Level{},
	}
	impact := est.estimateImpactBps(types.BUY, decimal.NewFromInt(1), md, calculateMarketState(md))
	if impact != 5.0 {
		t.Errorf("expected 5.0 bps fallback for empty liquidity, got %f", impact)
	}
}

func TestRecordActualCostZeroTradeValue(t *testing.T) {
	t.Parallel()

	est := NewEstimator(0, 0, nil, 0, testLogger())
	order := types.Order{ID: "o1", Type: types.IOC, Side: types.BUY, Symbol: "BTC-PERP", FilledSize: decimal.Zero}
	estimate := types.CostEstimate{TotalBps: 5.0}

	actual := est.RecordActualCost(order, estimate, decimal.NewFromInt(100), decimal.NewFromInt(100), decimal.NewFromInt(100), 2000)
	if actual.TotalCostBps != 0 {
		t.Errorf("expected zero total cost for zero trade value, got %f", actual.TotalCostBps)
	}
}

func TestGetCostStatsAggregatesBySymbol(t *testing.T) {
	t.Parallel()

	est := NewEstimator(0, 0, nil, 0, testLogger())
	order := types.Order{ID: "o1", Type: types.LIMIT, Side: types.BUY, Symbol: "BTC-PERP", FilledSize: decimal.NewFromInt(1)}
	estimate := types.CostEstimate{TotalBps: 2.0}

	est.RecordActualCost(order, estimate, decimal.NewFromInt(100), decimal.NewFromInt(100), decimal.NewFromInt(100), 1000)

	stats, ok := est.GetCostStats("BTC-PERP")
	if !ok {
		t.Fatal("expected stats present for BTC-PERP")
	}
	if stats.NumTrades != 1 {
		t.Errorf("expected 1 trade, got %d", stats.NumTrades)
	}
	if stats.MakerRatio != 1.0 {
		t.Errorf("expected maker ratio 1.0, got %f", stats.MakerRatio)
	}

	if _, ok := est.GetCostStats("ETH-PERP"); ok {
		t.Error("expected no stats for unrelated symbol")
	}
}

func TestGetEstimationAccuracyEmptyIsZeroValue(t *testing.T) {
	t.Parallel()

	est := NewEstimator(0, 0, nil, 0, testLogger())
	report := est.GetEstimationAccuracy()
	if report.NumSamples != 0 {
		t.Errorf("expected 0 samples, got %d", report.NumSamples)
	}
}

func TestHistoryBoundedByMaxHistory(t *testing.T) {
	t.Parallel()

	est := NewEstimator(0, 0, nil, 2, testLogger())
	order := types.Order{ID: "o1", Type: types.LIMIT, Side: types.BUY, Symbol: "BTC-PERP", FilledSize: decimal.NewFromInt(1)}
	estimate := types.CostEstimate{TotalBps: 2.0}

	for i := 0; i < 5; i++ {
		est.RecordActualCost(order, estimate, decimal.NewFromInt(100), decimal.NewFromInt(100), decimal.NewFromInt(100), int64(1000+i))
	}

	stats, ok := est.GetCostStats("BTC-PERP")
	if !ok {
		t.Fatal("expected stats present")
	}
	if stats.NumTrades != 2 {
		t.Errorf("expected history bounded to 2, got %d", stats.NumTrades)
	}
}
