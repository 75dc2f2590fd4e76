package signal

import (
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"perp-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decimalMid(bid, ask float64) decimal.Decimal {
	return decimal.NewFromFloat((bid + ask) / 2)
}

func defaultAggregatorConfig() Config {
	return Config{
		Weights:         Weights{OBI: 0.4, Microprice: 0.4, Impact: 0.2},
		OBIDepth:        5,
		MicropriceScale: 100,
		ImpactWindowMs:  60_000,
		ThetaHigh:       0.5,
		ThetaMedium:     0.2,
	}
}

func TestAggregateComponentOrderPreserved(t *testing.T) {
	t.Parallel()

	a := NewAggregator(defaultAggregatorConfig(), testLogger())
	md := types.MarketData{
		Bids:     []types.Level{lvl(100, 10)},
		Asks:     []types.Level{lvl(101, 10)},
		MidPrice: decimalMid(100, 101),
	}
	score, err := a.Aggregate(md)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(score.Components) != 3 {
		t.Fatalf("expected 3 components (obi, microprice, impact), got %d", len(score.Components))
	}
}

func TestAggregateZeroWeightSumDefaultsToOne(t *testing.T) {
	t.Parallel()

	cfg := defaultAggregatorConfig()
	cfg.Weights = Weights{}
	a := NewAggregator(cfg, testLogger())
	md := types.MarketData{
		Bids:     []types.Level{lvl(100, 10)},
		Asks:     []types.Level{lvl(101, 10)},
		MidPrice: decimalMid(100, 101),
	}
	if _, err := a.Aggregate(md); err != nil {
		t.Fatalf("unexpected error with zero weight sum: %v", err)
	}
}

func TestClassifyThresholds(t *testing.T) {
	t.Parallel()

	a := NewAggregator(defaultAggregatorConfig(), testLogger())
	cases := []struct {
		value float64
		want  types.Confidence
	}{
		{0.1, types.LOW},
		{0.2, types.LOW},
		{0.21, types.MEDIUM},
		{0.5, types.MEDIUM},
		{0.51, types.HIGH},
	}
	for _, c := range cases {
		if got := a.classify(c.value); got != c.want {
			t.Errorf("classify(%f) = %v, want %v", c.value, got, c.want)
		}
	}
}
