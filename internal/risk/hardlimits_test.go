package risk

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"perp-engine/internal/cost"
	"perp-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig(nav float64) Config {
	return Config{InitialNAV: decimal.NewFromFloat(nav)}
}

// Scenario 7: initial NAV 100,000, max_daily_drawdown 5%. After
// update_pnl(-6000), the next check_order with any valid order is
// rejected with a reason mentioning "daily drawdown".
func TestHardLimitsDailyDrawdownScenario(t *testing.T) {
	t.Parallel()

	h := NewHardLimits(baseConfig(100000), nil, testLogger(), testLogger())
	h.UpdatePnL(decimal.NewFromInt(-6000))

	order := types.Order{Symbol: "BTC-PERP", Side: types.BUY, Size: decimal.NewFromFloat(0.01)}
	allowed, reason := h.CheckOrder(order, decimal.NewFromInt(50000), decimal.Zero, nil)

	if allowed {
		t.Fatal("expected order rejected after 6% drawdown against 5% limit")
	}
	if !strings.Contains(strings.ToLower(reason), "daily drawdown") {
		t.Errorf("expected reason to mention daily drawdown, got %q", reason)
	}
}

func TestHardLimitsStickyBreachRejectsAllSubsequentOrders(t *testing.T) {
	t.Parallel()

	h := NewHardLimits(baseConfig(100000), nil, testLogger(), testLogger())
	h.UpdatePnL(decimal.NewFromInt(-6000))

	order := types.Order{Symbol: "BTC-PERP", Side: types.BUY, Size: decimal.NewFromFloat(0.01)}
	h.CheckOrder(order, decimal.NewFromInt(50000), decimal.Zero, nil)

	// Even a tiny, harmless order should now be rejected because the
	// breach flag is sticky.
	allowed, reason := h.CheckOrder(order, decimal.NewFromInt(1), decimal.Zero, nil)
	if allowed {
		t.Fatal("expected sticky breach to reject all subsequent orders")
	}
	if !strings.Contains(reason, "System breached") {
		t.Errorf("expected System breached reason, got %q", reason)
	}
}

func TestHardLimitsSingleLossCapFixedFallback(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(100000)
	h := NewHardLimits(cfg, nil, testLogger(), testLogger())

	// order_value = 1000 * 100 = 100,000; fallback slippage 1% -> potential
	// loss 1000 > max_loss (0.8% * 100,000 = 800).
	order := types.Order{Symbol: "BTC-PERP", Side: types.BUY, Size: decimal.NewFromInt(1000)}
	allowed, reason := h.CheckOrder(order, decimal.NewFromInt(100), decimal.Zero, nil)

	if allowed {
		t.Fatal("expected single-loss cap breach")
	}
	if !strings.Contains(strings.ToLower(reason), "single loss") {
		t.Errorf("expected single loss reason, got %q", reason)
	}
}

func TestHardLimitsPositionSizeCapIsNonSticky(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(1_000_000) // huge NAV so single-loss/drawdown never trip
	cfg.MaxPositionSizeUSD = decimal.NewFromInt(1000)
	h := NewHardLimits(cfg, nil, testLogger(), testLogger())

	big := types.Order{Symbol: "BTC-PERP", Side: types.BUY, Size: decimal.NewFromFloat(0.001)}
	allowed, _ := h.CheckOrder(big, decimal.NewFromInt(2_000_000), decimal.Zero, nil)
	if allowed {
		t.Fatal("expected position-size breach")
	}

	// Unlike single-loss/drawdown, a position-size breach must NOT latch:
	// a small order afterward should still be allowed.
	small := types.Order{Symbol: "BTC-PERP", Side: types.BUY, Size: decimal.NewFromFloat(0.0000001)}
	allowed, _ = h.CheckOrder(small, decimal.NewFromInt(100), decimal.Zero, nil)
	if !allowed {
		t.Error("expected position-size breach to be non-sticky")
	}
}

func TestHardLimitsUsesDynamicSlippageWhenAvailable(t *testing.T) {
	t.Parallel()

	slip := cost.NewSlippageEstimator(0)
	h := NewHardLimits(baseConfig(100000), slip, testLogger(), testLogger())

	md := types.MarketData{
		Symbol: "BTC-PERP",
		Bids:   []types.Level{{Price: decimal.NewFromInt(99), Size: decimal.NewFromInt(1000)}},
		Asks:   []types.Level{{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1000)}},
	}
	order := types.Order{Symbol: "BTC-PERP", Side: types.BUY, Size: decimal.NewFromFloat(1)}
	allowed, _ := h.CheckOrder(order, decimal.NewFromInt(100), decimal.Zero, &md)
	if !allowed {
		t.Error("expected small order within deep top-of-book to pass with dynamic slippage")
	}
}

func TestHardLimitsResetBreachClearsFlag(t *testing.T) {
	t.Parallel()

	h := NewHardLimits(baseConfig(100000), nil, testLogger(), testLogger())
	h.UpdatePnL(decimal.NewFromInt(-6000))
	order := types.Order{Symbol: "BTC-PERP", Side: types.BUY, Size: decimal.NewFromFloat(0.01)}
	h.CheckOrder(order, decimal.NewFromInt(50000), decimal.Zero, nil)

	h.ResetBreach()
	status := h.GetStatus()
	if status.IsBreached {
		t.Error("expected breach cleared after ResetBreach")
	}
}
