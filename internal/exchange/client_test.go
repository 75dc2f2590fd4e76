package exchange

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"perp-engine/internal/config"
	"perp-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dryRunClient(t *testing.T, ioc, limit float64) *Client {
	t.Helper()
	cfg := config.Config{
		DryRun: true,
		Venue: config.VenueConfig{
			PaperIOCFillRate:   ioc,
			PaperLimitFillRate: limit,
		},
	}
	return NewClient(cfg, nil, testLogger())
}

func TestSimulatePlaceIOCAlwaysFillsAtFillRateOne(t *testing.T) {
	t.Parallel()

	c := dryRunClient(t, 1.0, 1.0)
	order := types.Order{Symbol: "BTC-PERP", Side: types.BUY, Type: types.IOC, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}

	result, err := c.PlaceOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if result.Status != types.FILLED {
		t.Errorf("expected FILLED, got %v", result.Status)
	}
	if result.AvgFillPrice == nil || !result.AvgFillPrice.Equal(decimal.NewFromInt(100)) {
		t.Error("expected avg fill price set to order price")
	}
}

func TestSimulatePlaceIOCCancelsAtFillRateZero(t *testing.T) {
	t.Parallel()

	c := dryRunClient(t, 0.0, 0.0)
	order := types.Order{Symbol: "BTC-PERP", Side: types.BUY, Type: types.IOC, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}

	result, err := c.PlaceOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if result.Status != types.CANCELLED {
		t.Errorf("expected CANCELLED, got %v", result.Status)
	}
}

func TestSimulatePlaceLimitRestsAtFillRateZero(t *testing.T) {
	t.Parallel()

	c := dryRunClient(t, 0.0, 0.0)
	order := types.Order{Symbol: "BTC-PERP", Side: types.BUY, Type: types.LIMIT, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}

	result, err := c.PlaceOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if result.Status != types.PENDING {
		t.Errorf("expected PENDING (resting), got %v", result.Status)
	}
}

func TestPaperOrderQueryableAfterPlacement(t *testing.T) {
	t.Parallel()

	c := dryRunClient(t, 0.0, 0.0)
	order := types.Order{Symbol: "BTC-PERP", Side: types.BUY, Type: types.LIMIT, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}

	placed, err := c.PlaceOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	queried, err := c.QueryOrder(context.Background(), placed.ID)
	if err != nil {
		t.Fatalf("QueryOrder: %v", err)
	}
	if queried.Status != types.PENDING {
		t.Errorf("expected PENDING, got %v", queried.Status)
	}
}

func TestPaperOrderCancelMarksCancelled(t *testing.T) {
	t.Parallel()

	c := dryRunClient(t, 0.0, 0.0)
	order := types.Order{Symbol: "BTC-PERP", Side: types.BUY, Type: types.LIMIT, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}

	placed, err := c.PlaceOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	if err := c.CancelOrder(context.Background(), placed.ID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	queried, err := c.QueryOrder(context.Background(), placed.ID)
	if err != nil {
		t.Fatalf("QueryOrder: %v", err)
	}
	if queried.Status != types.CANCELLED {
		t.Errorf("expected CANCELLED after cancel, got %v", queried.Status)
	}
}

func TestQueryOrderUnknownPaperIDErrors(t *testing.T) {
	t.Parallel()

	c := dryRunClient(t, 0.5, 0.5)
	if _, err := c.QueryOrder(context.Background(), "paper-999"); err == nil {
		t.Error("expected error for unknown paper order id")
	}
}

func TestParseOrderResponseRejectedSetsError(t *testing.T) {
	t.Parallel()

	msg := "insufficient margin"
	resp := orderResponseDTO{Status: "error", ID: "v-1"}
	resp.Data.Statuses = []statusEntry{{Error: &msg}}

	submitted := types.Order{Symbol: "BTC-PERP", Side: types.BUY, Type: types.IOC}
	out := parseOrderResponse(submitted, resp)

	if out.Status != types.REJECTED {
		t.Errorf("expected REJECTED, got %v", out.Status)
	}
	if out.Error != msg {
		t.Errorf("expected error message %q, got %q", msg, out.Error)
	}
}

func TestParseOrderResponseRestingKeepsOIDAsID(t *testing.T) {
	t.Parallel()

	resp := orderResponseDTO{Status: "ok", ID: "v-2"}
	resp.Data.Statuses = []statusEntry{{Resting: &restingStatus{OID: "oid-123"}}}

	submitted := types.Order{Symbol: "BTC-PERP", Side: types.BUY, Type: types.LIMIT}
	out := parseOrderResponse(submitted, resp)

	if out.Status != types.PENDING {
		t.Errorf("expected PENDING, got %v", out.Status)
	}
	if out.ID != "oid-123" {
		t.Errorf("expected id oid-123, got %q", out.ID)
	}
}

func TestParseOrderStatusMapsAllTerminalStates(t *testing.T) {
	t.Parallel()

	cases := map[string]types.OrderStatus{
		"filled":         types.FILLED,
		"partial_filled": types.PARTIAL_FILLED,
		"cancelled":      types.CANCELLED,
		"rejected":       types.REJECTED,
		"unknown_state":  types.PENDING,
	}
	for status, want := range cases {
		got := parseOrderStatus(orderStatusDTO{Status: status})
		if got.Status != want {
			t.Errorf("status %q: expected %v, got %v", status, want, got.Status)
		}
	}
}
