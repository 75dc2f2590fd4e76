package execution

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"perp-engine/pkg/types"
)

// MakerConfig tunes the Shallow Maker executor.
type MakerConfig struct {
	TickOffset    decimal.Decimal
	PollInterval  time.Duration
	TimeoutHigh   time.Duration
	TimeoutMedium time.Duration
	UsePostOnly   bool
}

// DefaultMakerConfig returns the spec's defaults: 100ms poll, 5s HIGH
// timeout, 3s MEDIUM timeout, post-only.
func DefaultMakerConfig() MakerConfig {
	return MakerConfig{
		PollInterval:  100 * time.Millisecond,
		TimeoutHigh:   5 * time.Second,
		TimeoutMedium: 3 * time.Second,
		UsePostOnly:   true,
	}
}

// MakerExecutor submits post-only shallow-limit orders and polls for a
// fill within a confidence-tiered timeout, cancelling on expiry.
type MakerExecutor struct {
	venue  Venue
	cfg    MakerConfig
	logger *slog.Logger
}

// NewMakerExecutor constructs a MakerExecutor.
func NewMakerExecutor(venue Venue, cfg MakerConfig, logger *slog.Logger) *MakerExecutor {
	return &MakerExecutor{venue: venue, cfg: cfg, logger: logger}
}

// Execute submits a post-only LIMIT order for score against md, sized
// size, and waits up to the tier-appropriate timeout for a fill. Returns
// nil for LOW confidence, a missing top-of-book, venue rejection, or
// timeout (after issuing a best-effort cancel).
func (e *MakerExecutor) Execute(ctx context.Context, score types.SignalScore, md types.MarketData, size decimal.Decimal) *types.Order {
	if score.Confidence != types.HIGH && score.Confidence != types.MEDIUM {
		return nil
	}

	side, ok := score.Direction()
	if !ok {
		return nil
	}

	var price decimal.Decimal
	if side == types.BUY {
		bid, ok := md.BestBid()
		if !ok {
			e.logger.Warn("maker executor: missing best bid", "symbol", md.Symbol)
			return nil
		}
		price = bid.Price.Add(e.cfg.TickOffset)
	} else {
		ask, ok := md.BestAsk()
		if !ok {
			e.logger.Warn("maker executor: missing best ask", "symbol", md.Symbol)
			return nil
		}
		price = ask.Price.Sub(e.cfg.TickOffset)
	}

	order := types.Order{
		Symbol:      md.Symbol,
		Side:        side,
		Type:        types.LIMIT,
		Price:       price,
		Size:        size,
		Status:      types.PENDING,
		CreatedAtMs: score.TimestampMs,
		PostOnly:    e.cfg.UsePostOnly,
	}

	placed, err := e.venue.PlaceOrder(ctx, order)
	if err != nil {
		e.logger.Error("maker executor: place order failed", "symbol", md.Symbol, "error", err)
		return nil
	}
	if placed.Status == types.REJECTED {
		e.logger.Warn("maker executor: rejected", "symbol", md.Symbol, "error", placed.Error)
		return nil
	}

	timeout := e.cfg.TimeoutMedium
	if score.Confidence == types.HIGH {
		timeout = e.cfg.TimeoutHigh
	}

	return e.waitForFill(ctx, placed, timeout)
}

// waitForFill polls order status at the configured interval until the
// order is filled, rejected/cancelled by the venue, or timeout elapses.
func (e *MakerExecutor) waitForFill(ctx context.Context, order types.Order, timeout time.Duration) *types.Order {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.cancel(context.Background(), order.ID)
			return nil
		case <-ticker.C:
			if time.Now().After(deadline) {
				e.cancel(context.Background(), order.ID)
				return nil
			}
			status, err := e.venue.QueryOrder(ctx, order.ID)
			if err != nil {
				e.logger.Warn("maker executor: status query failed, retrying", "order_id", order.ID, "error", err)
				continue
			}
			switch status.Status {
			case types.FILLED, types.PARTIAL_FILLED:
				filled := order
				filled.Status = status.Status
				filled.FilledSize = status.FilledSize
				filled.AvgFillPrice = status.AvgFillPrice
				return &filled
			case types.REJECTED, types.CANCELLED:
				return nil
			}
		}
	}
}

// cancel issues a best-effort cancel; failures are logged, never propagated.
func (e *MakerExecutor) cancel(ctx context.Context, orderID string) {
	if orderID == "" {
		return
	}
	if err := e.venue.CancelOrder(ctx, orderID); err != nil {
		e.logger.Warn("maker executor: cancel on timeout failed", "order_id", orderID, "error", err)
	}
}
