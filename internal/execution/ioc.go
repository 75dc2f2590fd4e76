package execution

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"perp-engine/pkg/types"
)

// IOCConfig tunes the Taker executor.
type IOCConfig struct {
	AdjBps float64 // price adjustment applied against the best quote, in bps
}

// IOCExecutor submits immediate-or-cancel Taker orders. It only accepts
// HIGH-confidence signals; the Router forces confidence to HIGH for its
// fallback calls, and the Position Closer builds its closing signals as
// HIGH.
type IOCExecutor struct {
	venue  Venue
	cfg    IOCConfig
	logger *slog.Logger
}

// NewIOCExecutor constructs an IOCExecutor.
func NewIOCExecutor(venue Venue, cfg IOCConfig, logger *slog.Logger) *IOCExecutor {
	return &IOCExecutor{venue: venue, cfg: cfg, logger: logger}
}

// Execute submits a Taker order for score against md, sized size. Returns
// nil if score is not HIGH confidence (unless forced by the caller via a
// synthesised HIGH copy), the book lacks the needed side, or the venue
// call fails.
func (e *IOCExecutor) Execute(ctx context.Context, score types.SignalScore, md types.MarketData, size decimal.Decimal) *types.Order {
	if score.Confidence != types.HIGH {
		return nil
	}

	side, ok := score.Direction()
	if !ok {
		return nil
	}

	price, ok := BestPrice(md, side)
	if !ok {
		e.logger.Warn("ioc executor: missing top-of-book", "symbol", md.Symbol, "side", side.String())
		return nil
	}

	adj := decimal.NewFromFloat(e.cfg.AdjBps).Div(decimal.NewFromInt(10000))
	if side == types.BUY {
		price = price.Mul(decimal.NewFromInt(1).Add(adj))
	} else {
		price = price.Mul(decimal.NewFromInt(1).Sub(adj))
	}

	order := types.Order{
		Symbol:      md.Symbol,
		Side:        side,
		Type:        types.IOC,
		Price:       price,
		Size:        size,
		Status:      types.PENDING,
		CreatedAtMs: score.TimestampMs,
	}

	start := time.Now()
	result, err := e.venue.PlaceOrder(ctx, order)
	latency := time.Since(start)

	if err != nil {
		e.logger.Error("ioc executor: place order failed", "symbol", md.Symbol, "error", err, "latency_ms", latency.Milliseconds())
		return nil
	}

	switch result.Status {
	case types.FILLED, types.PARTIAL_FILLED:
		e.logger.Info("ioc executor: filled", "symbol", md.Symbol, "side", side.String(), "latency_ms", latency.Milliseconds())
	case types.REJECTED:
		e.logger.Warn("ioc executor: rejected", "symbol", md.Symbol, "error", result.Error)
		return nil
	default:
		// No fill reported; collapse to CANCELLED rather than leave PENDING.
		result.Status = types.CANCELLED
	}

	return &result
}
