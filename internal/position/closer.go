package position

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"perp-engine/pkg/types"
)

const (
	MaxAgeTimeout = "max_age_timeout"

	defaultMaxAgeSeconds = 1800
)

// TakerCloser is the narrow surface the Closer needs to force a Taker
// exit; internal/execution.IOCExecutor satisfies it.
type TakerCloser interface {
	Execute(ctx context.Context, score types.SignalScore, md types.MarketData, size decimal.Decimal) *types.Order
}

// CloserConfig tunes the Position Closer.
type CloserConfig struct {
	MaxAgeSeconds int64
	TPSL          TPSLConfig
}

// DefaultCloserConfig returns the spec default of a 1800s max position age.
func DefaultCloserConfig() CloserConfig {
	return CloserConfig{MaxAgeSeconds: defaultMaxAgeSeconds, TPSL: DefaultTPSLConfig()}
}

// Closer evaluates every known symbol's position each tick for TP/SL or
// max-age triggers and, when one fires, forces an immediate Taker exit.
// Closing signals bypass the deduplicator entirely — closing must
// complete, not queue.
type Closer struct {
	manager *Manager
	taker   TakerCloser
	cfg     CloserConfig
	logger  *slog.Logger
	onClose func(order types.Order, md types.MarketData, signalValue float64, reason string)
}

// NewCloser constructs a Closer.
func NewCloser(manager *Manager, taker TakerCloser, cfg CloserConfig, logger *slog.Logger) *Closer {
	return &Closer{manager: manager, taker: taker, cfg: cfg, logger: logger}
}

// SetOnClose registers a callback invoked with the forced exit's filled
// order whenever the forced exit returns an order. Used by the engine to
// feed the exit into its shared fill path (position update, attribution,
// analytics) without the Closer importing either package. With a callback
// registered the Closer leaves the position update to it; without one the
// Closer applies the fill to the Manager itself.
func (c *Closer) SetOnClose(fn func(order types.Order, md types.MarketData, signalValue float64, reason string)) {
	c.onClose = fn
}

// CheckAndClose runs the 4.M decision for a single symbol's MarketData
// for this tick. Returns the trigger reason when TP/SL or max age fired,
// also when the taker exit returned no order ("" if nothing fired).
func (c *Closer) CheckAndClose(ctx context.Context, md types.MarketData, nowMs int64) string {
	pos, ok := c.manager.Get(md.Symbol)
	if !ok || pos.IsFlat() {
		return ""
	}

	shouldClose, reason := CheckPositionRisk(pos, md.MidPrice, c.cfg.TPSL)
	if !shouldClose {
		maxAge := time.Duration(c.cfg.MaxAgeSeconds) * time.Second
		if c.manager.IsPositionStale(md.Symbol, maxAge, nowMs) {
			shouldClose = true
			reason = MaxAgeTimeout
		}
	}
	if !shouldClose {
		return ""
	}

	sign := 1.0
	if pos.IsLong() {
		sign = -1.0
	}
	value := sign
	score, err := types.NewSignalScore(value, types.HIGH, []float64{value}, nowMs)
	if err != nil {
		c.logger.Error("position closer: failed to synthesise closing signal", "symbol", md.Symbol, "error", err)
		return ""
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("position closer: taker execution panicked", "symbol", md.Symbol, "recover", r)
			}
		}()
		order := c.taker.Execute(ctx, score, md, pos.Size.Abs())
		if order != nil {
			fillPrice := md.MidPrice
			if order.AvgFillPrice != nil {
				fillPrice = *order.AvgFillPrice
			}
			if c.onClose != nil {
				c.onClose(*order, md, value, reason)
			} else {
				c.manager.UpdateFromOrder(*order, fillPrice)
			}
		}
	}()

	c.logger.Warn("position closer: closing position", "symbol", md.Symbol, "reason", reason)
	return reason
}
