package execution

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"perp-engine/pkg/types"
)

// RouterConfig tunes the Router's fallback behaviour.
type RouterConfig struct {
	EnableFallback   bool // HIGH: fall back to Taker after a Maker timeout
	FallbackOnMedium bool // MEDIUM: fall back to Taker (forced HIGH) after a Maker timeout
}

// counters tracks per-tier routing outcomes for observability.
type counters struct {
	mu sync.Mutex

	inputsByTier    map[types.Confidence]int
	makerExecutions int
	takerExecutions int
	fallbackCount   int
	skipCount       int
}

func newCounters() *counters {
	return &counters{inputsByTier: make(map[types.Confidence]int)}
}

// Router directs signals to the Maker or Taker executor by confidence
// tier, with the fallback rules spelled out in 4.J. It is the only
// place a MEDIUM signal can be upgraded to HIGH, and only for the
// fallback Taker call.
type Router struct {
	maker  *MakerExecutor
	taker  *IOCExecutor
	cfg    RouterConfig
	logger *slog.Logger
	stats  *counters
}

// NewRouter constructs a Router.
func NewRouter(maker *MakerExecutor, taker *IOCExecutor, cfg RouterConfig, logger *slog.Logger) *Router {
	return &Router{maker: maker, taker: taker, cfg: cfg, logger: logger, stats: newCounters()}
}

// Route directs score to the Maker/Taker executors per its confidence
// tier and returns the resulting order, or nil if nothing was emitted.
func (r *Router) Route(ctx context.Context, score types.SignalScore, md types.MarketData, size decimal.Decimal) *types.Order {
	r.stats.mu.Lock()
	r.stats.inputsByTier[score.Confidence]++
	r.stats.mu.Unlock()

	switch score.Confidence {
	case types.HIGH:
		return r.routeHigh(ctx, score, md, size)
	case types.MEDIUM:
		return r.routeMedium(ctx, score, md, size)
	default:
		r.stats.mu.Lock()
		r.stats.skipCount++
		r.stats.mu.Unlock()
		return nil
	}
}

func (r *Router) routeHigh(ctx context.Context, score types.SignalScore, md types.MarketData, size decimal.Decimal) *types.Order {
	if order := r.maker.Execute(ctx, score, md, size); order != nil {
		r.stats.mu.Lock()
		r.stats.makerExecutions++
		r.stats.mu.Unlock()
		return order
	}

	if !r.cfg.EnableFallback {
		return nil
	}

	r.logger.Warn("router: maker timeout on HIGH signal, falling back to taker", "symbol", md.Symbol, "reason", "maker_timeout")
	order := r.taker.Execute(ctx, score, md, size)
	r.stats.mu.Lock()
	r.stats.fallbackCount++
	if order != nil {
		r.stats.takerExecutions++
	}
	r.stats.mu.Unlock()
	return order
}

func (r *Router) routeMedium(ctx context.Context, score types.SignalScore, md types.MarketData, size decimal.Decimal) *types.Order {
	if order := r.maker.Execute(ctx, score, md, size); order != nil {
		r.stats.mu.Lock()
		r.stats.makerExecutions++
		r.stats.mu.Unlock()
		return order
	}

	if !r.cfg.FallbackOnMedium {
		return nil
	}

	forced, err := types.NewSignalScore(score.Value, types.HIGH, score.Components, score.TimestampMs)
	if err != nil {
		r.logger.Error("router: failed to build forced-HIGH fallback score", "symbol", md.Symbol, "error", err)
		return nil
	}

	r.logger.Warn("router: maker timeout on MEDIUM signal, falling back to taker with forced HIGH", "symbol", md.Symbol, "reason", "maker_timeout")
	order := r.taker.Execute(ctx, forced, md, size)
	r.stats.mu.Lock()
	r.stats.fallbackCount++
	if order != nil {
		r.stats.takerExecutions++
	}
	r.stats.mu.Unlock()
	return order
}

// RouterStats is a point-in-time snapshot of routing counters.
type RouterStats struct {
	InputsByTier    map[types.Confidence]int
	MakerExecutions int
	TakerExecutions int
	FallbackCount   int
	SkipCount       int
}

// Stats returns a snapshot of the Router's counters.
func (r *Router) Stats() RouterStats {
	r.stats.mu.Lock()
	defer r.stats.mu.Unlock()

	byTier := make(map[types.Confidence]int, len(r.stats.inputsByTier))
	for k, v := range r.stats.inputsByTier {
		byTier[k] = v
	}

	return RouterStats{
		InputsByTier:    byTier,
		MakerExecutions: r.stats.makerExecutions,
		TakerExecutions: r.stats.takerExecutions,
		FallbackCount:   r.stats.fallbackCount,
		SkipCount:       r.stats.skipCount,
	}
}
