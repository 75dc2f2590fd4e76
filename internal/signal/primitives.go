// Package signal implements the micro-structure signal pipeline: stateless
// primitives (OBI, Microprice, Impact), their weighted aggregation into a
// confidence-tiered SignalScore, and the stateful deduplicator that gates
// how often a symbol's signal can actually reach the router.
package signal

import (
	"log/slog"
	"math"
	"time"

	"perp-engine/pkg/types"
)

// Primitive is the closed set of signal kinds, modelled as a tagged variant
// per the "dynamic dispatch to tagged variants" design note rather than an
// interface, since the primitives sit on the hot per-tick path.
type Primitive int

const (
	OBI Primitive = iota
	Microprice
	Impact
)

func (p Primitive) String() string {
	switch p {
	case OBI:
		return "obi"
	case Microprice:
		return "microprice"
	case Impact:
		return "impact"
	default:
		return "unknown"
	}
}

// clamp restricts v to [-1, 1].
func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// ComputeOBI computes Order-Book Imbalance over the top depth levels of
// marketData. When weighted is true, level i (0-indexed from best) is
// weighted by (depth - i). Returns 0 when either side is empty or total
// volume is zero.
func ComputeOBI(md types.MarketData, depth int, weighted bool) float64 {
	if len(md.Bids) == 0 || len(md.Asks) == 0 {
		return 0
	}

	var bidSum, askSum float64
	for i := 0; i < depth && i < len(md.Bids); i++ {
		w := 1.0
		if weighted {
			w = float64(depth - i)
		}
		f, _ := md.Bids[i].Size.Float64()
		bidSum += w * f
	}
	for i := 0; i < depth && i < len(md.Asks); i++ {
		w := 1.0
		if weighted {
			w = float64(depth - i)
		}
		f, _ := md.Asks[i].Size.Float64()
		askSum += w * f
	}

	total := bidSum + askSum
	if total == 0 {
		return 0
	}
	return clamp((bidSum - askSum) / total)
}

// ComputeMicroprice computes the size-weighted microprice signal: the
// relative distance of the microprice from the arithmetic mid, scaled by
// scale (default 100; see DESIGN.md's Open Question on this scale) and
// clamped to [-1, 1]. Returns 0 if either side is empty, total size is
// zero, or mid is zero.
func ComputeMicroprice(md types.MarketData, scale float64) float64 {
	bestBid, ok1 := md.BestBid()
	bestAsk, ok2 := md.BestAsk()
	if !ok1 || !ok2 {
		return 0
	}
	bidSize, _ := bestBid.Size.Float64()
	askSize, _ := bestAsk.Size.Float64()
	totalSize := bidSize + askSize
	if totalSize == 0 {
		return 0
	}
	mid, _ := md.MidPrice.Float64()
	if mid == 0 {
		return 0
	}

	bidPrice, _ := bestBid.Price.Float64()
	askPrice, _ := bestAsk.Price.Float64()
	microprice := (bidPrice*askSize + askPrice*bidSize) / totalSize

	return clamp((microprice - mid) / mid * scale)
}

// ComputeImpact computes the recent buy/sell trade-flow imbalance over the
// trailing windowMs window ending at nowMs. Returns 0 if the window is
// empty or total traded volume is zero.
func ComputeImpact(md types.MarketData, windowMs int64, nowMs int64) float64 {
	var buySum, sellSum float64
	cutoff := nowMs - windowMs

	for _, tr := range md.Trades {
		if tr.TimestampMs < cutoff {
			continue
		}
		size, _ := tr.Size.Float64()
		if tr.Side == types.BUY {
			buySum += size
		} else {
			sellSum += size
		}
	}

	total := buySum + sellSum
	if total == 0 {
		return 0
	}
	return clamp((buySum - sellSum) / total)
}

// safeCompute wraps a primitive computation, logging and returning 0 on any
// panic so a single degenerate primitive can never take down the tick.
func safeCompute(logger *slog.Logger, name string, fn func() float64) (value float64) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("signal primitive panicked", "primitive", name, "recover", r)
			value = 0
		}
	}()
	return fn()
}

// nowMs is the injection point for "now" in Impact computation during
// normal operation; tests pass an explicit timestamp instead of calling
// this.
func nowMs() int64 {
	return time.Now().UnixMilli()
}
