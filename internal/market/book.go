// Package market maintains the local order book mirror for each traded
// symbol. Book accepts snapshot-style updates (never diffs) from the feed
// adapter and exposes the read surface the signal pipeline and executors
// need: best bid/ask, mid, spread, and depth.
package market

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"perp-engine/pkg/types"
)

// Book is a concurrency-safe top-N order book mirror for a single symbol.
// The feed adapter writes through ApplySnapshot from its own goroutine; the
// engine loop reads through Snapshot. The mutex is held only for the
// duration of each call, never across calls into other components.
type Book struct {
	mu       sync.Mutex
	symbol   string
	depth    int
	bids     []types.Level
	asks     []types.Level
	mid      decimal.Decimal
	lastSeen time.Time
	errCount int
}

// NewBook creates an order book mirror for symbol, retaining up to depth
// levels per side.
func NewBook(symbol string, depth int) *Book {
	if depth <= 0 {
		depth = 20
	}
	return &Book{symbol: symbol, depth: depth}
}

// ApplySnapshot replaces the book with up to Book.depth levels from a
// top-of-book snapshot update. Malformed input (unsorted or crossed levels)
// is rejected: the prior state is preserved and the error counter is
// incremented, per the "invalid market data" error kind.
func (b *Book) ApplySnapshot(bids, asks []types.Level) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !monotonic(bids, true) || !monotonic(asks, false) {
		b.errCount++
		return
	}
	if len(bids) > 0 && len(asks) > 0 && bids[0].Price.GreaterThanOrEqual(asks[0].Price) {
		b.errCount++
		return
	}

	b.bids = truncate(bids, b.depth)
	b.asks = truncate(asks, b.depth)
	b.mid = computeMid(b.bids, b.asks)
	b.lastSeen = time.Now()
}

// ErrorCount returns the number of snapshot updates rejected as malformed.
func (b *Book) ErrorCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errCount
}

// IsValid reports whether both sides of the book are currently non-empty.
func (b *Book) IsValid() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bids) > 0 && len(b.asks) > 0
}

// IsStale reports whether the book has not received an update within maxAge.
func (b *Book) IsStale(maxAge time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastSeen.IsZero() {
		return true
	}
	return time.Since(b.lastSeen) > maxAge
}

// Snapshot returns an immutable OrderBookSnapshot reflecting the book's
// current state. The timestamp recorded is the local monotonic receive
// time converted to epoch-ms, never a venue timestamp.
func (b *Book) Snapshot() types.OrderBookSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return types.OrderBookSnapshot{
		Symbol:      b.symbol,
		TimestampMs: b.lastSeen.UnixMilli(),
		Bids:        append([]types.Level(nil), b.bids...),
		Asks:        append([]types.Level(nil), b.asks...),
		MidPrice:    b.mid,
	}
}

func computeMid(bids, asks []types.Level) decimal.Decimal {
	if len(bids) == 0 || len(asks) == 0 {
		return decimal.Zero
	}
	return bids[0].Price.Add(asks[0].Price).Div(decimal.NewFromInt(2))
}

// monotonic reports whether levels are sorted correctly for a given side:
// non-increasing for bids (descending=true), non-decreasing for asks.
func monotonic(levels []types.Level, descending bool) bool {
	for i := 1; i < len(levels); i++ {
		prev, cur := levels[i-1].Price, levels[i].Price
		if descending && prev.LessThan(cur) {
			return false
		}
		if !descending && prev.GreaterThan(cur) {
			return false
		}
	}
	for _, lvl := range levels {
		if lvl.Size.IsNegative() {
			return false
		}
	}
	return true
}

func truncate(levels []types.Level, n int) []types.Level {
	if len(levels) <= n {
		return append([]types.Level(nil), levels...)
	}
	out := make([]types.Level, n)
	copy(out, levels[:n])
	return out
}
