// Package position implements the Position Manager, the fixed-percentage
// TP/SL check, and the timeout-based Position Closer.
package position

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"perp-engine/pkg/types"
)

// Manager owns one Position per symbol and applies filled orders to it
// per the weighted-average-entry / partial-close / full-close / reverse
// rules.
type Manager struct {
	mu        sync.RWMutex
	logger    *slog.Logger
	positions map[string]*types.Position
}

// NewManager constructs an empty Position Manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{logger: logger, positions: make(map[string]*types.Position)}
}

// Seed installs an externally-known position for symbol (e.g. a warm
// start from the venue's current holdings). It is the only supported way
// to introduce position state outside of UpdateFromOrder — there is no
// core-level persistence layer.
func (m *Manager) Seed(symbol string, pos types.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := pos
	m.positions[symbol] = &cp
}

// Get returns a copy of symbol's position, or the zero value and false
// if none is tracked.
func (m *Manager) Get(symbol string) (types.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[symbol]
	if !ok {
		return types.Position{}, false
	}
	return *p, true
}

// UpdateFromOrder applies a FILLED (or partially filled) order to its
// symbol's position and returns the resulting position. fillPrice is the
// order's average fill price.
func (m *Manager) UpdateFromOrder(order types.Order, fillPrice decimal.Decimal) types.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[order.Symbol]
	if !ok {
		pos = &types.Position{Symbol: order.Symbol}
		m.positions[order.Symbol] = pos
	}

	tradeSize := order.FilledSize
	if order.Side == types.SELL {
		tradeSize = tradeSize.Neg()
	}

	oldSize := pos.Size
	newSize := oldSize.Add(tradeSize)

	switch {
	case oldSize.IsZero():
		m.openPosition(pos, tradeSize, fillPrice, order.CreatedAtMs)

	case sameSign(oldSize, tradeSize):
		m.addToPosition(pos, oldSize, tradeSize, fillPrice, newSize)

	case newSize.IsZero():
		m.closeFully(pos, oldSize, fillPrice)

	case sameSign(oldSize, newSize):
		m.closePartially(pos, oldSize, tradeSize, fillPrice, newSize)

	default:
		m.reverse(pos, oldSize, tradeSize, fillPrice, newSize, order.CreatedAtMs)
	}

	pos.CurrentPrice = fillPrice
	cp := *pos
	return cp
}

func sameSign(a, b decimal.Decimal) bool {
	return a.Sign() == b.Sign()
}

func (m *Manager) openPosition(pos *types.Position, tradeSize, fillPrice decimal.Decimal, nowMs int64) {
	pos.Size = tradeSize
	pos.EntryPrice = fillPrice
	ts := nowMs
	pos.OpenTimestampMs = &ts
	side := types.BUY
	if tradeSize.IsNegative() {
		side = types.SELL
	}
	pos.Side = &side
}

func (m *Manager) addToPosition(pos *types.Position, oldSize, tradeSize, fillPrice, newSize decimal.Decimal) {
	oldAbs := oldSize.Abs()
	tradeAbs := tradeSize.Abs()
	newAbs := newSize.Abs()

	if newAbs.IsPositive() {
		weighted := oldAbs.Mul(pos.EntryPrice).Add(tradeAbs.Mul(fillPrice))
		pos.EntryPrice = weighted.Div(newAbs)
	}
	pos.Size = newSize
}

func (m *Manager) closePartially(pos *types.Position, oldSize, tradeSize, fillPrice, newSize decimal.Decimal) {
	closeSize := tradeSize.Abs()
	realized := closeSize.Mul(fillPrice.Sub(pos.EntryPrice))
	if oldSize.IsNegative() {
		realized = realized.Neg()
	}
	pos.RealizedPnL = pos.RealizedPnL.Add(realized)
	pos.Size = newSize
}

func (m *Manager) closeFully(pos *types.Position, oldSize, fillPrice decimal.Decimal) {
	closeSize := oldSize.Abs()
	realized := closeSize.Mul(fillPrice.Sub(pos.EntryPrice))
	if oldSize.IsNegative() {
		realized = realized.Neg()
	}
	pos.RealizedPnL = pos.RealizedPnL.Add(realized)
	pos.Size = decimal.Zero
	pos.EntryPrice = decimal.Zero
	pos.Side = nil
	pos.OpenTimestampMs = nil
}

func (m *Manager) reverse(pos *types.Position, oldSize, tradeSize, fillPrice, newSize decimal.Decimal, nowMs int64) {
	// Realise PnL on the old leg in full.
	closeSize := oldSize.Abs()
	realized := closeSize.Mul(fillPrice.Sub(pos.EntryPrice))
	if oldSize.IsNegative() {
		realized = realized.Neg()
	}
	pos.RealizedPnL = pos.RealizedPnL.Add(realized)

	// The remainder opens a fresh position in the new direction.
	m.openPosition(pos, newSize, fillPrice, nowMs)
}

// UpdatePrices refreshes current_price and unrealised PnL for every
// symbol present in prices.
func (m *Manager) UpdatePrices(prices map[string]decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for symbol, price := range prices {
		pos, ok := m.positions[symbol]
		if !ok {
			continue
		}
		pos.CurrentPrice = price
		pos.UnrealizedPnL = pos.Size.Mul(price.Sub(pos.EntryPrice))
	}
}

// IsPositionStale reports whether symbol's position has been open longer
// than maxAge. Returns false if no position exists (nothing to go stale).
func (m *Manager) IsPositionStale(symbol string, maxAge time.Duration, nowMs int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pos, ok := m.positions[symbol]
	if !ok || pos.OpenTimestampMs == nil {
		return false
	}
	age := time.Duration(nowMs-*pos.OpenTimestampMs) * time.Millisecond
	return age > maxAge
}

// Symbols returns every symbol with a tracked position entry (flat or
// not).
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.positions))
	for sym := range m.positions {
		out = append(out, sym)
	}
	return out
}
