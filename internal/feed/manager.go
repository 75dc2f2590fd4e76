// Package feed implements the Market Data Manager: it fans in L2 snapshots
// and trade prints from the venue adapter and assembles per-symbol
// MarketData for the signal pipeline. It is the only component the feed
// adapter's goroutine writes into; every other component only reads through
// Manager.GetMarketData.
package feed

import (
	"log/slog"
	"sync"
	"time"

	"perp-engine/internal/market"
	"perp-engine/pkg/types"
)

const defaultMaxTrades = 1000

// symbolState is a single symbol's book plus bounded trade ring. Access is
// serialised with its own mutex so the feed adapter's write and the
// engine's read never need to hold a lock across other components.
type symbolState struct {
	mu     sync.Mutex
	book   *market.Book
	trades []types.Trade
	max    int
}

func newSymbolState(symbol string, maxTrades int) *symbolState {
	return &symbolState{book: market.NewBook(symbol, 20), max: maxTrades}
}

func (s *symbolState) pushTrade(tr types.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, tr)
	if len(s.trades) > s.max {
		s.trades = s.trades[len(s.trades)-s.max:]
	}
}

func (s *symbolState) recentTrades(n int) []types.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.trades) {
		n = len(s.trades)
	}
	tail := s.trades[len(s.trades)-n:]
	return append([]types.Trade(nil), tail...)
}

// Manager owns one Book and one bounded trade buffer per subscribed symbol.
type Manager struct {
	mu        sync.RWMutex
	logger    *slog.Logger
	maxTrades int
	symbols   map[string]*symbolState
}

// NewManager creates a Market Data Manager for the given symbols.
func NewManager(symbols []string, maxTrades int, logger *slog.Logger) *Manager {
	if maxTrades <= 0 {
		maxTrades = defaultMaxTrades
	}
	m := &Manager{
		logger:    logger,
		maxTrades: maxTrades,
		symbols:   make(map[string]*symbolState, len(symbols)),
	}
	for _, sym := range symbols {
		m.symbols[sym] = newSymbolState(sym, maxTrades)
	}
	return m
}

// OnBookSnapshot is the feed adapter's L2 callback. Unknown symbols are
// dropped and logged; this is not fatal to the feed.
func (m *Manager) OnBookSnapshot(symbol string, bids, asks []types.Level) {
	m.mu.RLock()
	st, ok := m.symbols[symbol]
	m.mu.RUnlock()
	if !ok {
		m.logger.Warn("book snapshot for unknown symbol", "symbol", symbol)
		return
	}
	st.book.ApplySnapshot(bids, asks)
}

// OnTrade is the feed adapter's trade callback. side is normalised from
// venue-specific codes ("B"/"A" or "BUY"/"SELL") by the caller before
// reaching here (see NormalizeSide).
func (m *Manager) OnTrade(tr types.Trade) {
	m.mu.RLock()
	st, ok := m.symbols[tr.Symbol]
	m.mu.RUnlock()
	if !ok {
		m.logger.Warn("trade for unknown symbol", "symbol", tr.Symbol)
		return
	}
	if tr.Size.IsNegative() || tr.Size.IsZero() {
		m.logger.Warn("dropping trade with non-positive size", "symbol", tr.Symbol)
		return
	}
	st.pushTrade(tr)
}

// GetMarketData returns the current MarketData for symbol, or false if the
// symbol is unknown or its book is not yet valid (both sides populated).
func (m *Manager) GetMarketData(symbol string) (types.MarketData, bool) {
	m.mu.RLock()
	st, ok := m.symbols[symbol]
	m.mu.RUnlock()
	if !ok {
		return types.MarketData{}, false
	}
	if !st.book.IsValid() {
		return types.MarketData{}, false
	}

	snap := st.book.Snapshot()
	return types.MarketData{
		Symbol:      symbol,
		TimestampMs: snap.TimestampMs,
		Bids:        snap.Bids,
		Asks:        snap.Asks,
		MidPrice:    snap.MidPrice,
		Trades:      st.recentTrades(100),
	}, true
}

// Symbols returns the configured symbol universe in map iteration order,
// which is unspecified and can differ between calls (the insertion order
// of NewManager's symbols slice is not preserved, so engine.New retains
// the original slice and calls GetMarketData per symbol in that order
// directly; Symbols is provided for diagnostics only).
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.symbols))
	for sym := range m.symbols {
		out = append(out, sym)
	}
	return out
}

// IsStale reports whether symbol's book has not updated within maxAge.
func (m *Manager) IsStale(symbol string, maxAge time.Duration) bool {
	m.mu.RLock()
	st, ok := m.symbols[symbol]
	m.mu.RUnlock()
	if !ok {
		return true
	}
	return st.book.IsStale(maxAge)
}

// NormalizeSide maps venue-specific side codes into the internal enum.
func NormalizeSide(code string) types.Side {
	switch code {
	case "B", "BUY", "buy", "b":
		return types.BUY
	default:
		return types.SELL
	}
}
