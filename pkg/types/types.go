// Package types defines the shared data vocabulary of the trading engine:
// order book levels, market data, signals, positions, orders, cost
// estimates and PnL attribution. Values that must carry bit-for-bit
// precision (prices, sizes, PnL, fee rates) are shopspring/decimal.Decimal;
// ratios and signals are plain float64.
package types

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Side is a trade or order direction.
type Side int

const (
	BUY Side = iota
	SELL
)

func (s Side) String() string {
	if s == BUY {
		return "BUY"
	}
	return "SELL"
}

// Sign returns +1 for BUY, -1 for SELL.
func (s Side) Sign() int {
	if s == BUY {
		return 1
	}
	return -1
}

// OrderType distinguishes taker (IOC) from maker (LIMIT, post-only) orders.
type OrderType int

const (
	IOC OrderType = iota
	LIMIT
)

func (t OrderType) String() string {
	if t == IOC {
		return "IOC"
	}
	return "LIMIT"
}

// OrderStatus is the lifecycle state of a submitted order. Terminal states
// (FILLED, PARTIAL_FILLED, CANCELLED, REJECTED) never transition further.
type OrderStatus int

const (
	PENDING OrderStatus = iota
	FILLED
	PARTIAL_FILLED
	CANCELLED
	REJECTED
)

func (s OrderStatus) String() string {
	switch s {
	case PENDING:
		return "PENDING"
	case FILLED:
		return "FILLED"
	case PARTIAL_FILLED:
		return "PARTIAL_FILLED"
	case CANCELLED:
		return "CANCELLED"
	case REJECTED:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Confidence is the tiering produced by the Signal Aggregator.
type Confidence int

const (
	LOW Confidence = iota
	MEDIUM
	HIGH
)

func (c Confidence) String() string {
	switch c {
	case LOW:
		return "LOW"
	case MEDIUM:
		return "MEDIUM"
	case HIGH:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// Level is a single order book price/size pair. Size is always non-negative.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBookSnapshot is a top-N order book for one symbol at a point in time.
// Bids are ordered non-increasing in price, asks non-decreasing. Timestamp
// is always the local monotonic receive time converted to epoch-ms, never
// a venue-supplied timestamp.
type OrderBookSnapshot struct {
	Symbol      string
	TimestampMs int64
	Bids        []Level
	Asks        []Level
	MidPrice    decimal.Decimal
}

// IsValid reports whether both sides of the book carry at least one level.
func (b OrderBookSnapshot) IsValid() bool {
	return len(b.Bids) > 0 && len(b.Asks) > 0
}

// BestBid returns the top bid level, or the zero Level if the book is empty
// on that side.
func (b OrderBookSnapshot) BestBid() (Level, bool) {
	if len(b.Bids) == 0 {
		return Level{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the top ask level, or the zero Level if the book is empty
// on that side.
func (b OrderBookSnapshot) BestAsk() (Level, bool) {
	if len(b.Asks) == 0 {
		return Level{}, false
	}
	return b.Asks[0], true
}

// Spread returns ask - bid at the top of book; zero if either side is empty.
func (b OrderBookSnapshot) Spread() decimal.Decimal {
	bid, ok1 := b.BestBid()
	ask, ok2 := b.BestAsk()
	if !ok1 || !ok2 {
		return decimal.Zero
	}
	return ask.Price.Sub(bid.Price)
}

// SpreadBps returns the top-of-book spread in basis points of MidPrice.
func (b OrderBookSnapshot) SpreadBps() float64 {
	if b.MidPrice.IsZero() {
		return 0
	}
	bps := b.Spread().Div(b.MidPrice).Mul(decimal.NewFromInt(10000))
	f, _ := bps.Float64()
	return f
}

// Depth sums the size available across the top k levels of each side.
func (b OrderBookSnapshot) Depth(k int) (bidDepth, askDepth decimal.Decimal) {
	bidDepth, askDepth = decimal.Zero, decimal.Zero
	for i := 0; i < k && i < len(b.Bids); i++ {
		bidDepth = bidDepth.Add(b.Bids[i].Size)
	}
	for i := 0; i < k && i < len(b.Asks); i++ {
		askDepth = askDepth.Add(b.Asks[i].Size)
	}
	return bidDepth, askDepth
}

// Trade is a single executed print observed from the venue's trade feed.
type Trade struct {
	Symbol      string
	TimestampMs int64
	Price       decimal.Decimal
	Size        decimal.Decimal
	Side        Side
}

// MarketData bundles an order book snapshot with a bounded tail of recent
// trades for one symbol; this is what signal primitives consume.
type MarketData struct {
	Symbol      string
	TimestampMs int64
	Bids        []Level
	Asks        []Level
	MidPrice    decimal.Decimal
	Trades      []Trade
}

// BestBid returns the top bid level, or false if empty.
func (m MarketData) BestBid() (Level, bool) {
	if len(m.Bids) == 0 {
		return Level{}, false
	}
	return m.Bids[0], true
}

// BestAsk returns the top ask level, or false if empty.
func (m MarketData) BestAsk() (Level, bool) {
	if len(m.Asks) == 0 {
		return Level{}, false
	}
	return m.Asks[0], true
}

// ErrSignalOutOfRange is returned by NewSignalScore when value is outside
// [-1, 1].
var ErrSignalOutOfRange = errors.New("signal value out of range [-1, 1]")

// SignalScore is the aggregated, confidence-tiered output of the signal
// pipeline for one symbol at one tick.
type SignalScore struct {
	Value       float64
	Confidence  Confidence
	Components  []float64
	TimestampMs int64
}

// NewSignalScore constructs a SignalScore, rejecting values outside
// [-1, 1].
func NewSignalScore(value float64, confidence Confidence, components []float64, timestampMs int64) (SignalScore, error) {
	if value < -1.0 || value > 1.0 {
		return SignalScore{}, fmt.Errorf("%w: %f", ErrSignalOutOfRange, value)
	}
	return SignalScore{
		Value:       value,
		Confidence:  confidence,
		Components:  components,
		TimestampMs: timestampMs,
	}, nil
}

// Direction returns the Side implied by the sign of Value, or false if the
// value is exactly zero (no direction).
func (s SignalScore) Direction() (Side, bool) {
	switch {
	case s.Value > 0:
		return BUY, true
	case s.Value < 0:
		return SELL, true
	default:
		return 0, false
	}
}

// Position is a per-symbol net position. Size is signed: positive is long,
// negative is short, zero is flat. Side and OpenTimestampMs are set exactly
// when Size is non-zero; on flat they are reset along with EntryPrice.
type Position struct {
	Symbol          string
	Size            decimal.Decimal
	EntryPrice      decimal.Decimal
	CurrentPrice    decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	RealizedPnL     decimal.Decimal
	OpenTimestampMs *int64
	Side            *Side
}

// IsFlat reports whether the position carries zero size.
func (p Position) IsFlat() bool {
	return p.Size.IsZero()
}

// IsLong reports whether the position is net long.
func (p Position) IsLong() bool {
	return p.Size.IsPositive()
}

// IsShort reports whether the position is net short.
func (p Position) IsShort() bool {
	return p.Size.IsNegative()
}

// PositionValueUSD returns the absolute notional value of the position at
// CurrentPrice.
func (p Position) PositionValueUSD() decimal.Decimal {
	return p.Size.Abs().Mul(p.CurrentPrice)
}

// Order is a single order submitted to (or synthesised for) the venue.
type Order struct {
	ID            string
	Symbol        string
	Side          Side
	Type          OrderType
	Price         decimal.Decimal
	Size          decimal.Decimal
	FilledSize    decimal.Decimal
	Status        OrderStatus
	CreatedAtMs   int64
	AvgFillPrice  *decimal.Decimal
	Error         string
	PostOnly      bool
}

// IsTerminal reports whether the order has reached a state that does not
// transition further.
func (o Order) IsTerminal() bool {
	switch o.Status {
	case FILLED, PARTIAL_FILLED, CANCELLED, REJECTED:
		return true
	default:
		return false
	}
}

// CostEstimate is the ex-ante cost prediction for a prospective order,
// decomposed into fee, slippage and market-impact basis points.
type CostEstimate struct {
	OrderType      OrderType
	Side           Side
	Size           decimal.Decimal
	Symbol         string
	FeeBps         float64
	SlippageBps    float64
	ImpactBps      float64
	TotalBps       float64
	SpreadBps      float64
	LiquidityScore float64
	VolatilityScore float64
	TimestampMs    int64
}

// TradeAttribution is the realised per-trade PnL decomposition. Total must
// equal Alpha + Fee + Slippage + Impact + Rebate.
type TradeAttribution struct {
	Alpha     decimal.Decimal
	Fee       decimal.Decimal
	Slippage  decimal.Decimal
	Impact    decimal.Decimal
	Rebate    decimal.Decimal
	Total     decimal.Decimal
}
