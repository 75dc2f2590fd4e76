// Package execution implements order placement: the IOC (Taker) and
// Shallow Maker executors, and the confidence-tiered Router that directs
// signals to one or the other with fallback.
package execution

import (
	"context"

	"github.com/shopspring/decimal"

	"perp-engine/pkg/types"
)

// Venue is the narrow surface the executors need from a trading venue
// adapter: place an order, poll its status, and cancel it. internal/exchange
// implements this against the live wire protocol; tests and paper-trading
// use an in-memory fake.
type Venue interface {
	PlaceOrder(ctx context.Context, order types.Order) (types.Order, error)
	QueryOrder(ctx context.Context, orderID string) (types.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// BestPrice picks the reference top-of-book price an executor prices off
// of, returning false if the required side is empty.
func BestPrice(md types.MarketData, side types.Side) (decimal.Decimal, bool) {
	if side == types.BUY {
		lvl, ok := md.BestAsk()
		return lvl.Price, ok
	}
	lvl, ok := md.BestBid()
	return lvl.Price, ok
}

func sideFromValue(value float64) types.Side {
	if value >= 0 {
		return types.BUY
	}
	return types.SELL
}
