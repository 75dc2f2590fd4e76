package execution

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"perp-engine/pkg/types"
)

var errBoom = errors.New("venue unavailable")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeVenue is a scripted Venue for executor/router tests.
type fakeVenue struct {
	mu sync.Mutex

	nextID int

	// placeStatus is the status PlaceOrder gives the placed order (with ID
	// assigned; the zero value is PENDING); placeErr short-circuits to an
	// error instead.
	placeStatus types.OrderStatus
	placeErr    error

	// queryStatuses is consumed in order across successive QueryOrder calls.
	queryStatuses []types.OrderStatus
	queryIdx      int

	cancelled []string
	cancelErr error
}

func (f *fakeVenue) PlaceOrder(ctx context.Context, order types.Order) (types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return types.Order{}, f.placeErr
	}
	f.nextID++
	order.ID = "fake-order"
	order.Status = f.placeStatus
	return order, nil
}

func (f *fakeVenue) QueryOrder(ctx context.Context, orderID string) (types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryIdx >= len(f.queryStatuses) {
		return types.Order{ID: orderID, Status: types.PENDING}, nil
	}
	status := f.queryStatuses[f.queryIdx]
	f.queryIdx++
	return types.Order{ID: orderID, Status: status}, nil
}

func (f *fakeVenue) CancelOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return f.cancelErr
}

func bookMd(symbol string) types.MarketData {
	return types.MarketData{
		Symbol: symbol,
		Bids:   []types.Level{{Price: decimal.NewFromFloat(99.9), Size: decimal.NewFromInt(10)}},
		Asks:   []types.Level{{Price: decimal.NewFromFloat(100.1), Size: decimal.NewFromInt(10)}},
	}
}

func highScore(t interface{ Helper() }, value float64) types.SignalScore {
	s, _ := types.NewSignalScore(value, types.HIGH, []float64{value}, 1000)
	return s
}

func mediumScore(t interface{ Helper() }, value float64) types.SignalScore {
	s, _ := types.NewSignalScore(value, types.MEDIUM, []float64{value}, 1000)
	return s
}
