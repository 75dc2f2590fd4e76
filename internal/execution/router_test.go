package execution

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"perp-engine/pkg/types"
)

func TestRouterHighUsesMakerWhenFilled(t *testing.T) {
	t.Parallel()

	venue := &fakeVenue{placeStatus: types.PENDING, queryStatuses: []types.OrderStatus{types.FILLED}}
	maker := NewMakerExecutor(venue, fastMakerConfig(), testLogger())
	taker := NewIOCExecutor(venue, IOCConfig{}, testLogger())
	r := NewRouter(maker, taker, RouterConfig{EnableFallback: true}, testLogger())

	got := r.Route(context.Background(), highScore(t, 0.7), bookMd("BTC-PERP"), decimal.NewFromInt(1))
	if got == nil {
		t.Fatal("expected an order from maker fill")
	}
	stats := r.Stats()
	if stats.MakerExecutions != 1 || stats.FallbackCount != 0 {
		t.Errorf("expected 1 maker execution and 0 fallbacks, got %+v", stats)
	}
}

func TestRouterHighFallsBackToTakerOnMakerTimeout(t *testing.T) {
	t.Parallel()

	makerVenue := &fakeVenue{placeStatus: types.PENDING} // never fills -> times out
	takerVenue := &fakeVenue{placeStatus: types.FILLED}
	maker := NewMakerExecutor(makerVenue, fastMakerConfig(), testLogger())
	taker := NewIOCExecutor(takerVenue, IOCConfig{}, testLogger())
	r := NewRouter(maker, taker, RouterConfig{EnableFallback: true}, testLogger())

	got := r.Route(context.Background(), highScore(t, 0.7), bookMd("BTC-PERP"), decimal.NewFromInt(1))
	if got == nil {
		t.Fatal("expected fallback taker order")
	}
	stats := r.Stats()
	if stats.FallbackCount != 1 || stats.TakerExecutions != 1 {
		t.Errorf("expected exactly 1 fallback and 1 taker execution, got %+v", stats)
	}
}

func TestRouterHighNoFallbackEmitsNothing(t *testing.T) {
	t.Parallel()

	makerVenue := &fakeVenue{placeStatus: types.PENDING}
	maker := NewMakerExecutor(makerVenue, fastMakerConfig(), testLogger())
	taker := NewIOCExecutor(makerVenue, IOCConfig{}, testLogger())
	r := NewRouter(maker, taker, RouterConfig{EnableFallback: false}, testLogger())

	got := r.Route(context.Background(), highScore(t, 0.7), bookMd("BTC-PERP"), decimal.NewFromInt(1))
	if got != nil {
		t.Error("expected nil when fallback disabled and maker times out")
	}
}

func TestRouterMediumDefaultNoFallback(t *testing.T) {
	t.Parallel()

	venue := &fakeVenue{placeStatus: types.PENDING}
	maker := NewMakerExecutor(venue, fastMakerConfig(), testLogger())
	taker := NewIOCExecutor(venue, IOCConfig{}, testLogger())
	r := NewRouter(maker, taker, RouterConfig{}, testLogger())

	got := r.Route(context.Background(), mediumScore(t, 0.3), bookMd("BTC-PERP"), decimal.NewFromInt(1))
	if got != nil {
		t.Error("expected nil for MEDIUM with fallback_on_medium unset")
	}
}

func TestRouterMediumFallbackForcesHighOnTaker(t *testing.T) {
	t.Parallel()

	makerVenue := &fakeVenue{placeStatus: types.PENDING}
	takerVenue := &fakeVenue{placeStatus: types.FILLED}
	maker := NewMakerExecutor(makerVenue, fastMakerConfig(), testLogger())
	taker := NewIOCExecutor(takerVenue, IOCConfig{}, testLogger())
	r := NewRouter(maker, taker, RouterConfig{FallbackOnMedium: true}, testLogger())

	got := r.Route(context.Background(), mediumScore(t, 0.3), bookMd("BTC-PERP"), decimal.NewFromInt(1))
	if got == nil {
		t.Fatal("expected fallback taker order for MEDIUM with fallback_on_medium set")
	}
}

func TestRouterLowSkipsEntirely(t *testing.T) {
	t.Parallel()

	venue := &fakeVenue{}
	maker := NewMakerExecutor(venue, fastMakerConfig(), testLogger())
	taker := NewIOCExecutor(venue, IOCConfig{}, testLogger())
	r := NewRouter(maker, taker, RouterConfig{EnableFallback: true, FallbackOnMedium: true}, testLogger())

	low, _ := types.NewSignalScore(0.05, types.LOW, []float64{0.05}, 1000)
	got := r.Route(context.Background(), low, bookMd("BTC-PERP"), decimal.NewFromInt(1))
	if got != nil {
		t.Error("expected nil for LOW confidence")
	}
	if r.Stats().SkipCount != 1 {
		t.Errorf("expected skip count 1, got %d", r.Stats().SkipCount)
	}
}

func TestRouterStatsSnapshotIsIndependentCopy(t *testing.T) {
	t.Parallel()

	venue := &fakeVenue{placeStatus: types.FILLED}
	maker := NewMakerExecutor(venue, fastMakerConfig(), testLogger())
	taker := NewIOCExecutor(venue, IOCConfig{}, testLogger())
	r := NewRouter(maker, taker, RouterConfig{}, testLogger())

	r.Route(context.Background(), highScore(t, 0.7), bookMd("BTC-PERP"), decimal.NewFromInt(1))
	stats := r.Stats()
	stats.InputsByTier[types.HIGH] = 999

	if r.Stats().InputsByTier[types.HIGH] == 999 {
		t.Error("expected Stats() snapshot to not alias internal state")
	}
}
