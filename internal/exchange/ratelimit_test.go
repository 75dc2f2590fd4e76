package exchange

import (
	"context"
	"testing"
	"time"
)

func TestNewRateLimiterAppliesDefaultsOnZero(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0, 0)
	if rl.Order.Burst() != 20 {
		t.Errorf("expected default burst 20, got %d", rl.Order.Burst())
	}
}

func TestRateLimiterOrderWaitImmediateWithinBurst(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(10, 5)
	for i := 0; i < 5; i++ {
		start := time.Now()
		if err := rl.Order.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() returned error: %v", err)
		}
		if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
			t.Errorf("Wait() took %v, expected immediate within burst (token %d)", elapsed, i)
		}
	}
}

func TestRateLimiterWaitBlocksBeyondBurst(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(10, 1)
	if err := rl.Order.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := rl.Order.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	elapsed := time.Since(start)

	if elapsed < 50*time.Millisecond {
		t.Errorf("expected blocking ~100ms, got %v", elapsed)
	}
}

func TestRateLimiterWaitRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, 1)
	_ = rl.Order.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := rl.Order.Wait(ctx); err == nil {
		t.Error("expected context deadline error, got nil")
	}
}

func TestRateLimiterBookBucketHasMoreHeadroom(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(10, 5)
	if rl.Book.Burst() <= rl.Order.Burst() {
		t.Errorf("expected book bucket burst > order bucket burst, got book=%d order=%d", rl.Book.Burst(), rl.Order.Burst())
	}
}
