package exchange

import (
	"time"

	"github.com/sony/gobreaker/v2"

	"perp-engine/pkg/types"
)

// newOrderBreaker wraps outbound place/query calls. It trips after
// maxFails consecutive failures and stays open for cooldown, so a
// degraded venue is given a breathing window instead of being hammered
// with retries.
func newOrderBreaker(maxFails uint32, cooldown time.Duration) *gobreaker.CircuitBreaker[types.Order] {
	if maxFails == 0 {
		maxFails = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker[types.Order](gobreaker.Settings{
		Name:    "venue-order",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFails
		},
	})
}

// newCancelBreaker is the cancel-path counterpart of newOrderBreaker.
func newCancelBreaker(maxFails uint32, cooldown time.Duration) *gobreaker.CircuitBreaker[struct{}] {
	if maxFails == 0 {
		maxFails = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "venue-cancel",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFails
		},
	})
}
