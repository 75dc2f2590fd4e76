package exchange

import (
	"golang.org/x/time/rate"
)

// RateLimiter groups per-endpoint-class limiters so the order, cancel, and
// book-read paths cannot starve one another under load. Replaces a
// hand-rolled token bucket with the ecosystem's own rate limiter.
type RateLimiter struct {
	Order  *rate.Limiter
	Cancel *rate.Limiter
	Book   *rate.Limiter
}

// NewRateLimiter builds a RateLimiter from the venue's configured
// per-second rate and burst. The book-read bucket gets 1.5x the rate and
// twice the burst of the order/cancel buckets since it is read-only and
// called far more often.
func NewRateLimiter(perSec float64, burst int) *RateLimiter {
	if perSec <= 0 {
		perSec = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &RateLimiter{
		Order:  rate.NewLimiter(rate.Limit(perSec), burst),
		Cancel: rate.NewLimiter(rate.Limit(perSec), burst),
		Book:   rate.NewLimiter(rate.Limit(perSec*1.5), burst*2),
	}
}
