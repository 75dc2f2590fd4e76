// Package metrics exposes the trading engine's Prometheus instruments:
// tick latency, router fallback/skip counts, hard-limit breach state, and
// the per-component attribution gauges and cost-estimate error histogram
// the engine updates after every applied fill.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus instrument the engine updates. It is
// constructed once at startup and threaded through the engine loop; there
// is no package-level registry access outside this constructor.
type Metrics struct {
	TickLatency         prometheus.Histogram
	RouterFallbackTotal *prometheus.CounterVec
	RouterSkipTotal     *prometheus.CounterVec
	HardLimitBreached   *prometheus.GaugeVec
	AttributionAlpha    *prometheus.GaugeVec
	AttributionFee      *prometheus.GaugeVec
	AttributionSlippage *prometheus.GaugeVec
	AttributionImpact   *prometheus.GaugeVec
	CostEstimateError   prometheus.Histogram
}

// New registers every instrument against a fresh registry and returns it
// alongside the Metrics handle.
func New() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		TickLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "perp_engine",
			Name:      "tick_latency_seconds",
			Help:      "Wall-clock duration of a single engine tick, end to end.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		RouterFallbackTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "perp_engine",
			Name:      "router_fallback_total",
			Help:      "Count of router decisions that fell back from Maker to IOC.",
		}, []string{"symbol"}),
		RouterSkipTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "perp_engine",
			Name:      "router_skip_total",
			Help:      "Count of signals not routed, by reason (deduplicated, hard-limit rejection, or router skip).",
		}, []string{"symbol", "reason"}),
		HardLimitBreached: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "perp_engine",
			Name:      "hard_limit_breached",
			Help:      "1 if a sticky hard-limit breach flag is set, 0 otherwise.",
		}, []string{"kind"}),
		AttributionAlpha: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "perp_engine",
			Name:      "attribution_alpha",
			Help:      "Cumulative alpha component of realised PnL attribution.",
		}, []string{"symbol"}),
		AttributionFee: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "perp_engine",
			Name:      "attribution_fee",
			Help:      "Cumulative fee component of realised PnL attribution.",
		}, []string{"symbol"}),
		AttributionSlippage: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "perp_engine",
			Name:      "attribution_slippage",
			Help:      "Cumulative slippage component of realised PnL attribution.",
		}, []string{"symbol"}),
		AttributionImpact: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "perp_engine",
			Name:      "attribution_impact",
			Help:      "Cumulative impact component of realised PnL attribution.",
		}, []string{"symbol"}),
		CostEstimateError: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "perp_engine",
			Name:      "cost_estimate_error_bps",
			Help:      "Absolute difference between the ex-ante cost estimate and the realised cost, in bps.",
			Buckets:   prometheus.LinearBuckets(0, 5, 20),
		}),
	}, reg
}

// RecordFallback marks a router fallback from Maker to IOC for symbol.
func (m *Metrics) RecordFallback(symbol string) {
	m.RouterFallbackTotal.WithLabelValues(symbol).Inc()
}

// RecordSkip marks a signal that was not routed (deduplicated, rejected
// by the hard limits, or skipped by the router), labelled by reason.
func (m *Metrics) RecordSkip(symbol, reason string) {
	m.RouterSkipTotal.WithLabelValues(symbol, reason).Inc()
}

// SetBreach reflects a hard-limit breach flag's current state.
func (m *Metrics) SetBreach(kind string, breached bool) {
	v := 0.0
	if breached {
		v = 1.0
	}
	m.HardLimitBreached.WithLabelValues(kind).Set(v)
}
