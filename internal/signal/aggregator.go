package signal

import (
	"log/slog"

	"perp-engine/pkg/types"
)

// Weights holds the per-primitive weights used by the Aggregator. Weights
// need not sum to exactly 1; Aggregate renormalises defensively.
type Weights struct {
	OBI        float64
	Microprice float64
	Impact     float64
}

// Config tunes primitive parameters and aggregation thresholds.
type Config struct {
	Weights         Weights
	OBIDepth        int
	OBIWeighted     bool
	MicropriceScale float64
	ImpactWindowMs  int64
	ThetaHigh       float64
	ThetaMedium     float64
}

// Aggregator computes each primitive, takes their weight-normalised sum,
// and classifies the result into a confidence tier.
type Aggregator struct {
	cfg    Config
	logger *slog.Logger
}

// NewAggregator constructs an Aggregator from cfg.
func NewAggregator(cfg Config, logger *slog.Logger) *Aggregator {
	return &Aggregator{cfg: cfg, logger: logger}
}

// Aggregate computes a SignalScore for md. Components are preserved in
// fixed order: OBI, Microprice, Impact.
func (a *Aggregator) Aggregate(md types.MarketData) (types.SignalScore, error) {
	obi := safeCompute(a.logger, "obi", func() float64 {
		return ComputeOBI(md, a.cfg.OBIDepth, a.cfg.OBIWeighted)
	})
	micro := safeCompute(a.logger, "microprice", func() float64 {
		return ComputeMicroprice(md, a.cfg.MicropriceScale)
	})
	impact := safeCompute(a.logger, "impact", func() float64 {
		return ComputeImpact(md, a.cfg.ImpactWindowMs, nowMs())
	})

	components := []float64{obi, micro, impact}
	weights := []float64{a.cfg.Weights.OBI, a.cfg.Weights.Microprice, a.cfg.Weights.Impact}

	weightSum := 0.0
	for _, w := range weights {
		weightSum += w
	}
	if weightSum == 0 {
		weightSum = 1
	}

	value := 0.0
	for i, c := range components {
		value += (weights[i] / weightSum) * c
	}
	value = clamp(value)

	confidence := a.classify(value)

	return types.NewSignalScore(value, confidence, components, nowMs())
}

func (a *Aggregator) classify(value float64) types.Confidence {
	abs := value
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs > a.cfg.ThetaHigh:
		return types.HIGH
	case abs > a.cfg.ThetaMedium:
		return types.MEDIUM
	default:
		return types.LOW
	}
}
