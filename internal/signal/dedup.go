package signal

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"perp-engine/pkg/types"
)

// dedupState is one symbol's deduplication history.
type dedupState struct {
	lastValue           float64
	hasLastValue        bool
	lastAcceptedAt       time.Time
	consecutiveCount     int
	lastDirection        types.Side
	hasLastDirection     bool
}

// DedupConfig tunes the Signal Deduplicator's rejection rules.
type DedupConfig struct {
	CooldownSeconds  float64
	ChangeThreshold  float64
	DecayFactor      float64
	MaxSameDirection int
}

// Deduplicator is a stateful per-symbol filter that rejects over-frequent
// or weakly-changing signals and decays/caps same-direction bursts. The
// rejection rules are evaluated in a fixed order: cooldown, change
// threshold, position-aligned open, burst cap, then decay is applied to
// whatever survives.
type Deduplicator struct {
	mu     sync.Mutex
	cfg    DedupConfig
	logger *slog.Logger
	state  map[string]*dedupState
}

// NewDeduplicator constructs a Deduplicator from cfg.
func NewDeduplicator(cfg DedupConfig, logger *slog.Logger) *Deduplicator {
	return &Deduplicator{
		cfg:    cfg,
		logger: logger,
		state:  make(map[string]*dedupState),
	}
}

// Filter applies the deduplication rules to score for market, given the
// current open position (nil if flat). Returns the (possibly decayed)
// signal and true on acceptance, or the zero value and false on rejection.
func (d *Deduplicator) Filter(score types.SignalScore, md types.MarketData, current *types.Position) (types.SignalScore, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	st, ok := d.state[md.Symbol]
	if !ok {
		st = &dedupState{}
		d.state[md.Symbol] = st
	}

	// 1. Cooldown.
	if !st.lastAcceptedAt.IsZero() {
		if now.Sub(st.lastAcceptedAt).Seconds() < d.cfg.CooldownSeconds {
			d.logger.Debug("signal rejected: cooldown", "symbol", md.Symbol)
			return types.SignalScore{}, false
		}
	}

	// 2. Change threshold.
	if st.hasLastValue {
		if math.Abs(score.Value-st.lastValue) < d.cfg.ChangeThreshold {
			d.logger.Debug("signal rejected: no change", "symbol", md.Symbol)
			return types.SignalScore{}, false
		}
	}

	direction, hasDirection := score.Direction()

	// 3. Position-aligned open: reject pyramiding into an existing position.
	if current != nil && !current.IsFlat() {
		posSide := types.BUY
		if current.IsShort() {
			posSide = types.SELL
		}
		if hasDirection && direction == posSide {
			d.logger.Debug("signal rejected: same-direction position", "symbol", md.Symbol)
			return types.SignalScore{}, false
		}
	}

	// 4/5. Burst cap and decay, tracked per consecutive same-direction run.
	emitted := score
	if hasDirection {
		if st.hasLastDirection && st.lastDirection == direction {
			st.consecutiveCount++
		} else {
			st.consecutiveCount = 1
			st.lastDirection = direction
			st.hasLastDirection = true
		}

		if st.consecutiveCount > d.cfg.MaxSameDirection {
			d.logger.Warn("signal rejected: max consecutive same-direction", "symbol", md.Symbol, "count", st.consecutiveCount)
			return types.SignalScore{}, false
		}

		if st.consecutiveCount >= 2 {
			decayMultiplier := math.Pow(d.cfg.DecayFactor, float64(st.consecutiveCount-1))
			decayed, err := types.NewSignalScore(clamp(score.Value*decayMultiplier), score.Confidence, score.Components, score.TimestampMs)
			if err == nil {
				emitted = decayed
			}
		}
	}

	st.lastValue = score.Value
	st.hasLastValue = true
	st.lastAcceptedAt = now

	return emitted, true
}

// ResetSymbol clears symbol's deduplication state. The engine calls this
// when a position flattens, so the next signal on that symbol starts a
// fresh cooldown/burst history.
func (d *Deduplicator) ResetSymbol(symbol string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.state, symbol)
}
