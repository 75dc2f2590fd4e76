// Package risk implements the Hard Limits: the process-level, largely
// non-negotiable trading constraints that sit between the Router and the
// venue.
package risk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"perp-engine/internal/cost"
	"perp-engine/pkg/types"
)

const (
	defaultMaxSingleLossPct    = 0.008
	defaultMaxDailyDrawdownPct = 0.05
	defaultFallbackSlippagePct = 0.01
)

var defaultMaxPositionSizeUSD = decimal.NewFromInt(10000)

// Config tunes the Hard Limits.
type Config struct {
	InitialNAV          decimal.Decimal
	MaxSingleLossPct    float64
	MaxDailyDrawdownPct float64
	MaxPositionSizeUSD  decimal.Decimal
}

func (c Config) withDefaults() Config {
	if c.MaxSingleLossPct == 0 {
		c.MaxSingleLossPct = defaultMaxSingleLossPct
	}
	if c.MaxDailyDrawdownPct == 0 {
		c.MaxDailyDrawdownPct = defaultMaxDailyDrawdownPct
	}
	if c.MaxPositionSizeUSD.IsZero() {
		c.MaxPositionSizeUSD = defaultMaxPositionSizeUSD
	}
	return c
}

// HardLimits enforces, in order, a single-loss cap, a daily drawdown cap
// (both against the initial NAV and sticky once breached), and a
// non-sticky position-size cap. Once any sticky check breaches, every
// subsequent check_order call is rejected until the process restarts —
// there is no automated unbreach.
type HardLimits struct {
	mu sync.Mutex

	cfg      Config
	slippage *cost.SlippageEstimator
	logger   *slog.Logger
	auditLog *slog.Logger

	currentNAV   decimal.Decimal
	dailyPnL     decimal.Decimal
	dailyPeakNAV decimal.Decimal
	tradingDate  string

	breached     bool
	breachReason string
}

// NewHardLimits constructs HardLimits seeded at initial NAV.
func NewHardLimits(cfg Config, slippage *cost.SlippageEstimator, logger, auditLog *slog.Logger) *HardLimits {
	cfg = cfg.withDefaults()
	return &HardLimits{
		cfg:          cfg,
		slippage:     slippage,
		logger:       logger,
		auditLog:     auditLog,
		currentNAV:   cfg.InitialNAV,
		dailyPeakNAV: cfg.InitialNAV,
		tradingDate:  today(),
	}
}

func today() string {
	return time.Now().Format("2006-01-02")
}

// CheckOrder evaluates order against all three limits in order. If the
// process is already sticky-breached, every order is rejected
// immediately regardless of its own merits.
func (h *HardLimits) CheckOrder(order types.Order, currentPrice, currentPositionSize decimal.Decimal, md *types.MarketData) (bool, string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.breached {
		return false, fmt.Sprintf("System breached: %s", h.breachReason)
	}

	h.rolloverIfNewDay()

	if ok, reason := h.checkSingleLoss(order, currentPrice, md); !ok {
		return false, reason
	}
	if ok, reason := h.checkDailyDrawdown(); !ok {
		return false, reason
	}
	if ok, reason := h.checkPositionSize(order, currentPrice, currentPositionSize); !ok {
		return false, reason
	}

	return true, ""
}

func (h *HardLimits) checkSingleLoss(order types.Order, currentPrice decimal.Decimal, md *types.MarketData) (bool, string) {
	orderValue := order.Size.Mul(currentPrice)
	maxLoss := h.cfg.InitialNAV.Mul(decimal.NewFromFloat(h.cfg.MaxSingleLossPct))

	var potentialLoss decimal.Decimal
	if h.slippage != nil && md != nil {
		result := h.slippage.Estimate(*md, order.Side, order.Size)
		slippagePct := decimal.NewFromFloat(result.SlippageBps).Div(decimal.NewFromInt(10000))
		potentialLoss = orderValue.Mul(slippagePct)
	} else {
		potentialLoss = orderValue.Mul(decimal.NewFromFloat(defaultFallbackSlippagePct))
	}

	if potentialLoss.GreaterThan(maxLoss) {
		reason := fmt.Sprintf(
			"Single loss limit exceeded: potential_loss=%.2f > max_loss=%.2f (initial_NAV=%.2f, max_pct=%.2f%%)",
			toF(potentialLoss), toF(maxLoss), toF(h.cfg.InitialNAV), h.cfg.MaxSingleLossPct*100,
		)
		h.markBreach(reason)
		return false, reason
	}
	return true, ""
}

func (h *HardLimits) checkDailyDrawdown() (bool, string) {
	currentDrawdown := h.dailyPeakNAV.Sub(h.currentNAV)
	maxDrawdown := h.cfg.InitialNAV.Mul(decimal.NewFromFloat(h.cfg.MaxDailyDrawdownPct))

	if currentDrawdown.GreaterThanOrEqual(maxDrawdown) {
		reason := fmt.Sprintf(
			"Daily drawdown limit exceeded: drawdown=%.2f >= max_drawdown=%.2f (peak_nav=%.2f, current_nav=%.2f, initial_nav=%.2f, max_pct=%.2f%%)",
			toF(currentDrawdown), toF(maxDrawdown), toF(h.dailyPeakNAV), toF(h.currentNAV), toF(h.cfg.InitialNAV), h.cfg.MaxDailyDrawdownPct*100,
		)
		h.markBreach(reason)
		return false, reason
	}
	return true, ""
}

// checkPositionSize is intentionally non-sticky: a breach here rejects
// this order only, it does not stop trading — unlike single-loss and
// drawdown, which protect capital and must latch.
func (h *HardLimits) checkPositionSize(order types.Order, currentPrice, currentPositionSize decimal.Decimal) (bool, string) {
	newPositionSize := currentPositionSize.Add(order.Size)
	if order.Side == types.SELL {
		newPositionSize = currentPositionSize.Sub(order.Size)
	}
	newPositionValue := newPositionSize.Abs().Mul(currentPrice)

	if newPositionValue.GreaterThan(h.cfg.MaxPositionSizeUSD) {
		reason := fmt.Sprintf(
			"Position size limit exceeded: new_position=%.2f > max_position=%.2f",
			toF(newPositionValue), toF(h.cfg.MaxPositionSizeUSD),
		)
		h.logger.Warn("position size limit breach", "reason", reason)
		return false, reason
	}
	return true, ""
}

// UpdatePnL applies a realised/unrealised PnL delta to the tracked NAV
// and updates the daily peak used for drawdown checks.
func (h *HardLimits) UpdatePnL(pnl decimal.Decimal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rolloverIfNewDay()

	h.currentNAV = h.currentNAV.Add(pnl)
	h.dailyPnL = h.dailyPnL.Add(pnl)
	if h.currentNAV.GreaterThan(h.dailyPeakNAV) {
		h.dailyPeakNAV = h.currentNAV
	}
}

// rolloverIfNewDay resets daily PnL and the intraday peak at the start
// of a new trading day. The breach flag is never reset here — only
// ResetBreach clears it.
func (h *HardLimits) rolloverIfNewDay() {
	d := today()
	if d == h.tradingDate {
		return
	}
	h.logger.Info("new trading day", "old_date", h.tradingDate, "new_date", d, "daily_pnl", toF(h.dailyPnL))
	h.tradingDate = d
	h.dailyPnL = decimal.Zero
	h.dailyPeakNAV = h.currentNAV
}

func (h *HardLimits) markBreach(reason string) {
	h.breached = true
	h.breachReason = reason
	h.logger.Error("hard limit breached", "reason", reason, "current_nav", toF(h.currentNAV), "daily_pnl", toF(h.dailyPnL))
	h.auditLog.Error("hard_limit_breached",
		"trigger", "risk_control",
		"reason", reason,
		"current_nav", toF(h.currentNAV),
		"initial_nav", toF(h.cfg.InitialNAV),
		"daily_pnl", toF(h.dailyPnL),
		"daily_peak_nav", toF(h.dailyPeakNAV),
		"action", "stop_trading",
	)
}

// ResetBreach clears the sticky breach flag. Intended for operator
// intervention only; the engine never calls this automatically.
func (h *HardLimits) ResetBreach() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger.Warn("breach reset", "previous_reason", h.breachReason)
	h.breached = false
	h.breachReason = ""
}

// Status is a point-in-time snapshot of risk state.
type Status struct {
	IsBreached         bool
	BreachReason       string
	CurrentNAV         decimal.Decimal
	DailyPnL           decimal.Decimal
	DailyPeakNAV       decimal.Decimal
	CurrentDrawdown    decimal.Decimal
	MaxDrawdown        decimal.Decimal
	DrawdownUtilization float64
}

// GetStatus returns a snapshot of current risk state.
func (h *HardLimits) GetStatus() Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	currentDrawdown := h.dailyPeakNAV.Sub(h.currentNAV)
	maxDrawdown := h.cfg.InitialNAV.Mul(decimal.NewFromFloat(h.cfg.MaxDailyDrawdownPct))

	utilization := 0.0
	if maxDrawdown.IsPositive() {
		utilization, _ = currentDrawdown.Div(maxDrawdown).Float64()
	}

	return Status{
		IsBreached:          h.breached,
		BreachReason:        h.breachReason,
		CurrentNAV:          h.currentNAV,
		DailyPnL:            h.dailyPnL,
		DailyPeakNAV:        h.dailyPeakNAV,
		CurrentDrawdown:     currentDrawdown,
		MaxDrawdown:         maxDrawdown,
		DrawdownUtilization: utilization,
	}
}

func toF(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
