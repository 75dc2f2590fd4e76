// Package engine wires every core subsystem into a single cooperative
// tick loop: per symbol, fetch market data, aggregate a signal, filter
// it, pre-check the hard limits, route the order, apply the fill to the
// position and record its attribution and cost actuals. After every
// symbol has been processed the Position Closer sweeps all open
// positions for TP/SL or max-age exits.
//
// Lifecycle: New() → Run(ctx) → ctx cancelled → current tick finishes →
// Run returns.
package engine

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"perp-engine/internal/analytics"
	"perp-engine/internal/attribution"
	"perp-engine/internal/config"
	"perp-engine/internal/cost"
	"perp-engine/internal/execution"
	"perp-engine/internal/feed"
	"perp-engine/internal/metrics"
	"perp-engine/internal/position"
	"perp-engine/internal/risk"
	"perp-engine/internal/signal"
	"perp-engine/pkg/types"
)

const (
	defaultOrderSize      = "1.0"
	defaultTickOffset     = "0.01"
	defaultInitialNAV     = "10000"
	defaultMaxPositionUSD = "10000"
	fallbackSkipReason    = "low_confidence_or_dedup"
	riskRejectSkipReason  = "hard_limit_rejected"
)

// Engine is the trading engine's tick loop. It owns no network
// connections of its own — the feed adapter and venue client are
// injected so paper and live modes share exactly this code path.
type Engine struct {
	cfg     config.Config
	symbols []string

	feed *feed.Manager

	aggregator *signal.Aggregator
	dedup      *signal.Deduplicator
	slippage   *cost.SlippageEstimator
	costEst    *cost.Estimator
	router     *execution.Router
	hardLimits *risk.HardLimits
	posMgr     *position.Manager
	closer     *position.Closer
	attributor *attribution.Attributor
	publisher  *analytics.Publisher
	metrics    *metrics.Metrics

	orderSize decimal.Decimal

	logger   *slog.Logger
	auditLog *slog.Logger
}

// New wires every subsystem from cfg. venue is the execution.Venue
// implementation (the live wire client or a paper/dry-run client); mgr
// is the Market Data Manager the feed adapter writes into.
func New(cfg config.Config, mgr *feed.Manager, venue execution.Venue, m *metrics.Metrics, pub *analytics.Publisher, logger, auditLog *slog.Logger) *Engine {
	orderSize := parseDecimal(cfg.IOC.SizeStr, defaultOrderSize)
	tickOffset := parseDecimal(cfg.Maker.TickOffsetStr, defaultTickOffset)
	initialNAV := parseDecimal(cfg.Risk.InitialNAVStr, defaultInitialNAV)
	maxPositionUSD := parseDecimal(cfg.Risk.MaxPositionSizeUSDStr, defaultMaxPositionUSD)

	slippage := cost.NewSlippageEstimator(cfg.Cost.MaxSlippageBps)

	aggregator := signal.NewAggregator(signal.Config{
		Weights: signal.Weights{
			OBI:        cfg.Signal.OBIWeight,
			Microprice: cfg.Signal.MicropriceWeight,
			Impact:     cfg.Signal.ImpactWeight,
		},
		OBIDepth:        cfg.Signal.OBIDepthLevels,
		OBIWeighted:     cfg.Signal.OBIWeighted,
		MicropriceScale: cfg.Signal.MicropriceScale,
		ImpactWindowMs:  cfg.Signal.ImpactWindowMs,
		ThetaHigh:       cfg.Signal.ThetaHigh,
		ThetaMedium:     cfg.Signal.ThetaMedium,
	}, logger)

	dedup := signal.NewDeduplicator(signal.DedupConfig{
		CooldownSeconds:  cfg.Dedup.CooldownSeconds,
		ChangeThreshold:  cfg.Dedup.ChangeThreshold,
		DecayFactor:      cfg.Dedup.DecayFactor,
		MaxSameDirection: cfg.Dedup.MaxSameDirection,
	}, logger)

	costEst := cost.NewEstimator(
		cfg.Attribution.MakerFeeRate*10000,
		cfg.Attribution.TakerFeeRate*10000,
		slippage,
		cfg.Cost.HistorySize,
		logger,
	)

	iocExec := execution.NewIOCExecutor(venue, execution.IOCConfig{AdjBps: cfg.IOC.AdjBps}, logger)
	makerExec := execution.NewMakerExecutor(venue, execution.MakerConfig{
		TickOffset:    tickOffset,
		PollInterval:  cfg.Maker.PollInterval,
		TimeoutHigh:   cfg.Maker.TimeoutHigh,
		TimeoutMedium: cfg.Maker.TimeoutMedium,
		UsePostOnly:   cfg.Maker.UsePostOnly,
	}, logger)
	router := execution.NewRouter(makerExec, iocExec, execution.RouterConfig{
		EnableFallback:   cfg.Router.EnableFallback,
		FallbackOnMedium: cfg.Router.FallbackOnMedium,
	}, logger)

	hardLimits := risk.NewHardLimits(risk.Config{
		InitialNAV:          initialNAV,
		MaxSingleLossPct:    cfg.Risk.MaxSingleLossPct,
		MaxDailyDrawdownPct: cfg.Risk.MaxDailyDrawdownPct,
		MaxPositionSizeUSD:  maxPositionUSD,
	}, slippage, logger, auditLog)

	posMgr := position.NewManager(logger)
	closer := position.NewCloser(posMgr, iocExec, position.CloserConfig{
		MaxAgeSeconds: cfg.Closer.MaxPositionAgeSeconds,
		TPSL: position.TPSLConfig{
			TakeProfitPct: decimal.NewFromFloat(cfg.TPSL.TPPct),
			StopLossPct:   decimal.NewFromFloat(cfg.TPSL.SLPct),
		},
	}, logger)

	attributor := attribution.NewAttributor(attribution.Config{
		MakerFeeBps:    cfg.Attribution.MakerFeeRate * 10000,
		TakerFeeBps:    cfg.Attribution.TakerFeeRate * 10000,
		MakerRebateBps: cfg.Attribution.MakerRebateBps,
		HorizonFactor:  cfg.Attribution.HorizonFactor,
		AlphaThreshold: cfg.Attribution.AlphaThreshold,
	}, logger)

	e := &Engine{
		cfg:        cfg,
		symbols:    cfg.Symbols,
		feed:       mgr,
		aggregator: aggregator,
		dedup:      dedup,
		slippage:   slippage,
		costEst:    costEst,
		router:     router,
		hardLimits: hardLimits,
		posMgr:     posMgr,
		closer:     closer,
		attributor: attributor,
		publisher:  pub,
		metrics:    m,
		orderSize:  orderSize,
		logger:     logger.With("component", "engine"),
		auditLog:   auditLog,
	}

	closer.SetOnClose(e.onPositionClosed)

	return e
}

// Run drives the tick loop until ctx is cancelled. The in-flight tick
// always finishes before Run returns.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Engine.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine loop stopping")
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick runs one FETCH_DATA → SIGNAL → ROUTE → APPLY_FILL → POSITION_CHECK
// pass over every configured symbol, in order, then sweeps all known
// positions for TP/SL or max-age exits.
func (e *Engine) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.TickLatency.Observe(time.Since(start).Seconds())
		}
	}()

	prices := make(map[string]decimal.Decimal, len(e.symbols))

	for _, symbol := range e.symbols {
		e.processSymbol(ctx, symbol, prices)
	}

	if len(prices) > 0 {
		e.posMgr.UpdatePrices(prices)
	}

	nowMs := start.UnixMilli()
	for _, symbol := range e.symbols {
		md, ok := e.feed.GetMarketData(symbol)
		if !ok {
			continue
		}
		e.safeCall(symbol, "position_closer", func() {
			e.closer.CheckAndClose(ctx, md, nowMs)
		})
	}
}

// processSymbol runs one symbol's FETCH_DATA → SIGNAL → ROUTE →
// APPLY_FILL pass. A panic anywhere in this symbol's path is recovered
// so one bad instrument never stops the loop.
func (e *Engine) processSymbol(ctx context.Context, symbol string, prices map[string]decimal.Decimal) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic recovered processing symbol", "symbol", symbol, "recover", r)
		}
	}()

	md, ok := e.feed.GetMarketData(symbol)
	if !ok {
		return
	}
	prices[symbol] = md.MidPrice

	score, err := e.aggregator.Aggregate(md)
	if err != nil {
		e.logger.Error("signal aggregation failed", "symbol", symbol, "error", err)
		return
	}
	if e.publisher != nil {
		e.publisher.PublishSignal(symbol, score)
	}

	var currentPos *types.Position
	if pos, ok := e.posMgr.Get(symbol); ok {
		currentPos = &pos
	}

	filtered, accepted := e.dedup.Filter(score, md, currentPos)
	if !accepted {
		if e.metrics != nil {
			e.metrics.RecordSkip(symbol, "deduplicated")
		}
		return
	}

	side, hasDirection := filtered.Direction()
	if !hasDirection {
		return
	}

	currentSize := decimal.Zero
	if currentPos != nil {
		currentSize = currentPos.Size
	}

	tentative := types.Order{Symbol: symbol, Side: side, Size: e.orderSize, Type: types.LIMIT}
	if allowed, reason := e.hardLimits.CheckOrder(tentative, md.MidPrice, currentSize, &md); !allowed {
		e.logger.Warn("hard limit rejected order", "symbol", symbol, "reason", reason)
		if e.metrics != nil {
			e.metrics.RecordSkip(symbol, riskRejectSkipReason)
			e.metrics.SetBreach("pre_trade", e.hardLimits.GetStatus().IsBreached)
		}
		return
	}

	statsBefore := e.router.Stats()
	order := e.router.Route(ctx, filtered, md, e.orderSize)
	statsAfter := e.router.Stats()
	if e.metrics != nil {
		if statsAfter.FallbackCount > statsBefore.FallbackCount {
			e.metrics.RecordFallback(symbol)
		}
		if statsAfter.SkipCount > statsBefore.SkipCount {
			e.metrics.RecordSkip(symbol, fallbackSkipReason)
		}
	}
	if order == nil {
		return
	}
	if e.publisher != nil {
		e.publisher.PublishOrder(*order)
	}
	if order.Status != types.FILLED && order.Status != types.PARTIAL_FILLED {
		return
	}

	e.applyFill(*order, md, filtered.Value)
}

// applyFill records a filled order against the position, attribution,
// and cost-estimation subsystems, and publishes the resulting events.
// Shared by the main tick's route step and the Position Closer's forced
// exits.
func (e *Engine) applyFill(order types.Order, md types.MarketData, signalValue float64) {
	fillPrice := order.Price
	if order.AvgFillPrice != nil {
		fillPrice = *order.AvgFillPrice
	}

	pos := e.posMgr.UpdateFromOrder(order, fillPrice)
	if pos.IsFlat() {
		e.dedup.ResetSymbol(order.Symbol)
	}

	best, hasBest := execution.BestPrice(md, order.Side)
	if !hasBest {
		best = fillPrice
	}

	ta := e.attributor.AttributeTrade(order, signalValue, md.MidPrice, fillPrice, best)
	if e.publisher != nil {
		e.publisher.PublishAttribution(md.Symbol, ta, e.attributor)
	}
	if e.metrics != nil {
		summary := e.attributor.GetCumulativeAttribution()
		e.metrics.AttributionAlpha.WithLabelValues(md.Symbol).Set(toFloat(summary.Alpha))
		e.metrics.AttributionFee.WithLabelValues(md.Symbol).Set(toFloat(summary.Fee))
		e.metrics.AttributionSlippage.WithLabelValues(md.Symbol).Set(toFloat(summary.Slippage))
		e.metrics.AttributionImpact.WithLabelValues(md.Symbol).Set(toFloat(summary.Impact))
	}

	nowMs := order.CreatedAtMs
	estimate := e.costEst.EstimateCost(order.Type, order.Side, order.Size, md, nowMs)
	if e.publisher != nil {
		e.publisher.PublishCostEstimate(estimate)
	}
	actual := e.costEst.RecordActualCost(order, estimate, fillPrice, md.MidPrice, best, nowMs)
	if e.metrics != nil {
		e.metrics.CostEstimateError.Observe(math.Abs(actual.TotalCostBps - actual.EstimatedTotalBps))
	}

	e.hardLimits.UpdatePnL(ta.Total)
}

// onPositionClosed is the Position Closer's fill callback: it runs the
// same attribution/cost/analytics path a normally-routed fill gets.
func (e *Engine) onPositionClosed(order types.Order, md types.MarketData, signalValue float64, reason string) {
	e.logger.Info("position closed", "symbol", md.Symbol, "reason", reason, "order_id", order.ID)
	if e.publisher != nil {
		e.publisher.PublishOrder(order)
	}
	if order.Status != types.FILLED && order.Status != types.PARTIAL_FILLED {
		return
	}
	e.applyFill(order, md, signalValue)
}

// safeCall recovers a panic from fn so a single symbol's failure in a
// tick phase never stops the loop.
func (e *Engine) safeCall(symbol, phase string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic recovered", "symbol", symbol, "phase", phase, "recover", r)
		}
	}()
	fn()
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func parseDecimal(s, def string) decimal.Decimal {
	if s == "" {
		s = def
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		d, _ = decimal.NewFromString(def)
	}
	return d
}
