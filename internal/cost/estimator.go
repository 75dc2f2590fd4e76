package cost

import (
	"log/slog"
	"math"
	"sync"

	"github.com/shopspring/decimal"

	"perp-engine/pkg/types"
)

const (
	defaultMakerFeeBps = 1.5
	defaultTakerFeeBps = 4.5

	impactAlpha  = 0.01
	impactMinBps = 0.5
	impactMaxBps = 10.0

	liquidityReference  = 100.0
	volatilityReference = 10.0

	defaultMaxHistory = 10000
)

// CostActual is the post-trade counterpart of a CostEstimate: realised fee,
// slippage and impact for a specific fill, plus the estimation error versus
// the CostEstimate that preceded it.
type CostActual struct {
	OrderID             string
	OrderType           types.OrderType
	Side                types.Side
	Size                decimal.Decimal
	Symbol              string
	FeeBps              float64
	SlippageBps         float64
	ImpactBps           float64
	TotalCostBps        float64
	EstimatedTotalBps   float64
	EstimationErrorPct  float64
	TimestampMs         int64
}

// Stats summarises a window of CostActual records.
type Stats struct {
	AvgFeeBps             float64
	AvgSlippageBps        float64
	AvgImpactBps          float64
	AvgTotalBps           float64
	MakerRatio            float64
	TakerRatio            float64
	AvgEstimationErrorPct float64
	EstimationErrorStd    float64
	NumTrades             int
	Symbol                string
}

// AccuracyReport summarises estimation error across all recorded actuals.
type AccuracyReport struct {
	AvgErrorPct float64
	ErrorStd    float64
	MAE         float64
	RMSE        float64
	Within10Pct float64
	Within20Pct float64
	NumSamples  int
}

// Estimator is the dynamic cost estimator: it combines a fee schedule, a
// SlippageEstimator, and a market-state-driven linear impact model into a
// single pre-trade CostEstimate, and tracks post-trade actuals for
// estimation-accuracy reporting.
type Estimator struct {
	mu sync.Mutex

	makerFeeBps float64
	takerFeeBps float64
	slippage    *SlippageEstimator
	logger      *slog.Logger

	maxHistory int
	actuals    []CostActual
}

// NewEstimator constructs an Estimator. Zero fee values fall back to the
// 1.5bps/4.5bps maker/taker defaults.
func NewEstimator(makerFeeBps, takerFeeBps float64, slippage *SlippageEstimator, maxHistory int, logger *slog.Logger) *Estimator {
	if makerFeeBps == 0 {
		makerFeeBps = defaultMakerFeeBps
	}
	if takerFeeBps == 0 {
		takerFeeBps = defaultTakerFeeBps
	}
	if slippage == nil {
		slippage = NewSlippageEstimator(0)
	}
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	return &Estimator{
		makerFeeBps: makerFeeBps,
		takerFeeBps: takerFeeBps,
		slippage:    slippage,
		logger:      logger,
		maxHistory:  maxHistory,
	}
}

// marketState is the liquidity/volatility/spread snapshot that feeds the
// impact model.
type marketState struct {
	spreadBps       float64
	liquidityScore  float64
	volatilityScore float64
}

func calculateMarketState(md types.MarketData) marketState {
	bestBid, ok1 := md.BestBid()
	bestAsk, ok2 := md.BestAsk()

	var spreadBps float64
	if ok1 && ok2 {
		mid := bestBid.Price.Add(bestAsk.Price).Div(decimal.NewFromInt(2))
		if mid.IsPositive() {
			spread := bestAsk.Price.Sub(bestBid.Price)
			spreadBps, _ = spread.Div(mid).Mul(decimal.NewFromInt(10000)).Float64()
		} else {
			spreadBps = math.Inf(1)
		}
	} else {
		spreadBps = math.Inf(1)
	}

	totalLiquidity := 0.0
	for _, lvl := range topN(md.Bids, 3) {
		f, _ := lvl.Size.Float64()
		totalLiquidity += f
	}
	for _, lvl := range topN(md.Asks, 3) {
		f, _ := lvl.Size.Float64()
		totalLiquidity += f
	}
	liquidityScore := math.Min(totalLiquidity/liquidityReference, 1.0)

	volatilityScore := 1.0
	if !math.IsInf(spreadBps, 1) {
		volatilityScore = math.Min(spreadBps/volatilityReference, 1.0)
	}

	return marketState{spreadBps: spreadBps, liquidityScore: liquidityScore, volatilityScore: volatilityScore}
}

func topN(levels []types.Level, n int) []types.Level {
	if len(levels) < n {
		return levels
	}
	return levels[:n]
}

// EstimateCost produces a pre-trade CostEstimate for a hypothetical order.
func (e *Estimator) EstimateCost(orderType types.OrderType, side types.Side, size decimal.Decimal, md types.MarketData, nowMs int64) types.CostEstimate {
	feeBps := e.makerFeeBps
	if orderType == types.IOC {
		feeBps = e.takerFeeBps
	}

	slip := e.slippage.Estimate(md, side, size)
	state := calculateMarketState(md)
	impactBps := e.estimateImpactBps(side, size, md, state)

	total := feeBps + slip.SlippageBps + impactBps

	return types.CostEstimate{
		OrderType:       orderType,
		Side:            side,
		Size:            size,
		Symbol:          md.Symbol,
		FeeBps:          feeBps,
		SlippageBps:     slip.SlippageBps,
		ImpactBps:       impactBps,
		TotalBps:        total,
		SpreadBps:       state.spreadBps,
		LiquidityScore:  state.liquidityScore,
		VolatilityScore: state.volatilityScore,
		TimestampMs:     nowMs,
	}
}

// estimateImpactBps implements the linear impact model: alpha * (size /
// top-3 liquidity) * 10000, inflated by a liquidity-scarcity factor, and
// clamped to [0.5, 10.0] bps. An empty book on the relevant side falls
// back to a conservative 5bps estimate.
func (e *Estimator) estimateImpactBps(side types.Side, size decimal.Decimal, md types.MarketData, state marketState) float64 {
	var levels []types.Level
	if side == types.BUY {
		levels = topN(md.Asks, 3)
	} else {
		levels = topN(md.Bids, 3)
	}

	totalLiquidity := decimal.Zero
	for _, lvl := range levels {
		totalLiquidity = totalLiquidity.Add(lvl.Size)
	}
	if totalLiquidity.IsZero() {
		return 5.0
	}

	liquidityRatio, _ := size.Div(totalLiquidity).Float64()
	impactBps := impactAlpha * liquidityRatio * 10000
	impactBps *= 1.0 + (1.0 - state.liquidityScore)

	return math.Max(impactMinBps, math.Min(impactBps, impactMaxBps))
}

// RecordActualCost records the realised cost for a filled order against
// its prior CostEstimate and returns the resulting CostActual.
func (e *Estimator) RecordActualCost(order types.Order, estimated types.CostEstimate, actualFillPrice, referencePrice, bestPrice decimal.Decimal, nowMs int64) CostActual {
	e.mu.Lock()
	defer e.mu.Unlock()

	tradeValue := order.FilledSize.Mul(actualFillPrice)
	if tradeValue.IsZero() {
		actual := CostActual{
			OrderID: order.ID, OrderType: order.Type, Side: order.Side,
			Size: order.FilledSize, Symbol: order.Symbol,
			EstimatedTotalBps: estimated.TotalBps, TimestampMs: nowMs,
		}
		e.append(actual)
		return actual
	}

	feeBps := e.makerFeeBps
	if order.Type == types.IOC {
		feeBps = e.takerFeeBps
	}

	slippageBps := e.slippage.CalculateActualSlippage(actualFillPrice, referencePrice, order.Side)

	impactBps := 0.0
	if bestPrice.IsPositive() {
		diff := actualFillPrice.Sub(bestPrice)
		if order.Side == types.SELL {
			diff = diff.Neg()
		}
		impactBps, _ = diff.Div(bestPrice).Mul(decimal.NewFromInt(10000)).Float64()
	}

	total := feeBps + slippageBps + impactBps

	errorPct := 0.0
	switch {
	case estimated.TotalBps != 0:
		errorPct = (total - estimated.TotalBps) / estimated.TotalBps * 100
	case total != 0:
		errorPct = math.Inf(1)
	}

	actual := CostActual{
		OrderID:            order.ID,
		OrderType:          order.Type,
		Side:               order.Side,
		Size:               order.FilledSize,
		Symbol:             order.Symbol,
		FeeBps:             feeBps,
		SlippageBps:        slippageBps,
		ImpactBps:          impactBps,
		TotalCostBps:       total,
		EstimatedTotalBps:  estimated.TotalBps,
		EstimationErrorPct: errorPct,
		TimestampMs:        nowMs,
	}
	e.append(actual)
	return actual
}

func (e *Estimator) append(actual CostActual) {
	e.actuals = append(e.actuals, actual)
	if len(e.actuals) > e.maxHistory {
		e.actuals = e.actuals[len(e.actuals)-e.maxHistory:]
	}
}

// GetCostStats aggregates recorded actuals for symbol (empty string = all
// symbols). Returns false if there are no matching records.
func (e *Estimator) GetCostStats(symbol string) (Stats, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var matched []CostActual
	for _, a := range e.actuals {
		if symbol == "" || a.Symbol == symbol {
			matched = append(matched, a)
		}
	}
	if len(matched) == 0 {
		return Stats{}, false
	}

	var makerCount, takerCount int
	var sumFee, sumSlip, sumImpact, sumTotal float64
	var errors []float64
	for _, a := range matched {
		if a.OrderType == types.LIMIT {
			makerCount++
		} else {
			takerCount++
		}
		sumFee += a.FeeBps
		sumSlip += a.SlippageBps
		sumImpact += a.ImpactBps
		sumTotal += a.TotalCostBps
		if !math.IsInf(a.EstimationErrorPct, 1) {
			errors = append(errors, a.EstimationErrorPct)
		}
	}

	n := float64(len(matched))
	avgError, errorStd := meanAndStd(errors)

	return Stats{
		AvgFeeBps:             sumFee / n,
		AvgSlippageBps:        sumSlip / n,
		AvgImpactBps:          sumImpact / n,
		AvgTotalBps:           sumTotal / n,
		MakerRatio:            float64(makerCount) / n,
		TakerRatio:            float64(takerCount) / n,
		AvgEstimationErrorPct: avgError,
		EstimationErrorStd:    errorStd,
		NumTrades:             len(matched),
		Symbol:                symbol,
	}, true
}

// GetEstimationAccuracy reports estimation-error statistics across all
// recorded actuals.
func (e *Estimator) GetEstimationAccuracy() AccuracyReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	var valid []CostActual
	for _, a := range e.actuals {
		if !math.IsInf(a.EstimationErrorPct, 1) {
			valid = append(valid, a)
		}
	}
	if len(valid) == 0 {
		return AccuracyReport{}
	}

	var errors []float64
	var mae, rmse float64
	var within10, within20 int
	for _, a := range valid {
		errors = append(errors, a.EstimationErrorPct)
		diff := a.TotalCostBps - a.EstimatedTotalBps
		mae += math.Abs(diff)
		rmse += diff * diff
		if math.Abs(a.EstimationErrorPct) < 10 {
			within10++
		}
		if math.Abs(a.EstimationErrorPct) < 20 {
			within20++
		}
	}

	avgError, errorStd := meanAndStd(errors)
	n := float64(len(valid))

	return AccuracyReport{
		AvgErrorPct: avgError,
		ErrorStd:    errorStd,
		MAE:         mae / n,
		RMSE:        math.Sqrt(rmse / n),
		Within10Pct: float64(within10) / n,
		Within20Pct: float64(within20) / n,
		NumSamples:  len(valid),
	}
}

func meanAndStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if len(values) < 2 {
		return mean, 0
	}
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
