// Package analytics is the engine's outbound event pipeline. Every
// aggregated signal (before deduplication), submitted order, fill, attribution record, and cost estimate is
// serialised into a structured event and broadcast over a WebSocket hub for
// downstream tooling (IC/hit-rate/quantile-spread computation) that lives
// outside this module. Numerics that must not lose precision are carried
// as Decimal strings; everything else is a plain JSON scalar.
package analytics

import (
	"time"

	"perp-engine/pkg/types"
)

// Event wraps every payload emitted onto the hub. Type discriminates the
// shape of Data: "signal", "order", "fill", "attribution", "cost".
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Symbol    string      `json:"symbol"`
	Data      interface{} `json:"data"`
}

// SignalEventData mirrors types.SignalScore.
type SignalEventData struct {
	Value      float64   `json:"value"`
	Confidence string    `json:"confidence"`
	Components []float64 `json:"components"`
}

// OrderEventData mirrors types.Order, with Decimal fields carried as
// strings to preserve precision across the wire.
type OrderEventData struct {
	ID           string  `json:"id"`
	Side         string  `json:"side"`
	Type         string  `json:"type"`
	Price        string  `json:"price"`
	Size         string  `json:"size"`
	FilledSize   string  `json:"filled_size"`
	Status       string  `json:"status"`
	AvgFillPrice *string `json:"avg_fill_price,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// FillEventData is emitted when an order reaches a filled or
// partial-filled terminal state.
type FillEventData struct {
	OrderID      string `json:"order_id"`
	Side         string `json:"side"`
	FilledSize   string `json:"filled_size"`
	AvgFillPrice string `json:"avg_fill_price"`
}

// AttributionEventData mirrors types.TradeAttribution plus the derived
// percentages a downstream consumer would otherwise have to recompute.
type AttributionEventData struct {
	Alpha      string  `json:"alpha"`
	Fee        string  `json:"fee"`
	Slippage   string  `json:"slippage"`
	Impact     string  `json:"impact"`
	Rebate     string  `json:"rebate"`
	Total      string  `json:"total"`
	AlphaPct   float64 `json:"alpha_percentage"`
	CostPct    float64 `json:"cost_percentage"`
}

// CostEventData mirrors types.CostEstimate.
type CostEventData struct {
	OrderType       string  `json:"order_type"`
	Side            string  `json:"side"`
	Size            string  `json:"size"`
	FeeBps          float64 `json:"fee_bps"`
	SlippageBps     float64 `json:"slippage_bps"`
	ImpactBps       float64 `json:"impact_bps"`
	TotalBps        float64 `json:"total_bps"`
	SpreadBps       float64 `json:"spread_bps"`
	LiquidityScore  float64 `json:"liquidity_score"`
	VolatilityScore float64 `json:"volatility_score"`
}

func newSignalEvent(symbol string, score types.SignalScore) Event {
	return Event{
		Type:      "signal",
		Timestamp: time.UnixMilli(score.TimestampMs).UTC(),
		Symbol:    symbol,
		Data: SignalEventData{
			Value:      score.Value,
			Confidence: score.Confidence.String(),
			Components: score.Components,
		},
	}
}

func newOrderEvent(order types.Order) Event {
	var avgFillPrice *string
	if order.AvgFillPrice != nil {
		s := order.AvgFillPrice.String()
		avgFillPrice = &s
	}
	return Event{
		Type:      "order",
		Timestamp: time.UnixMilli(order.CreatedAtMs).UTC(),
		Symbol:    order.Symbol,
		Data: OrderEventData{
			ID:           order.ID,
			Side:         order.Side.String(),
			Type:         order.Type.String(),
			Price:        order.Price.String(),
			Size:         order.Size.String(),
			FilledSize:   order.FilledSize.String(),
			Status:       order.Status.String(),
			AvgFillPrice: avgFillPrice,
			Error:        order.Error,
		},
	}
}

func newFillEvent(order types.Order) Event {
	avgFillPrice := ""
	if order.AvgFillPrice != nil {
		avgFillPrice = order.AvgFillPrice.String()
	}
	return Event{
		Type:      "fill",
		Timestamp: time.Now().UTC(),
		Symbol:    order.Symbol,
		Data: FillEventData{
			OrderID:      order.ID,
			Side:         order.Side.String(),
			FilledSize:   order.FilledSize.String(),
			AvgFillPrice: avgFillPrice,
		},
	}
}

func newAttributionEvent(symbol string, ta types.TradeAttribution, alphaPct, costPct float64) Event {
	return Event{
		Type:      "attribution",
		Timestamp: time.Now().UTC(),
		Symbol:    symbol,
		Data: AttributionEventData{
			Alpha:    ta.Alpha.String(),
			Fee:      ta.Fee.String(),
			Slippage: ta.Slippage.String(),
			Impact:   ta.Impact.String(),
			Rebate:   ta.Rebate.String(),
			Total:    ta.Total.String(),
			AlphaPct: alphaPct,
			CostPct:  costPct,
		},
	}
}

func newCostEvent(ce types.CostEstimate) Event {
	return Event{
		Type:      "cost",
		Timestamp: time.UnixMilli(ce.TimestampMs).UTC(),
		Symbol:    ce.Symbol,
		Data: CostEventData{
			OrderType:       ce.OrderType.String(),
			Side:            ce.Side.String(),
			Size:            ce.Size.String(),
			FeeBps:          ce.FeeBps,
			SlippageBps:     ce.SlippageBps,
			ImpactBps:       ce.ImpactBps,
			TotalBps:        ce.TotalBps,
			SpreadBps:       ce.SpreadBps,
			LiquidityScore:  ce.LiquidityScore,
			VolatilityScore: ce.VolatilityScore,
		},
	}
}
