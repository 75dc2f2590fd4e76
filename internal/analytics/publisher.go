package analytics

import (
	"perp-engine/pkg/types"
)

// alphaCostPercentages is satisfied by *attribution.Attributor without an
// import cycle (attribution depends on pkg/types only, analytics depends
// on neither attribution nor the reverse).
type alphaCostPercentages interface {
	AlphaPercentage() float64
	CostPercentage() float64
}

// Publisher is the engine-facing handle onto the analytics pipeline. Every
// Publish* call is non-blocking: a slow or absent subscriber never stalls
// the tick loop.
type Publisher struct {
	hub *Hub
}

// NewPublisher wraps hub for use by engine components.
func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

// PublishSignal emits a symbol's aggregated signal; the engine calls it
// before deduplication, so rejected signals are emitted too.
func (p *Publisher) PublishSignal(symbol string, score types.SignalScore) {
	p.hub.Broadcast(newSignalEvent(symbol, score))
}

// PublishOrder emits an order's current state (placement, rejection, or
// any other transition the router observes).
func (p *Publisher) PublishOrder(order types.Order) {
	p.hub.Broadcast(newOrderEvent(order))
	if order.Status == types.FILLED || order.Status == types.PARTIAL_FILLED {
		p.hub.Broadcast(newFillEvent(order))
	}
}

// PublishAttribution emits a realised trade's PnL decomposition.
func (p *Publisher) PublishAttribution(symbol string, ta types.TradeAttribution, a alphaCostPercentages) {
	var alphaPct, costPct float64
	if a != nil {
		alphaPct = a.AlphaPercentage()
		costPct = a.CostPercentage()
	}
	p.hub.Broadcast(newAttributionEvent(symbol, ta, alphaPct, costPct))
}

// PublishCostEstimate emits an ex-ante cost prediction.
func (p *Publisher) PublishCostEstimate(ce types.CostEstimate) {
	p.hub.Broadcast(newCostEvent(ce))
}
