package analytics

import (
	"testing"

	"github.com/shopspring/decimal"

	"perp-engine/pkg/types"
)

func TestNewSignalEventCarriesComponentsAndConfidence(t *testing.T) {
	t.Parallel()

	score, err := types.NewSignalScore(0.42, types.HIGH, []float64{0.1, 0.2, 0.12}, 1000)
	if err != nil {
		t.Fatalf("NewSignalScore: %v", err)
	}

	evt := newSignalEvent("BTC-PERP", score)
	data, ok := evt.Data.(SignalEventData)
	if !ok {
		t.Fatalf("expected SignalEventData, got %T", evt.Data)
	}
	if evt.Type != "signal" || evt.Symbol != "BTC-PERP" {
		t.Errorf("unexpected event envelope: %+v", evt)
	}
	if data.Value != 0.42 || data.Confidence != "HIGH" || len(data.Components) != 3 {
		t.Errorf("unexpected signal data: %+v", data)
	}
}

func TestNewOrderEventCarriesDecimalsAsStrings(t *testing.T) {
	t.Parallel()

	price := decimal.NewFromFloat(100.25)
	order := types.Order{
		ID:           "ord-1",
		Symbol:       "BTC-PERP",
		Side:         types.BUY,
		Type:         types.IOC,
		Price:        price,
		Size:         decimal.NewFromInt(2),
		FilledSize:   decimal.NewFromInt(2),
		Status:       types.FILLED,
		AvgFillPrice: &price,
	}

	evt := newOrderEvent(order)
	data, ok := evt.Data.(OrderEventData)
	if !ok {
		t.Fatalf("expected OrderEventData, got %T", evt.Data)
	}
	if data.Price != "100.25" {
		t.Errorf("expected price string 100.25, got %q", data.Price)
	}
	if data.AvgFillPrice == nil || *data.AvgFillPrice != "100.25" {
		t.Error("expected avg fill price string carried through")
	}
	if data.Status != "FILLED" {
		t.Errorf("expected status FILLED, got %q", data.Status)
	}
}

func TestPublishOrderEmitsFillOnlyWhenFilled(t *testing.T) {
	t.Parallel()

	hub := NewHub(testLogger())
	p := NewPublisher(hub)

	pending := types.Order{ID: "ord-2", Symbol: "BTC-PERP", Status: types.PENDING}
	p.PublishOrder(pending)

	select {
	case msg := <-hub.broadcast:
		assertEventType(t, msg, "order")
	default:
		t.Fatal("expected order event to be queued")
	}
	select {
	case <-hub.broadcast:
		t.Fatal("expected no fill event for a pending order")
	default:
	}

	filled := types.Order{ID: "ord-3", Symbol: "BTC-PERP", Status: types.FILLED, FilledSize: decimal.NewFromInt(1)}
	p.PublishOrder(filled)

	select {
	case msg := <-hub.broadcast:
		assertEventType(t, msg, "order")
	default:
		t.Fatal("expected order event to be queued")
	}
	select {
	case msg := <-hub.broadcast:
		assertEventType(t, msg, "fill")
	default:
		t.Fatal("expected fill event to follow a filled order")
	}
}

func assertEventType(t *testing.T, raw []byte, want string) {
	t.Helper()
	if !containsType(raw, want) {
		t.Errorf("expected event type %q in payload %s", want, raw)
	}
}

func containsType(raw []byte, want string) bool {
	needle := `"type":"` + want + `"`
	return indexOf(string(raw), needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
