package signal

import (
	"testing"

	"github.com/shopspring/decimal"

	"perp-engine/pkg/types"
)

func mustDecimal(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func defaultDedupConfig() DedupConfig {
	return DedupConfig{
		CooldownSeconds:  5,
		ChangeThreshold:  0.15,
		DecayFactor:      0.85,
		MaxSameDirection: 3,
	}
}

func mustScore(t *testing.T, value float64, conf types.Confidence) types.SignalScore {
	t.Helper()
	s, err := types.NewSignalScore(value, conf, []float64{value, 0, 0}, 0)
	if err != nil {
		t.Fatalf("unexpected error building score: %v", err)
	}
	return s
}

// Scenario 5: a second signal arrives within the cooldown window with a
// 0.2 change in value, which exceeds the 0.15 change threshold but must
// still be rejected because the cooldown rule is evaluated first.
func TestFilterCooldownRejectsDespiteLargeChange(t *testing.T) {
	t.Parallel()

	d := NewDeduplicator(defaultDedupConfig(), testLogger())
	md := types.MarketData{Symbol: "BTC-PERP"}

	first := mustScore(t, 0.3, types.MEDIUM)
	if _, ok := d.Filter(first, md, nil); !ok {
		t.Fatal("expected first signal to be accepted")
	}

	second := mustScore(t, 0.5, types.MEDIUM)
	if _, ok := d.Filter(second, md, nil); ok {
		t.Fatal("expected second signal within cooldown to be rejected despite 0.2 change")
	}
}

func TestFilterChangeThresholdRejectsSmallMove(t *testing.T) {
	t.Parallel()

	cfg := defaultDedupConfig()
	cfg.CooldownSeconds = 0
	d := NewDeduplicator(cfg, testLogger())
	md := types.MarketData{Symbol: "BTC-PERP"}

	first := mustScore(t, 0.3, types.MEDIUM)
	if _, ok := d.Filter(first, md, nil); !ok {
		t.Fatal("expected first signal accepted")
	}

	second := mustScore(t, 0.35, types.MEDIUM)
	if _, ok := d.Filter(second, md, nil); ok {
		t.Fatal("expected small change below threshold to be rejected")
	}
}

func TestFilterRejectsSameDirectionAsOpenPosition(t *testing.T) {
	t.Parallel()

	cfg := defaultDedupConfig()
	cfg.CooldownSeconds = 0
	cfg.ChangeThreshold = 0
	d := NewDeduplicator(cfg, testLogger())
	md := types.MarketData{Symbol: "BTC-PERP"}

	longPos := &types.Position{Symbol: "BTC-PERP", Size: mustDecimal(1)}
	sideLong := types.BUY
	longPos.Side = &sideLong

	sig := mustScore(t, 0.6, types.HIGH)
	if _, ok := d.Filter(sig, md, longPos); ok {
		t.Fatal("expected signal aligned with existing long position to be rejected")
	}
}

func TestFilterBurstCapAndDecay(t *testing.T) {
	t.Parallel()

	cfg := defaultDedupConfig()
	cfg.CooldownSeconds = 0
	cfg.ChangeThreshold = 0
	cfg.MaxSameDirection = 3
	d := NewDeduplicator(cfg, testLogger())
	md := types.MarketData{Symbol: "BTC-PERP"}

	// First acceptance establishes direction, no decay.
	s1, ok := d.Filter(mustScore(t, 0.3, types.MEDIUM), md, nil)
	if !ok || s1.Value != 0.3 {
		t.Fatalf("expected first accepted undecayed, got %v ok=%v", s1, ok)
	}

	// Second same-direction signal: decayed by decayFactor^1.
	s2, ok := d.Filter(mustScore(t, 0.4, types.MEDIUM), md, nil)
	if !ok {
		t.Fatal("expected second same-direction signal accepted")
	}
	if s2.Value >= 0.4 {
		t.Errorf("expected decayed value below raw 0.4, got %f", s2.Value)
	}

	// Third same-direction: still allowed (count==3==max).
	if _, ok := d.Filter(mustScore(t, 0.5, types.MEDIUM), md, nil); !ok {
		t.Fatal("expected third same-direction signal accepted at cap")
	}

	// Fourth same-direction: exceeds max, rejected.
	if _, ok := d.Filter(mustScore(t, 0.6, types.MEDIUM), md, nil); ok {
		t.Fatal("expected fourth consecutive same-direction signal rejected by burst cap")
	}
}

func TestResetSymbolClearsState(t *testing.T) {
	t.Parallel()

	d := NewDeduplicator(defaultDedupConfig(), testLogger())
	md := types.MarketData{Symbol: "BTC-PERP"}

	if _, ok := d.Filter(mustScore(t, 0.3, types.MEDIUM), md, nil); !ok {
		t.Fatal("expected first signal accepted")
	}
	d.ResetSymbol("BTC-PERP")

	// Immediately after reset, cooldown/change-threshold state is gone so an
	// identical signal value is accepted again.
	if _, ok := d.Filter(mustScore(t, 0.3, types.MEDIUM), md, nil); !ok {
		t.Fatal("expected signal accepted after reset")
	}
}
