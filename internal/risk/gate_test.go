package risk

import (
	"testing"
	"time"
)

func allLimits() Limits {
	return Limits{
		MaxPositionNotional: 1000,
		MaxExposurePct:      2,
		MaxTradesPerDay:     10,
	}
}

func TestEvaluateAllowsWithinLimits(t *testing.T) {
	g := NewGate(allLimits())

	dec := g.Evaluate(Check{
		Symbol: "BTCUSDT", Qty: 0.01, Price: 50000, // 500 notional
		OpenExposure: 0, AccountValue: 100000, // 2% = 2000 allowed
	})
	if !dec.Allowed {
		t.Fatalf("expected allowed, got violations: %v", dec.Violations)
	}
}

func TestEvaluateRejectsOversizedOrder(t *testing.T) {
	g := NewGate(allLimits())

	// 1500 USDT notional against a 1000 limit.
	dec := g.Evaluate(Check{
		Symbol: "BTCUSDT", Qty: 0.03, Price: 50000,
		AccountValue: 1000000,
	})
	if dec.Allowed {
		t.Fatal("expected rejection")
	}
	if len(dec.Violations) != 1 || dec.Violations[0].Rule != RuleMaxPositionSize {
		t.Errorf("violations = %v, want only %s", dec.Violations, RuleMaxPositionSize)
	}
}

func TestEvaluateRejectsExposureBreach(t *testing.T) {
	g := NewGate(allLimits())

	// 2% of 10000 = 200 allowed; open 150 + new 100 = 250.
	dec := g.Evaluate(Check{
		Symbol: "ETHUSDT", Qty: 0.05, Price: 2000,
		OpenExposure: 150, AccountValue: 10000,
	})
	if dec.Allowed {
		t.Fatal("expected rejection")
	}
	if dec.Violations[0].Rule != RuleExposureLimit {
		t.Errorf("rule = %s, want %s", dec.Violations[0].Rule, RuleExposureLimit)
	}
}

func TestEvaluateReportsAllViolations(t *testing.T) {
	g := NewGate(Limits{MaxPositionNotional: 100, MaxExposurePct: 1, MaxTradesPerDay: 1})
	g.RecordTrade()

	dec := g.Evaluate(Check{
		Symbol: "BTCUSDT", Qty: 1, Price: 50000,
		OpenExposure: 0, AccountValue: 1000,
	})
	if dec.Allowed {
		t.Fatal("expected rejection")
	}
	if len(dec.Violations) != 3 {
		t.Fatalf("expected all 3 rules to report, got %v", dec.Violations)
	}
	want := map[string]bool{RuleMaxPositionSize: true, RuleExposureLimit: true, RuleDailyTradeLimit: true}
	for _, v := range dec.Violations {
		if !want[v.Rule] {
			t.Errorf("unexpected rule %s", v.Rule)
		}
		delete(want, v.Rule)
	}
}

func TestDailyTradeLimit(t *testing.T) {
	g := NewGate(Limits{MaxTradesPerDay: 3})

	check := Check{Symbol: "BTCUSDT", Qty: 0.001, Price: 50000, AccountValue: 100000}
	for i := 0; i < 3; i++ {
		if dec := g.Evaluate(check); !dec.Allowed {
			t.Fatalf("trade %d should be allowed: %v", i+1, dec.Violations)
		}
		g.RecordTrade()
	}

	// Trade N+1 must be rejected.
	dec := g.Evaluate(check)
	if dec.Allowed {
		t.Fatal("expected rejection after limit reached")
	}
	if dec.Violations[0].Rule != RuleDailyTradeLimit {
		t.Errorf("rule = %s, want %s", dec.Violations[0].Rule, RuleDailyTradeLimit)
	}
}

func TestDailyCounterResetsAtUTCMidnight(t *testing.T) {
	g := NewGate(Limits{MaxTradesPerDay: 1})

	current := time.Date(2026, 8, 25, 23, 59, 0, 0, time.UTC)
	g.now = func() time.Time { return current }

	g.RecordTrade()
	if dec := g.Evaluate(Check{Qty: 1, Price: 1}); dec.Allowed {
		t.Fatal("expected rejection before midnight")
	}

	current = time.Date(2026, 8, 26, 0, 1, 0, 0, time.UTC)
	if dec := g.Evaluate(Check{Qty: 1, Price: 1}); !dec.Allowed {
		t.Fatalf("expected fresh allowance after UTC midnight, got %v", dec.Violations)
	}
	if g.TradesToday() != 0 {
		t.Errorf("counter = %d, want 0 after reset", g.TradesToday())
	}
}

func TestSeedDailyCount(t *testing.T) {
	g := NewGate(Limits{MaxTradesPerDay: 5})
	fixed := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	g.SeedDailyCount("2026-08-25", 4)
	if g.TradesToday() != 4 {
		t.Errorf("seeded count = %d, want 4", g.TradesToday())
	}

	// A stale seed for another day is ignored.
	g2 := NewGate(Limits{MaxTradesPerDay: 5})
	g2.now = func() time.Time { return fixed }
	g2.SeedDailyCount("2026-08-24", 4)
	if g2.TradesToday() != 0 {
		t.Errorf("stale seed applied: count = %d, want 0", g2.TradesToday())
	}
}

func TestZeroLimitsDisableRules(t *testing.T) {
	g := NewGate(Limits{})

	dec := g.Evaluate(Check{Symbol: "BTCUSDT", Qty: 100, Price: 50000})
	if !dec.Allowed {
		t.Fatalf("zero limits must disable all rules, got %v", dec.Violations)
	}
}
