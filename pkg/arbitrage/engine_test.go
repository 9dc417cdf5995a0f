package arbitrage

import (
	"testing"
	"time"
)

func TestEvaluateMatchesWorkedExample(t *testing.T) {
	cfg := DefaultConfig()
	price := Evaluate(cfg, "ELECTION-2026", Quote{Bid: 0.47, Ask: 0.49}, Quote{Bid: 0.46, Ask: 0.48}, time.Now())

	if abs(price.Spread-0.97) > 1e-9 {
		t.Fatalf("spread = %v, want 0.97", price.Spread)
	}
	if !price.ArbitrageFlag {
		t.Fatal("expected arbitrage flag set for spread 0.97 < 0.995")
	}
	if abs(price.EstimatedProfitPct-3.09) > 0.01 {
		t.Fatalf("profit pct = %v, want ~3.09", price.EstimatedProfitPct)
	}
}

func TestEvaluateNoArbitrageAboveThreshold(t *testing.T) {
	cfg := DefaultConfig()
	price := Evaluate(cfg, "X", Quote{Bid: 0.50, Ask: 0.51}, Quote{Bid: 0.49, Ask: 0.50}, time.Now())
	if price.ArbitrageFlag {
		t.Fatalf("spread %v should not flag arbitrage (threshold %v)", price.Spread, cfg.SpreadThreshold)
	}
}

func TestEligibleForEntryRejectsExistingPosition(t *testing.T) {
	cfg := DefaultConfig()
	price := BinaryPrice{ArbitrageFlag: true, EstimatedProfitPct: 5}
	if EligibleForEntry(cfg, price, true) {
		t.Fatal("expected entry rejected when a position already exists for the market")
	}
}

func TestEligibleForEntryRejectsBelowMinProfit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinProfitPct = 2.0
	price := BinaryPrice{ArbitrageFlag: true, EstimatedProfitPct: 1.0}
	if EligibleForEntry(cfg, price, false) {
		t.Fatal("expected entry rejected below min_profit_pct")
	}
}

func TestEvaluateExitLockProfit(t *testing.T) {
	if got := EvaluateExit(1.00, 48*time.Hour); got != ExitLockProfit {
		t.Fatalf("exit reason = %v, want lock_profit", got)
	}
}

func TestEvaluateExitBonus(t *testing.T) {
	if got := EvaluateExit(1.03, 48*time.Hour); got != ExitBonus {
		t.Fatalf("exit reason = %v, want bonus", got)
	}
}

func TestEvaluateExitNearResolution(t *testing.T) {
	if got := EvaluateExit(0.995, 12*time.Hour); got != ExitNearResolution {
		t.Fatalf("exit reason = %v, want near_resolution", got)
	}
}

func TestEvaluateExitNoneWhenFarFromAllRules(t *testing.T) {
	if got := EvaluateExit(0.97, 72*time.Hour); got != ExitNone {
		t.Fatalf("exit reason = %v, want none", got)
	}
}

func TestUnwindSidePartialFill(t *testing.T) {
	symbol, mustClose := UnwindSide(LegFillReport{YesFilled: true, NoFilled: false})
	if symbol != "yes" || !mustClose {
		t.Fatalf("expected yes leg to require unwinding, got symbol=%v mustClose=%v", symbol, mustClose)
	}
}

func TestUnwindSideBothFilledNoop(t *testing.T) {
	_, mustClose := UnwindSide(LegFillReport{YesFilled: true, NoFilled: true})
	if mustClose {
		t.Fatal("expected no unwind needed when both legs filled")
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
