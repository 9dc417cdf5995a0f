package strategy

import (
	"testing"

	"auctioncore/pkg/market"
)

func TestEvaluateEntrySignalNoGoOnBalance(t *testing.T) {
	cfg := Config{MinAggression: 70, ATRStopMult: 1.5, ATRTargetMult: 3.0}
	in := Input{
		State:        market.StateBalance,
		Confidence:   80,
		BuyPressure:  75,
		SellPressure: 25,
		CVDMomentum:  2000,
		Price:        100,
		ATR:          1,
	}

	_, ok := EvaluateEntrySignal(cfg, in)
	if ok {
		t.Fatal("expected no signal on BALANCE state")
	}
}

func TestEvaluateEntrySignalBuy(t *testing.T) {
	cfg := Config{MinAggression: 70, ATRStopMult: 1.5, ATRTargetMult: 3.0}
	in := Input{
		Symbol:       "ES",
		State:        market.StateImbalanceUp,
		BuyPressure:  75,
		SellPressure: 25,
		CVDMomentum:  1500,
		Price:        100,
		ATR:          2,
	}

	sig, ok := EvaluateEntrySignal(cfg, in)
	if !ok {
		t.Fatal("expected a signal")
	}
	if sig.Side != market.SideBuy {
		t.Fatalf("side = %v, want buy", sig.Side)
	}
	if sig.StopLoss != 97 {
		t.Fatalf("stop = %v, want 97", sig.StopLoss)
	}
	if sig.TakeProfit != 106 {
		t.Fatalf("target = %v, want 106", sig.TakeProfit)
	}
	if sig.AggressionScore < 70 {
		t.Fatalf("aggression score = %v, want >= 70", sig.AggressionScore)
	}
}

func TestEvaluateEntrySignalRejectsNonPositiveATR(t *testing.T) {
	cfg := Config{MinAggression: 70, ATRStopMult: 1.5, ATRTargetMult: 3.0}
	in := Input{
		State:        market.StateImbalanceUp,
		BuyPressure:  75,
		SellPressure: 25,
		CVDMomentum:  1500,
		Price:        100,
		ATR:          0,
	}
	if _, ok := EvaluateEntrySignal(cfg, in); ok {
		t.Fatal("expected no signal when ATR <= 0")
	}
}

func TestEvaluateEntrySignalPurity(t *testing.T) {
	cfg := Config{MinAggression: 70, ATRStopMult: 1.5, ATRTargetMult: 3.0}
	in := Input{
		Symbol: "ES", State: market.StateImbalanceUp,
		BuyPressure: 75, SellPressure: 25, CVDMomentum: 1500, Price: 100, ATR: 2,
	}
	a, okA := EvaluateEntrySignal(cfg, in)
	b, okB := EvaluateEntrySignal(cfg, in)
	if okA != okB || a != b {
		t.Fatalf("strategy is not pure: %v/%v vs %v/%v", a, okA, b, okB)
	}
}

func TestPositionSizeCapsByCash(t *testing.T) {
	qty := PositionSize(100000, 1, 3, 150, 100)
	if qty != 1 {
		t.Fatalf("qty = %v, want 1 (capped by cash)", qty)
	}
}

func TestEvaluateExitStopAndTarget(t *testing.T) {
	if r := EvaluateExit(market.SideBuy, 97, 106, 96, market.StateBalance, 50, 50); r != ExitStop {
		t.Fatalf("expected stop exit, got %v", r)
	}
	if r := EvaluateExit(market.SideBuy, 97, 106, 107, market.StateBalance, 50, 50); r != ExitTarget {
		t.Fatalf("expected target exit, got %v", r)
	}
}
