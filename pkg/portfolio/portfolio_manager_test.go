package portfolio

import (
	"testing"
	"time"

	"auctioncore/pkg/market"
)

func TestOpenAndCloseRoundTrip(t *testing.T) {
	m := NewManager(Config{MaxPositions: 5, MinAccountBalance: 0, MaxDailyLossPct: 50, InitialCapital: 100000})

	now := time.Now()
	pos, err := m.Open("ES", market.SideBuy, now, 100, 97, 106, 10, "signal", market.StateImbalanceUp, 80)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if pos.State != StateOpen {
		t.Fatalf("state = %v, want open", pos.State)
	}

	trade, err := m.Close("ES", now.Add(time.Minute), 106, "target")
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if trade.PnL != 60 {
		t.Fatalf("pnl = %v, want 60", trade.PnL)
	}
	if _, ok := m.Position("ES"); ok {
		t.Fatal("expected position to be cleared after close")
	}
}

func TestMaxPositionsGateBlocksSignal(t *testing.T) {
	m := NewManager(Config{MaxPositions: 1, MinAccountBalance: 0, MaxDailyLossPct: 50, InitialCapital: 100000})
	now := time.Now()

	if _, err := m.Open("ES", market.SideBuy, now, 100, 97, 106, 10, "s", market.StateImbalanceUp, 80); err != nil {
		t.Fatalf("first open should succeed: %v", err)
	}

	if _, err := m.Open("NQ", market.SideBuy, now, 100, 97, 106, 10, "s", market.StateImbalanceUp, 80); err == nil {
		t.Fatal("expected second open to be blocked by max positions")
	}

	_, blocked := m.SignalCounts()
	if blocked["NQ"] != 1 {
		t.Fatalf("blocked[NQ] = %v, want 1", blocked["NQ"])
	}
}

func TestDuplicatePositionBlocked(t *testing.T) {
	m := NewManager(Config{MaxPositions: 5, MinAccountBalance: 0, MaxDailyLossPct: 50, InitialCapital: 100000})
	now := time.Now()

	if _, err := m.Open("ES", market.SideBuy, now, 100, 97, 106, 10, "s", market.StateImbalanceUp, 80); err != nil {
		t.Fatalf("first open should succeed: %v", err)
	}
	if _, err := m.Open("ES", market.SideBuy, now, 101, 98, 107, 10, "s", market.StateImbalanceUp, 80); err == nil {
		t.Fatal("expected duplicate-symbol open to be blocked")
	}
}

func TestDailyLossGateBlocks(t *testing.T) {
	m := NewManager(Config{MaxPositions: 5, MinAccountBalance: 0, MaxDailyLossPct: 1, InitialCapital: 1000})
	m.dailyStartEquity = 1000
	m.equity = 980 // -2% daily, exceeds 1% limit

	ok, reason := m.CanOpen("ES")
	if ok {
		t.Fatalf("expected gate to block, got ok with reason %q", reason)
	}
}

func TestMAEAndMFETrack(t *testing.T) {
	m := NewManager(Config{MaxPositions: 5, MinAccountBalance: 0, MaxDailyLossPct: 50, InitialCapital: 100000})
	now := time.Now()
	m.Open("ES", market.SideBuy, now, 100, 95, 110, 10, "s", market.StateImbalanceUp, 80)

	m.UpdateOpenPosition("ES", 103, 98)
	pos, _ := m.Position("ES")
	if pos.MFE != 3 {
		t.Fatalf("mfe = %v, want 3", pos.MFE)
	}
	if pos.MAE != -2 {
		t.Fatalf("mae = %v, want -2", pos.MAE)
	}
	if pos.BarsHeld != 1 {
		t.Fatalf("bars held = %v, want 1", pos.BarsHeld)
	}
}
