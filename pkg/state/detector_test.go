package state

import (
	"testing"

	"auctioncore/pkg/market"
)

func flatLookback(price float64, n int) []market.Candle {
	candles := make([]market.Candle, n)
	for i := range candles {
		candles[i] = market.Candle{Close: price}
	}
	return candles
}

func TestDetectBalanceNearPOC(t *testing.T) {
	cfg := DefaultConfig()
	metrics := market.ProfileMetrics{POC: 100, VAH: 101, VAL: 99}
	flow := market.OrderFlowRow{BuyPressure: 50, SellPressure: 50}

	row := Detect(cfg, 100.05, metrics, flatLookback(100, 5), flow)

	if row.State != market.StateBalance {
		t.Fatalf("state = %v, want BALANCE", row.State)
	}
	if row.Confidence <= 0 {
		t.Fatalf("expected positive confidence, got %v", row.Confidence)
	}
}

func TestDetectImbalanceUpOnBreakout(t *testing.T) {
	cfg := DefaultConfig()
	metrics := market.ProfileMetrics{POC: 100, VAH: 101, VAL: 99}
	flow := market.OrderFlowRow{BuyPressure: 80, SellPressure: 20}

	lookback := []market.Candle{
		{Close: 100}, {Close: 101}, {Close: 102}, {Close: 103}, {Close: 105},
	}
	row := Detect(cfg, 105, metrics, lookback, flow)

	if row.State != market.StateImbalanceUp {
		t.Fatalf("state = %v, want IMBALANCE_UP", row.State)
	}
}

func TestDetectUnknownOnZeroPOC(t *testing.T) {
	cfg := DefaultConfig()
	row := Detect(cfg, 100, market.ProfileMetrics{}, nil, market.OrderFlowRow{})
	if row.State != market.StateUnknown || row.Confidence != 0 {
		t.Fatalf("expected UNKNOWN/0, got %v/%v", row.State, row.Confidence)
	}
}
