package profile

import (
	"testing"
	"time"

	"auctioncore/pkg/market"
)

func TestComputeFromCandlesPOC(t *testing.T) {
	bucket := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	candles := []market.Candle{
		{Time: bucket, Symbol: "ES", Open: 100, High: 102, Low: 100, Close: 101, Volume: 100},
		{Time: bucket, Symbol: "ES", Open: 101, High: 103, Low: 101, Close: 102, Volume: 300},
		{Time: bucket, Symbol: "ES", Open: 100, High: 101, Low: 100, Close: 100, Volume: 50},
	}

	res := Compute(bucket, "ES", nil, candles)

	if res.Metrics.TotalVolume != 450 {
		t.Fatalf("total volume = %v, want 450", res.Metrics.TotalVolume)
	}
	if res.Metrics.POC < 101 || res.Metrics.POC > 102 {
		t.Fatalf("POC = %v, want in [101,102]", res.Metrics.POC)
	}
	if res.Metrics.VAL > 100 {
		t.Fatalf("VAL = %v, want <= 100", res.Metrics.VAL)
	}
	if res.Metrics.VAH < 102 {
		t.Fatalf("VAH = %v, want >= 102", res.Metrics.VAH)
	}
	if !(res.Metrics.VAL <= res.Metrics.POC && res.Metrics.POC <= res.Metrics.VAH) {
		t.Fatalf("value area invariant violated: VAL=%v POC=%v VAH=%v", res.Metrics.VAL, res.Metrics.POC, res.Metrics.VAH)
	}
}

func TestComputeFromTicksUptickRule(t *testing.T) {
	bucket := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	ticks := []market.Tick{
		{Time: bucket.Add(0), Symbol: "ES", Price: 100, Size: 10},
		{Time: bucket.Add(1 * time.Second), Symbol: "ES", Price: 101, Size: 20},
		{Time: bucket.Add(2 * time.Second), Symbol: "ES", Price: 101, Size: 5},
		{Time: bucket.Add(3 * time.Second), Symbol: "ES", Price: 100, Size: 15},
		{Time: bucket.Add(4 * time.Second), Symbol: "ES", Price: 102, Size: 8},
	}

	res := Compute(bucket, "ES", ticks, nil)

	var buy, sell float64
	for _, r := range res.Rows {
		buy += r.BuyVol
		sell += r.SellVol
	}
	if buy != 35 {
		t.Fatalf("buy = %v, want 35", buy)
	}
	if sell != 23 {
		t.Fatalf("sell = %v, want 23", sell)
	}
}

func TestValueAreaInvariantHolds(t *testing.T) {
	bucket := time.Now()
	candles := []market.Candle{
		{Symbol: "NQ", Open: 10, High: 20, Low: 10, Close: 18, Volume: 1000},
	}
	res := Compute(bucket, "NQ", nil, candles)
	if res.Metrics.TotalVolume == 0 {
		t.Fatal("expected nonzero total volume")
	}
	var sumInArea float64
	for _, r := range res.Rows {
		if r.PriceLevel >= res.Metrics.VAL && r.PriceLevel <= res.Metrics.VAH {
			sumInArea += r.TotalVol
		}
	}
	if sumInArea < 0.70*res.Metrics.TotalVolume-1e-6 {
		t.Fatalf("value area volume %v below 70%% of %v", sumInArea, res.Metrics.TotalVolume)
	}
}
