package orderflow

import (
	"testing"
	"time"

	"auctioncore/pkg/market"
)

func zeroCVD(string, time.Time) float64 { return 0 }

func TestComputeDeltaAndPressure(t *testing.T) {
	bucket := time.Now()
	rows := []market.VolumeProfileRow{
		{PriceLevel: 100, BuyVol: 35, SellVol: 23},
	}

	row := Compute(bucket, "ES", rows, zeroCVD)

	if row.Delta != 12 {
		t.Fatalf("delta = %v, want 12", row.Delta)
	}
	if row.AggressiveBuys != 35 || row.AggressiveSells != 23 {
		t.Fatalf("unexpected aggressive totals: %+v", row)
	}
	if row.CumulativeDelta != 12 {
		t.Fatalf("cumulative delta = %v, want 12", row.CumulativeDelta)
	}
}

func TestComputeEmptyBucketDefaults(t *testing.T) {
	bucket := time.Now()
	lookup := func(string, time.Time) float64 { return 7 }

	row := Compute(bucket, "ES", nil, lookup)

	if row.Delta != 0 || row.AggressiveBuys != 0 || row.AggressiveSells != 0 {
		t.Fatalf("expected zeroed flow on empty bucket, got %+v", row)
	}
	if row.BuyPressure != 50.0 || row.SellPressure != 50.0 {
		t.Fatalf("expected 50/50 pressure on empty bucket, got %+v", row)
	}
	if row.CumulativeDelta != 7 {
		t.Fatalf("expected carried-forward CVD of 7, got %v", row.CumulativeDelta)
	}
}

func TestCumulativeDeltaChaining(t *testing.T) {
	bucket := time.Now()
	rows1 := []market.VolumeProfileRow{{BuyVol: 10, SellVol: 4}}
	row1 := Compute(bucket, "ES", rows1, zeroCVD)
	if row1.CumulativeDelta != 6 {
		t.Fatalf("row1 cvd = %v, want 6", row1.CumulativeDelta)
	}

	lookupFromRow1 := func(string, time.Time) float64 { return row1.CumulativeDelta }
	rows2 := []market.VolumeProfileRow{{BuyVol: 2, SellVol: 5}}
	row2 := Compute(bucket.Add(time.Minute), "ES", rows2, lookupFromRow1)
	if row2.CumulativeDelta != row1.CumulativeDelta+row2.Delta {
		t.Fatalf("cumulative delta chain broken: %v vs %v+%v", row2.CumulativeDelta, row1.CumulativeDelta, row2.Delta)
	}
}
