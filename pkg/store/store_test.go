package store

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"auctioncore/pkg/market"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertCandleIdempotent(t *testing.T) {
	s := openTestStore(t)
	ts := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	c := market.Candle{Time: ts, Symbol: "ES", Open: 100, High: 105, Low: 99, Close: 103, Volume: 1000}
	if err := s.UpsertCandle(c); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	c.Close = 104
	if err := s.UpsertCandle(c); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	got, err := s.GetCandles("ES", ts.Add(-time.Hour), ts.Add(time.Hour))
	if err != nil {
		t.Fatalf("get candles: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candle after idempotent upsert, got %d", len(got))
	}
	if got[0].Close != 104 {
		t.Fatalf("close = %v, want 104 (latest write should win)", got[0].Close)
	}
}

func TestUpsertTickDoesNotOverwrite(t *testing.T) {
	s := openTestStore(t)
	ts := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	tk := market.Tick{Time: ts, Symbol: "ES", Price: 100, Size: 5, Venue: "CME"}
	if err := s.UpsertTick(tk); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	tk.Size = 999
	if err := s.UpsertTick(tk); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	got, err := s.GetTicks("ES", ts.Add(-time.Hour), ts.Add(time.Hour))
	if err != nil {
		t.Fatalf("get ticks: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 tick, got %d", len(got))
	}
	if got[0].Size != 5 {
		t.Fatalf("size = %v, want 5 (duplicate insert should be ignored)", got[0].Size)
	}
}

func TestGetLastCVDEmptyHistoryReturnsZero(t *testing.T) {
	s := openTestStore(t)
	cvd, err := s.GetLastCVD("ES", time.Now())
	if err != nil {
		t.Fatalf("get last cvd: %v", err)
	}
	if cvd != 0 {
		t.Fatalf("cvd = %v, want 0 on empty history", cvd)
	}
}

func TestGetLastCVDReturnsMostRecentBeforeBucket(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	rows := []market.OrderFlowRow{
		{Bucket: base, Symbol: "ES", CumulativeDelta: 10},
		{Bucket: base.Add(time.Minute), Symbol: "ES", CumulativeDelta: 25},
		{Bucket: base.Add(2 * time.Minute), Symbol: "ES", CumulativeDelta: 40},
	}
	for _, r := range rows {
		if err := s.InsertOrderFlowRow(r); err != nil {
			t.Fatalf("insert order flow row: %v", err)
		}
	}

	cvd, err := s.GetLastCVD("ES", base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("get last cvd: %v", err)
	}
	if cvd != 25 {
		t.Fatalf("cvd = %v, want 25 (last row strictly before bucket)", cvd)
	}
}

func TestProfileMetricsRoundTripPreservesLVNHVN(t *testing.T) {
	s := openTestStore(t)
	bucket := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	m := market.ProfileMetrics{
		Bucket: bucket, Symbol: "ES", POC: 100.5, VAH: 102, VAL: 99,
		TotalVolume: 5000, LVNs: []float64{98, 104}, HVNs: []float64{100.5, 100.25},
	}
	if err := s.UpsertProfileMetrics(m); err != nil {
		t.Fatalf("upsert metrics: %v", err)
	}

	got, ok, err := s.GetProfileMetrics("ES", bucket)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	if !ok {
		t.Fatal("expected metrics row to be found")
	}
	if got.POC != 100.5 || len(got.LVNs) != 2 || len(got.HVNs) != 2 {
		t.Fatalf("round-tripped metrics mismatch: %+v", got)
	}
}

func TestAppendTradesBatch(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	trades := []Trade{
		{Symbol: "ES", EntryTime: now, EntryPrice: 100, Qty: 1, Side: market.SideBuy, ExitTime: now, ExitPrice: 105, PNL: 5},
		{Symbol: "NQ", EntryTime: now, EntryPrice: 200, Qty: 1, Side: market.SideSell, ExitTime: now, ExitPrice: 190, PNL: 10},
	}
	if err := s.AppendTrades(trades); err != nil {
		t.Fatalf("append trades: %v", err)
	}
}
