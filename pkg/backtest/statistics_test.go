package backtest

import (
	"testing"
	"time"

	"auctioncore/pkg/market"
	"auctioncore/pkg/stats"
)

func TestGenerateReportComputesTradeStats(t *testing.T) {
	s := NewStatistics(10000)
	now := time.Now()

	s.OnTrade(&Trade{Symbol: "ES", Side: market.SideBuy, Qty: 1, EntryTime: now, ExitTime: now, PNL: 100, Commission: 1})
	s.OnTrade(&Trade{Symbol: "ES", Side: market.SideBuy, Qty: 1, EntryTime: now, ExitTime: now, PNL: -40, Commission: 1})

	result := s.GenerateReport(10060)

	if result.TotalTrades != 2 {
		t.Fatalf("total trades = %d, want 2", result.TotalTrades)
	}
	if result.WinTrades != 1 || result.LossTrades != 1 {
		t.Fatalf("win/loss = %d/%d, want 1/1", result.WinTrades, result.LossTrades)
	}
	if result.TotalPNL != 60 {
		t.Fatalf("total pnl = %v, want 60", result.TotalPNL)
	}
	wantProfitFactor := 100.0 / 40.0
	if result.ProfitFactor != wantProfitFactor {
		t.Fatalf("profit factor = %v, want %v", result.ProfitFactor, wantProfitFactor)
	}
}

func TestMaxDrawdownTracksPeakToTrough(t *testing.T) {
	daily := []*DailyPNL{
		{Date: "2026-01-01", PNL: 100},
		{Date: "2026-01-02", PNL: -150},
		{Date: "2026-01-03", PNL: 20},
	}
	dd, _ := calculateMaxDrawdown(daily)
	if dd <= 0 {
		t.Fatalf("expected positive drawdown, got %v", dd)
	}
}

func TestStdDevOfConstantSeriesIsZero(t *testing.T) {
	if got := stats.StdDev([]float64{1, 1, 1}); got != 0 {
		t.Fatalf("stddev = %v, want 0", got)
	}
}
