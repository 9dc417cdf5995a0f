package backtest

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"auctioncore/pkg/stats"
)

// Statistics accumulates closed trades and equity snapshots over a
// replay run and derives the performance report at the end.
type Statistics struct {
	initialCash float64
	trades      []*Trade
	dailyPNL    map[string]*DailyPNL
	startTime   time.Time
	result      *BacktestResult
}

// NewStatistics creates a statistics collector seeded with the run's
// starting capital.
func NewStatistics(initialCash float64) *Statistics {
	return &Statistics{
		initialCash: initialCash,
		trades:      make([]*Trade, 0, 256),
		dailyPNL:    make(map[string]*DailyPNL),
		startTime:   time.Now(),
	}
}

// OnTrade records one closed trade; PNL, bars held, MAE, and MFE are
// computed by the replay driver before the trade is handed here.
func (s *Statistics) OnTrade(t *Trade) {
	s.trades = append(s.trades, t)

	dateKey := t.ExitTime.Format("2006-01-02")
	daily, exists := s.dailyPNL[dateKey]
	if !exists {
		daily = &DailyPNL{Date: dateKey}
		s.dailyPNL[dateKey] = daily
	}
	daily.PNL += t.PNL
	daily.TradeCount++
	daily.Volume += float64(t.Qty)
}

// GenerateReport computes the full performance report from every
// trade and daily PNL bucket recorded so far.
func (s *Statistics) GenerateReport(finalCash float64) *BacktestResult {
	endTime := time.Now()

	result := &BacktestResult{
		StartTime:   s.startTime,
		EndTime:     endTime,
		Duration:    endTime.Sub(s.startTime),
		InitialCash: s.initialCash,
		FinalCash:   finalCash,
		Trades:      s.trades,
	}

	dailySlice := make([]*DailyPNL, 0, len(s.dailyPNL))
	for _, daily := range s.dailyPNL {
		dailySlice = append(dailySlice, daily)
	}
	sort.Slice(dailySlice, func(i, j int) bool { return dailySlice[i].Date < dailySlice[j].Date })

	cumPNL := 0.0
	for _, daily := range dailySlice {
		cumPNL += daily.PNL
		daily.Return = daily.PNL / result.InitialCash
		if cumPNL > daily.MaxPNL {
			daily.MaxPNL = cumPNL
		}
		if cumPNL < daily.MinPNL || daily.MinPNL == 0 {
			daily.MinPNL = cumPNL
		}
	}
	result.DailyPNL = dailySlice

	result.TotalPNL = result.FinalCash - result.InitialCash
	result.TotalReturn = result.TotalPNL / result.InitialCash
	result.TotalTrades = len(s.trades)

	calculateTradeStats(result)
	calculatePerformanceMetrics(result)

	s.result = result
	return result
}

func calculateTradeStats(result *BacktestResult) {
	if len(result.Trades) == 0 {
		return
	}

	var totalWin, totalLoss float64
	var totalSize int64
	var maxWin, maxLoss float64

	for _, trade := range result.Trades {
		totalSize += trade.Qty
		result.TotalCommission += trade.Commission

		if trade.PNL > 0 {
			result.WinTrades++
			totalWin += trade.PNL
			if trade.PNL > maxWin {
				maxWin = trade.PNL
			}
		} else if trade.PNL < 0 {
			result.LossTrades++
			totalLoss += -trade.PNL
			if trade.PNL < maxLoss {
				maxLoss = trade.PNL
			}
		}
	}

	result.WinRate = float64(result.WinTrades) / float64(result.TotalTrades)
	if result.WinTrades > 0 {
		result.AvgWin = totalWin / float64(result.WinTrades)
	}
	if result.LossTrades > 0 {
		result.AvgLoss = totalLoss / float64(result.LossTrades)
	}
	result.MaxWin = maxWin
	result.MaxLoss = maxLoss
	result.AvgTradeSize = float64(totalSize) / float64(result.TotalTrades)
	if totalLoss > 0 {
		result.ProfitFactor = totalWin / totalLoss
	}
}

func calculatePerformanceMetrics(result *BacktestResult) {
	if len(result.DailyPNL) == 0 {
		return
	}

	returns := make([]float64, len(result.DailyPNL))
	for i, daily := range result.DailyPNL {
		returns[i] = daily.Return
	}

	result.AverageDailyReturn = stats.Mean(returns)
	result.AverageDailyVolatility = stats.StdDev(returns)

	tradingDays := float64(len(result.DailyPNL))
	if tradingDays > 0 {
		result.AnnualizedReturn = result.TotalReturn * (252.0 / tradingDays)
	}

	tradeReturns := make([]float64, 0, len(result.Trades))
	for _, t := range result.Trades {
		if t.EntryPrice > 0 && t.Qty > 0 {
			tradeReturns = append(tradeReturns, t.PNL/(t.EntryPrice*float64(t.Qty)))
		}
	}
	if tradeStdDev := stats.StdDev(tradeReturns); tradeStdDev > 0 {
		result.SharpeRatio = stats.Mean(tradeReturns) / tradeStdDev * math.Sqrt(252)
	}

	var downsideReturns []float64
	for _, ret := range returns {
		if ret < 0 {
			downsideReturns = append(downsideReturns, ret)
		}
	}
	if len(downsideReturns) > 0 {
		downsideStdDev := stats.StdDev(downsideReturns)
		if downsideStdDev > 0 {
			result.SortinoRatio = result.AverageDailyReturn / downsideStdDev * math.Sqrt(252)
		}
	}

	result.MaxDrawdown, result.MaxDrawdownDuration = calculateMaxDrawdown(result.DailyPNL)
	if result.MaxDrawdown > 0 {
		result.CalmarRatio = result.AnnualizedReturn / result.MaxDrawdown
	}
}

func calculateMaxDrawdown(dailyPNL []*DailyPNL) (float64, time.Duration) {
	if len(dailyPNL) == 0 {
		return 0, 0
	}

	var maxDrawdown float64
	var maxDrawdownDuration time.Duration
	var peak float64
	var peakTime time.Time

	cumPNL := 0.0
	for _, daily := range dailyPNL {
		cumPNL += daily.PNL

		if cumPNL > peak {
			peak = cumPNL
			peakTime, _ = time.Parse("2006-01-02", daily.Date)
		}

		if peak > 0 {
			drawdown := (peak - cumPNL) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
				currentTime, _ := time.Parse("2006-01-02", daily.Date)
				maxDrawdownDuration = currentTime.Sub(peakTime)
			}
		}
	}

	return maxDrawdown, maxDrawdownDuration
}

// GetResult returns the current result, generating it if needed.
func (s *Statistics) GetResult() *BacktestResult {
	if s.result == nil {
		return s.GenerateReport(s.initialCash)
	}
	return s.result
}

// PrintSummary writes a human-readable report to stdout.
func (s *Statistics) PrintSummary() {
	if s.result == nil {
		s.GenerateReport(s.initialCash)
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("BACKTEST SUMMARY")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\nPeriod: %s to %s (%.0f days)\n",
		s.result.StartTime.Format("2006-01-02"),
		s.result.EndTime.Format("2006-01-02"),
		s.result.Duration.Hours()/24)

	fmt.Printf("\nInitial Capital: %.2f\n", s.result.InitialCash)
	fmt.Printf("Final Capital:   %.2f\n", s.result.FinalCash)
	fmt.Printf("Total PNL:       %.2f (%.2f%%)\n", s.result.TotalPNL, s.result.TotalReturn*100)

	fmt.Printf("\nPerformance Metrics:\n")
	fmt.Printf("  Sharpe Ratio:      %.2f\n", s.result.SharpeRatio)
	fmt.Printf("  Sortino Ratio:     %.2f\n", s.result.SortinoRatio)
	fmt.Printf("  Max Drawdown:      %.2f%%\n", s.result.MaxDrawdown*100)
	fmt.Printf("  Calmar Ratio:      %.2f\n", s.result.CalmarRatio)

	fmt.Printf("\nTrade Statistics:\n")
	fmt.Printf("  Total Trades:      %d\n", s.result.TotalTrades)
	fmt.Printf("  Win Trades:        %d (%.1f%%)\n", s.result.WinTrades, s.result.WinRate*100)
	fmt.Printf("  Loss Trades:       %d\n", s.result.LossTrades)
	fmt.Printf("  Profit Factor:     %.2f\n", s.result.ProfitFactor)
	fmt.Printf("  Avg Win:           %.2f\n", s.result.AvgWin)
	fmt.Printf("  Avg Loss:          %.2f\n", s.result.AvgLoss)
	fmt.Printf("  Total Commission:  %.2f\n", s.result.TotalCommission)

	fmt.Println(strings.Repeat("=", 60))
}
