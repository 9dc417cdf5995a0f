package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReportGenerator renders a completed BacktestResult to disk in the
// format requested by the CLI's --export flag.
type ReportGenerator struct {
	run    RunConfig
	result *BacktestResult
}

// NewReportGenerator creates a generator for one run's result.
func NewReportGenerator(run RunConfig, result *BacktestResult) *ReportGenerator {
	return &ReportGenerator{run: run, result: result}
}

// GenerateMarkdown writes the full performance report to path.
func (g *ReportGenerator) GenerateMarkdown(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer file.Close()
	g.writeMarkdownReport(file)
	return nil
}

func (g *ReportGenerator) writeMarkdownReport(file *os.File) {
	fmt.Fprintf(file, "# 回测报告\n\n")
	fmt.Fprintf(file, "**模式**: %s\n", g.run.Mode)
	fmt.Fprintf(file, "**日期**: %s 至 %s\n", g.run.Start.Format("2006-01-02"), g.run.End.Format("2006-01-02"))
	fmt.Fprintf(file, "**品种**: %v\n", g.run.Symbols)
	fmt.Fprintf(file, "**初始资金**: %.2f\n", g.result.InitialCash)
	fmt.Fprintf(file, "**最终资金**: %.2f\n\n", g.result.FinalCash)
	fmt.Fprintf(file, "---\n\n")

	fmt.Fprintf(file, "## 绩效摘要\n\n")
	fmt.Fprintf(file, "| 指标 | 数值 |\n")
	fmt.Fprintf(file, "|------|------|\n")
	fmt.Fprintf(file, "| **总收益** | %.2f |\n", g.result.TotalPNL)
	fmt.Fprintf(file, "| **总收益率** | %.2f%% |\n", g.result.TotalReturn*100)
	fmt.Fprintf(file, "| **年化收益率** | %.2f%% |\n", g.result.AnnualizedReturn*100)
	fmt.Fprintf(file, "| **Sharpe Ratio** | %.2f |\n", g.result.SharpeRatio)
	fmt.Fprintf(file, "| **Sortino Ratio** | %.2f |\n", g.result.SortinoRatio)
	fmt.Fprintf(file, "| **最大回撤** | %.2f%% |\n", g.result.MaxDrawdown*100)
	fmt.Fprintf(file, "| **最大回撤持续期** | %s |\n", g.result.MaxDrawdownDuration.String())
	fmt.Fprintf(file, "| **胜率** | %.2f%% |\n", g.result.WinRate*100)
	fmt.Fprintf(file, "| **盈利因子** | %.2f |\n", g.result.ProfitFactor)
	fmt.Fprintf(file, "| **Calmar Ratio** | %.2f |\n\n", g.result.CalmarRatio)

	fmt.Fprintf(file, "## 交易统计\n\n")
	fmt.Fprintf(file, "| 指标 | 数值 |\n")
	fmt.Fprintf(file, "|------|------|\n")
	fmt.Fprintf(file, "| **总交易次数** | %d |\n", g.result.TotalTrades)
	fmt.Fprintf(file, "| **盈利交易** | %d |\n", g.result.WinTrades)
	fmt.Fprintf(file, "| **亏损交易** | %d |\n", g.result.LossTrades)
	fmt.Fprintf(file, "| **平均盈利** | %.2f |\n", g.result.AvgWin)
	fmt.Fprintf(file, "| **平均亏损** | %.2f |\n", g.result.AvgLoss)
	fmt.Fprintf(file, "| **最大单笔盈利** | %.2f |\n", g.result.MaxWin)
	fmt.Fprintf(file, "| **最大单笔亏损** | %.2f |\n", g.result.MaxLoss)
	fmt.Fprintf(file, "| **平均持仓手数** | %.1f |\n", g.result.AvgTradeSize)
	fmt.Fprintf(file, "| **总手续费** | %.2f |\n\n", g.result.TotalCommission)

	if len(g.result.DailyPNL) > 0 {
		fmt.Fprintf(file, "## 每日PNL（前10天）\n\n")
		fmt.Fprintf(file, "| 日期 | PNL | 收益率 | 交易次数 | 成交量 |\n")
		fmt.Fprintf(file, "|------|-----|--------|---------|-------|\n")

		limit := 10
		if len(g.result.DailyPNL) < limit {
			limit = len(g.result.DailyPNL)
		}
		for i := 0; i < limit; i++ {
			daily := g.result.DailyPNL[i]
			fmt.Fprintf(file, "| %s | %.2f | %.2f%% | %d | %.0f |\n",
				daily.Date, daily.PNL, daily.Return*100, daily.TradeCount, daily.Volume)
		}
		fmt.Fprintf(file, "\n")
		if len(g.result.DailyPNL) > limit {
			fmt.Fprintf(file, "*...共 %d 天，仅显示前 %d 天*\n\n", len(g.result.DailyPNL), limit)
		}
	}

	if len(g.result.SignalsGenerated) > 0 || len(g.result.SignalsBlocked) > 0 {
		fmt.Fprintf(file, "## 信号统计\n\n")
		fmt.Fprintf(file, "| 品种 | 已开仓 | 被拦截 |\n")
		fmt.Fprintf(file, "|------|-------|-------|\n")
		for _, sym := range g.run.Symbols {
			fmt.Fprintf(file, "| %s | %d | %d |\n", sym, g.result.SignalsGenerated[sym], g.result.SignalsBlocked[sym])
		}
		fmt.Fprintf(file, "\n")
	}

	fmt.Fprintf(file, "## 风险分析\n\n")
	fmt.Fprintf(file, "- **Sharpe Ratio**: %.2f %s\n", g.result.SharpeRatio, evaluateSharpe(g.result.SharpeRatio))
	fmt.Fprintf(file, "- **Sortino Ratio**: %.2f %s\n", g.result.SortinoRatio, evaluateSortino(g.result.SortinoRatio))
	fmt.Fprintf(file, "- **最大回撤**: %.2f%% %s\n", g.result.MaxDrawdown*100, evaluateDrawdown(g.result.MaxDrawdown))
	fmt.Fprintf(file, "- **日均波动率**: %.2f%%\n", g.result.AverageDailyVolatility*100)
	fmt.Fprintf(file, "- **盈利因子**: %.2f %s\n\n", g.result.ProfitFactor, evaluateProfitFactor(g.result.ProfitFactor))

	fmt.Fprintf(file, "## 配置信息\n\n")
	fmt.Fprintf(file, "- **手续费率**: %.4f%%\n", g.run.EffectiveCommissionRate()*100)
	fmt.Fprintf(file, "- **滑点**: %.1f bps\n\n", g.run.EffectiveSlippageBps())

	fmt.Fprintf(file, "---\n\n")
	fmt.Fprintf(file, "**回测耗时**: %v\n", g.result.Duration)
}

// GenerateJSON writes the full result struct as JSON to path.
func (g *ReportGenerator) GenerateJSON(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(g.result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write JSON file: %w", err)
	}
	return nil
}

// SaveTradesCSV writes the closed-trade log as CSV to path.
func (g *ReportGenerator) SaveTradesCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trades file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	writer.Write([]string{
		"Symbol", "Side", "EntryTime", "EntryPrice", "ExitTime", "ExitPrice",
		"Qty", "ExitReason", "PNL", "Commission", "BarsHeld", "MAE", "MFE",
	})
	for _, t := range g.result.Trades {
		writer.Write([]string{
			t.Symbol,
			string(t.Side),
			t.EntryTime.Format(time.RFC3339),
			fmt.Sprintf("%.4f", t.EntryPrice),
			t.ExitTime.Format(time.RFC3339),
			fmt.Sprintf("%.4f", t.ExitPrice),
			fmt.Sprintf("%d", t.Qty),
			t.ExitReason,
			fmt.Sprintf("%.2f", t.PNL),
			fmt.Sprintf("%.2f", t.Commission),
			fmt.Sprintf("%d", t.BarsHeld),
			fmt.Sprintf("%.4f", t.MAE),
			fmt.Sprintf("%.4f", t.MFE),
		})
	}
	return nil
}

// SaveDailyPNLCSV writes the daily PNL table as CSV to path.
func (g *ReportGenerator) SaveDailyPNLCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create daily PNL file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	writer.Write([]string{"Date", "PNL", "Return", "MaxPNL", "MinPNL", "TradeCount", "Volume"})
	for _, daily := range g.result.DailyPNL {
		writer.Write([]string{
			daily.Date,
			fmt.Sprintf("%.2f", daily.PNL),
			fmt.Sprintf("%.4f", daily.Return),
			fmt.Sprintf("%.2f", daily.MaxPNL),
			fmt.Sprintf("%.2f", daily.MinPNL),
			fmt.Sprintf("%d", daily.TradeCount),
			fmt.Sprintf("%.0f", daily.Volume),
		})
	}
	return nil
}

func evaluateSharpe(sharpe float64) string {
	switch {
	case sharpe > 2.0:
		return "(优秀)"
	case sharpe > 1.0:
		return "(良好)"
	case sharpe > 0.5:
		return "(一般)"
	default:
		return "(较差)"
	}
}

func evaluateSortino(sortino float64) string {
	switch {
	case sortino > 2.0:
		return "(优秀)"
	case sortino > 1.0:
		return "(良好)"
	case sortino > 0.5:
		return "(一般)"
	default:
		return "(较差)"
	}
}

func evaluateDrawdown(dd float64) string {
	switch {
	case dd < 0.05:
		return "(优秀)"
	case dd < 0.10:
		return "(良好)"
	case dd < 0.20:
		return "(可接受)"
	default:
		return "(风险较高)"
	}
}

func evaluateProfitFactor(pf float64) string {
	switch {
	case pf > 2.0:
		return "(优秀)"
	case pf > 1.5:
		return "(良好)"
	case pf > 1.0:
		return "(盈利)"
	default:
		return "(亏损)"
	}
}
