// Command backtest drives one deterministic replay of historical
// candles through the auction-market strategy and prints (and
// optionally exports) the resulting performance report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"auctioncore/pkg/backtest"
	"auctioncore/pkg/config"
	"auctioncore/pkg/state"
	"auctioncore/pkg/store"
	"auctioncore/pkg/strategy"
)

const (
	exitSuccess = 0
	exitUsage   = 1
	exitRuntime = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath     = flag.String("config", "", "optional config file for strategy/state threshold overrides")
		storePath      = flag.String("store", "./data/auctioncore.db", "path to the time-series SQLite store")
		symbolsFlag    = flag.String("symbols", "", "comma-separated symbol list")
		allSymbols     = flag.Bool("all-symbols", false, "replay every symbol with stored candles")
		individual     = flag.String("individual", "", "replay a single symbol in isolation (parameter-sweep mode)")
		unlimited      = flag.Bool("unlimited", false, "disable portfolio gates; report the signal ceiling")
		startFlag      = flag.String("start", "", "range start, YYYY-MM-DD")
		endFlag        = flag.String("end", "", "range end, YYYY-MM-DD")
		years          = flag.Float64("years", 0, "range length in years, ending now (alternative to --start/--end)")
		initialCapital = flag.Float64("initial-capital", 100000, "starting capital")
		maxPositions   = flag.Int("max-positions", 5, "maximum concurrent open positions (portfolio mode)")
		riskPerTrade   = flag.Float64("risk-per-trade", 1.0, "risk per trade, percent of equity")
		exportPath     = flag.String("export", "", "write the report to this path (.md, .json, or .csv)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	runCfg, err := buildRunConfig(*symbolsFlag, *allSymbols, *individual, *unlimited, *startFlag, *endFlag, *years,
		*initialCapital, *maxPositions, *riskPerTrade, *exportPath, *storePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "usage error:", err)
		return exitUsage
	}

	stratCfg := strategy.Config{
		MinAggression:   60,
		ATRStopMult:     1.5,
		ATRTargetMult:   2.5,
		RiskPerTradePct: runCfg.RiskPerTradePct,
		MaxPositions:    runCfg.MaxPositions,
	}
	stateCfg := state.DefaultConfig()

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "usage error: loading config:", err)
			return exitUsage
		}
		stratCfg.MinAggression = cfg.Strategy.MinAggression
		stratCfg.ATRStopMult = cfg.Strategy.ATRStopMult
		stratCfg.ATRTargetMult = cfg.Strategy.ATRTargetMult
		stateCfg = state.Config{
			POCDistanceThreshold: cfg.State.POCDistanceThreshold,
			MomentumThreshold:    cfg.State.MomentumThreshold,
			CVDPressureThreshold: cfg.State.CVDPressureThreshold,
			LookbackPeriod:       cfg.State.LookbackPeriod,
		}
	}

	st, err := store.Open(*storePath, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "runtime error: opening store:", err)
		return exitRuntime
	}
	defer st.Close()

	if runCfg.Symbols, err = resolveSymbols(st, runCfg.Symbols, *allSymbols); err != nil {
		fmt.Fprintln(os.Stderr, "runtime error:", err)
		return exitRuntime
	}
	if len(runCfg.Symbols) == 0 {
		fmt.Fprintln(os.Stderr, "usage error: no symbols resolved; use --symbols, --all-symbols, or --individual")
		return exitUsage
	}

	runner := backtest.NewRunner(st, stratCfg, stateCfg, *runCfg, logger)
	result, err := runner.Run(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "runtime error:", err)
		return exitRuntime
	}

	printSummary(*runCfg, result)

	if *exportPath != "" {
		if err := exportReport(*runCfg, result, *exportPath); err != nil {
			fmt.Fprintln(os.Stderr, "runtime error: exporting report:", err)
			return exitRuntime
		}
		fmt.Printf("report written to %s\n", *exportPath)
	}

	return exitSuccess
}

func buildRunConfig(symbolsFlag string, allSymbols bool, individual string, unlimited bool, startFlag, endFlag string, years float64,
	initialCapital float64, maxPositions int, riskPerTrade float64, exportPath, storePath string) (*backtest.RunConfig, error) {

	modeCount := 0
	for _, set := range []bool{symbolsFlag != "", allSymbols, individual != "", unlimited} {
		if set {
			modeCount++
		}
	}
	if modeCount == 0 {
		return nil, fmt.Errorf("one of --symbols, --all-symbols, --individual, or --unlimited is required")
	}

	var symbols []string
	mode := backtest.ModePortfolio
	switch {
	case individual != "":
		symbols = []string{individual}
		mode = backtest.ModeIndividual
	case unlimited:
		mode = backtest.ModeUnlimited
		if symbolsFlag != "" {
			symbols = splitSymbols(symbolsFlag)
		}
	case symbolsFlag != "":
		symbols = splitSymbols(symbolsFlag)
	}

	start, end, err := resolveRange(startFlag, endFlag, years)
	if err != nil {
		return nil, err
	}

	cfg := &backtest.RunConfig{
		Symbols:         symbols,
		Mode:            mode,
		Start:           start,
		End:             end,
		InitialCapital:  initialCapital,
		MaxPositions:    maxPositions,
		RiskPerTradePct: riskPerTrade,
		ExportPath:      exportPath,
	}
	return cfg, nil
}

func splitSymbols(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func resolveRange(startFlag, endFlag string, years float64) (time.Time, time.Time, error) {
	const dayLayout = "2006-01-02"

	if startFlag != "" || endFlag != "" {
		if startFlag == "" || endFlag == "" {
			return time.Time{}, time.Time{}, fmt.Errorf("--start and --end must be given together")
		}
		start, err := time.Parse(dayLayout, startFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --start: %w", err)
		}
		end, err := time.Parse(dayLayout, endFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end: %w", err)
		}
		return start, end.Add(24*time.Hour - time.Nanosecond), nil
	}

	if years <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("one of --start/--end or --years is required")
	}
	end := time.Now().UTC()
	start := end.AddDate(-int(years), -int((years-float64(int(years)))*12), 0)
	return start, end, nil
}

func resolveSymbols(st *store.Store, requested []string, allSymbols bool) ([]string, error) {
	if !allSymbols {
		return requested, nil
	}
	symbols, err := st.ListSymbols()
	if err != nil {
		return nil, fmt.Errorf("listing symbols: %w", err)
	}
	return symbols, nil
}

func printSummary(run backtest.RunConfig, result *backtest.BacktestResult) {
	fmt.Println("\n================================================================")
	fmt.Printf("Backtest: %v  mode=%s  %s -> %s\n", run.Symbols, run.Mode,
		run.Start.Format("2006-01-02"), run.End.Format("2006-01-02"))
	fmt.Println("================================================================")
	fmt.Printf("Initial Capital:   %.2f\n", result.InitialCash)
	fmt.Printf("Final Capital:     %.2f\n", result.FinalCash)
	fmt.Printf("Total PNL:         %.2f (%.2f%%)\n", result.TotalPNL, result.TotalReturn*100)
	fmt.Printf("Sharpe Ratio:      %.2f\n", result.SharpeRatio)
	fmt.Printf("Sortino Ratio:     %.2f\n", result.SortinoRatio)
	fmt.Printf("Max Drawdown:      %.2f%%\n", result.MaxDrawdown*100)
	fmt.Printf("Total Trades:      %d  (win rate %.1f%%)\n", result.TotalTrades, result.WinRate*100)
	fmt.Printf("Profit Factor:     %.2f\n", result.ProfitFactor)
	fmt.Println("================================================================")
}

func exportReport(run backtest.RunConfig, result *backtest.BacktestResult, path string) error {
	gen := backtest.NewReportGenerator(run, result)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return gen.GenerateJSON(path)
	case ".csv":
		return gen.SaveTradesCSV(path)
	default:
		return gen.GenerateMarkdown(path)
	}
}
