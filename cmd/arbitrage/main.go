// Command arbitrage runs the binary-market arbitrage daemon: it scans
// the configured markets for a combined YES+NO ask below the cost
// threshold, enters a paired position when the entry gates clear, and
// hands every open position to the early-exit monitor until it
// receives an interrupt signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"auctioncore/pkg/arbitrage"
	"auctioncore/pkg/binex"
	"auctioncore/pkg/config"
)

const (
	appName    = "auctioncore-arbitrage"
	appVersion = "1.0.0"
)

func main() {
	configFile := flag.String("config", "./config/arbitrage.yaml", "configuration file path")
	printVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *printVersion {
		fmt.Printf("%s version %s\n", appName, appVersion)
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading config:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	logger.Info("starting", "app", appName, "version", appVersion, "config", *configFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if len(cfg.Arbitrage.Markets) == 0 {
		return fmt.Errorf("no markets configured under arbitrage.markets")
	}

	client := binex.NewClient(binex.Config{
		BaseURL: cfg.Arbitrage.VenueBaseURL,
		APIKey:  cfg.Arbitrage.VenueAPIKey,
	})

	engCfg := arbitrage.Config{
		SpreadThreshold: cfg.Arbitrage.SpreadThreshold,
		MinProfitPct:    cfg.Arbitrage.MinProfitPct,
	}

	symbols := make([]string, 0, len(cfg.Arbitrage.Markets))
	for _, marketID := range cfg.Arbitrage.Markets {
		m, err := client.FetchMarket(ctx, marketID)
		if err != nil {
			logger.Warn("skipping market, metadata fetch failed", "market_id", marketID, "error", err)
			continue
		}
		symbols = append(symbols, m.Symbol)
		logger.Info("tracking market", "symbol", m.Symbol, "question", m.Question)
	}
	if len(symbols) == 0 {
		return fmt.Errorf("no markets resolved from configured market IDs")
	}

	monitor := arbitrage.NewEarlyExitMonitor(client, client, logger)

	interval := cfg.Arbitrage.MonitorInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}

	positionSize := cfg.Arbitrage.PositionSizeUSD
	if positionSize <= 0 {
		positionSize = 100
	}

	d := &daemon{
		client:       client,
		cfg:          engCfg,
		monitor:      monitor,
		symbols:      symbols,
		positionSize: positionSize,
		logger:       logger,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.Run(ctx)
	}()

	scanTicker := time.NewTicker(interval)
	defer scanTicker.Stop()

	logger.Info("daemon running, press Ctrl+C to stop", "symbols", symbols, "scan_interval", interval)
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			d.printSummary()
			return nil
		case <-scanTicker.C:
			d.scanOnce(ctx)
		}
	}
}

// daemon holds the scan loop's state: which symbols have had a paired
// position entered this session, so later scans skip re-entering them.
// Entries are not removed when the early-exit monitor closes a
// position, so each symbol is entered at most once per session.
type daemon struct {
	client       *binex.Client
	cfg          arbitrage.Config
	monitor      *arbitrage.EarlyExitMonitor
	symbols      []string
	positionSize float64
	logger       *slog.Logger

	mu        sync.Mutex
	open      map[string]arbitrage.BinaryPosition
	positions []arbitrage.BinaryPosition
}

func (d *daemon) scanOnce(ctx context.Context) {
	d.mu.Lock()
	if d.open == nil {
		d.open = make(map[string]arbitrage.BinaryPosition)
	}
	d.mu.Unlock()

	for _, symbol := range d.symbols {
		price, err := d.client.FetchPrice(ctx, d.cfg, symbol)
		if err != nil {
			d.logger.Warn("quote fetch failed", "symbol", symbol, "error", err)
			continue
		}

		d.mu.Lock()
		_, hasPosition := d.open[symbol]
		d.mu.Unlock()

		if !arbitrage.EligibleForEntry(d.cfg, price, hasPosition) {
			continue
		}

		qty := d.positionSize / price.Spread
		pos, err := d.client.EnterPair(ctx, symbol, price, qty)
		if err != nil {
			d.logger.Error("entry failed", "symbol", symbol, "error", err)
			continue
		}

		d.mu.Lock()
		d.open[symbol] = pos
		d.positions = append(d.positions, pos)
		d.mu.Unlock()

		d.monitor.Track(pos)
		d.logger.Info("entered arbitrage position", "symbol", symbol, "spread", pos.EntrySpread,
			"guaranteed_profit_pct", pos.GuaranteedProfitPct())
	}
}

func (d *daemon) printSummary() {
	d.mu.Lock()
	defer d.mu.Unlock()

	fmt.Println("\n================================================================")
	fmt.Printf("Arbitrage session: %d position(s) entered\n", len(d.positions))
	fmt.Println("================================================================")
	for _, p := range d.positions {
		fmt.Printf("%-16s spread=%.4f guaranteed=%.2f%% status=%s\n",
			p.Symbol, p.EntrySpread, p.GuaranteedProfitPct(), p.Status)
	}
	fmt.Println("================================================================")
}
