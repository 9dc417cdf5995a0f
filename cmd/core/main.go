// Command core runs the live daemon: it ingests market data, drives
// the detection and strategy pipeline tick by tick, and trades through
// a broker, until it receives an interrupt signal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"auctioncore/pkg/broker"
	"auctioncore/pkg/config"
	"auctioncore/pkg/engine"
	"auctioncore/pkg/execution"
	"auctioncore/pkg/ingest"
	"auctioncore/pkg/market"
	"auctioncore/pkg/portfolio"
	"auctioncore/pkg/risk"
	"auctioncore/pkg/state"
	"auctioncore/pkg/store"
	"auctioncore/pkg/strategy"
)

const (
	appName    = "auctioncore"
	appVersion = "1.0.0"
)

func main() {
	configFile := flag.String("config", "./config/core.yaml", "configuration file path")
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
	if err := cfg.ValidateBroker(); err != nil {
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
	st, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	br := broker.NewRESTBroker(broker.RESTConfig{
		BaseURL: cfg.Broker.BaseURL,
		APIKey:  cfg.Broker.APIKey,
		Timeout: cfg.Broker.Timeout,
	}, logger)

	account, err := br.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("fetch broker account: %w", err)
	}
	logger.Info("broker account fetched", "equity", account.Equity, "cash", account.Cash)

	mgr := portfolio.NewManager(portfolio.Config{
		MaxPositions:      cfg.Strategy.MaxPositions,
		MinAccountBalance: cfg.Risk.MinAccountBalance,
		MaxDailyLossPct:   cfg.Risk.MaxDailyLossPct,
		InitialCapital:    account.Equity,
	})
	mgr.SetBrokerBlocked(account.AccountBlocked || account.TradingBlocked)

	riskMon := risk.NewMonitor(risk.Config{
		MaxDailyLossPct:        cfg.Risk.MaxDailyLossPct,
		MinAccountBalance:      cfg.Risk.MinAccountBalance,
		EmergencyStopThreshold: cfg.Risk.EmergencyStopThreshold,
	})

	orderMon := execution.NewMonitor(br, execution.Config{
		MaxOrderAge:    cfg.Execution.MaxOrderAge,
		MaxSlippagePct: cfg.Execution.MaxSlippagePct,
		CheckInterval:  cfg.Execution.CheckInterval,
	}, logger)

	eng := engine.New(st, engine.Config{
		Strategy: strategy.Config{
			MinAggression:   cfg.Strategy.MinAggression,
			ATRStopMult:     cfg.Strategy.ATRStopMult,
			ATRTargetMult:   cfg.Strategy.ATRTargetMult,
			RiskPerTradePct: cfg.Strategy.RiskPerTradePct,
			MaxPositions:    cfg.Strategy.MaxPositions,
		},
		State: state.Config{
			POCDistanceThreshold: cfg.State.POCDistanceThreshold,
			MomentumThreshold:    cfg.State.MomentumThreshold,
			CVDPressureThreshold: cfg.State.CVDPressureThreshold,
			LookbackPeriod:       cfg.State.LookbackPeriod,
		},
	}, mgr, orderMon, br, riskMon, logger)

	symbols := symbolUniverse(cfg.Ingest.Providers)
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols configured across ingest.providers")
	}

	sources := ingest.SourcesFromConfig(cfg.Ingest.Providers, decodeProviderFrame)
	router, err := ingest.New(cfg.Ingest.NATSURL, sources, logger)
	if err != nil {
		return fmt.Errorf("start ingestion router: %w", err)
	}
	defer router.Close()
	go func() {
		if err := router.Run(ctx); err != nil {
			logger.Error("ingestion router stopped", "error", err)
		}
	}()

	nc, err := nats.Connect(cfg.Ingest.NATSURL)
	if err != nil {
		return fmt.Errorf("connect nats subscriber: %w", err)
	}
	defer nc.Drain()

	subs := make([]*nats.Subscription, 0, len(symbols))
	for _, sym := range symbols {
		sym := sym
		sub, err := nc.Subscribe(ingest.CandleSubject(sym), func(msg *nats.Msg) {
			var c market.Candle
			if err := json.Unmarshal(msg.Data, &c); err != nil {
				logger.Warn("failed to decode candle message", "symbol", sym, "error", err)
				return
			}
			if err := eng.HandleCandle(ctx, c); err != nil {
				logger.Error("candle handling failed", "symbol", sym, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
		subs = append(subs, sub)
	}
	logger.Info("subscribed to candle feed", "symbols", symbols)

	orderMon.Start(ctx)
	defer orderMon.Stop()

	riskTicker := time.NewTicker(30 * time.Second)
	defer riskTicker.Stop()

	logger.Info("daemon running, press Ctrl+C to stop")
	for {
		select {
		case <-ctx.Done():
			for _, sub := range subs {
				sub.Unsubscribe()
			}
			mgr.PrintReport()
			return nil
		case <-riskTicker.C:
			mgr.RollDailyEquity(time.Now().UTC().Format("2006-01-02"))
			riskMon.Check(mgr.Equity(), mgr.DailyStartEquity())
			if riskMon.EmergencyStop() {
				logger.Error("emergency stop active: new entries are suspended")
			}
		}
	}
}

// symbolUniverse collects the deduplicated set of symbols across every
// configured ingestion provider; this is the live trade universe.
func symbolUniverse(providers []config.ProviderConfig) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range providers {
		for _, sym := range p.Symbols {
			if !seen[sym] {
				seen[sym] = true
				out = append(out, sym)
			}
		}
	}
	return out
}

// candleFramePayload is the generic normalized wire shape expected
// from a streaming provider: one JSON object per message, either a
// candle or a tick, distinguished by which fields are populated.
type candleFramePayload struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Price  float64   `json:"price"`
	Size   float64   `json:"size"`
}

// decodeProviderFrame builds the generic JSON decoder every streaming
// provider adapter shares: a candle frame (Open/High/Low/Close set)
// or a tick frame (Price set) per message.
func decodeProviderFrame(providerName string) func([]byte, func(market.Candle), func(market.Tick)) error {
	return func(raw []byte, onCandle func(market.Candle), onTick func(market.Tick)) error {
		var frame candleFramePayload
		if err := json.Unmarshal(raw, &frame); err != nil {
			return fmt.Errorf("decode %s frame: %w", providerName, err)
		}
		if frame.Close != 0 {
			onCandle(market.Candle{
				Time:   frame.Time,
				Symbol: frame.Symbol,
				Open:   frame.Open,
				High:   frame.High,
				Low:    frame.Low,
				Close:  frame.Close,
				Volume: frame.Volume,
			})
			return nil
		}
		onTick(market.Tick{
			Time:   frame.Time,
			Symbol: frame.Symbol,
			Price:  frame.Price,
			Size:   frame.Size,
			Venue:  providerName,
		})
		return nil
	}
}
