package backtest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"auctioncore/pkg/aggression"
	"auctioncore/pkg/atr"
	"auctioncore/pkg/market"
	"auctioncore/pkg/orderflow"
	"auctioncore/pkg/portfolio"
	"auctioncore/pkg/profile"
	"auctioncore/pkg/state"
	"auctioncore/pkg/store"
	"auctioncore/pkg/strategy"
)

const (
	lookbackWindow      = 60
	equitySnapshotEvery = 100
	atrPeriod           = 14
	reasonEndOfBacktest = "End of Backtest"
)

// symbolState is the mutable, per-symbol bookkeeping the replay loop
// carries across bars: a bounded candle window for momentum/profile
// lookback, the running ATR, and the order-flow history needed for CVD
// momentum. None of this touches the pure profile/state/strategy
// packages' own APIs — it only feeds them.
type symbolState struct {
	candles  []market.Candle
	flowHist []market.OrderFlowRow
	atrInd   *atr.ATR
	lastCVD  float64
}

func newSymbolState() *symbolState {
	return &symbolState{atrInd: atr.New(atrPeriod)}
}

func (s *symbolState) pushCandle(c market.Candle) {
	s.candles = append(s.candles, c)
	if len(s.candles) > lookbackWindow {
		s.candles = s.candles[len(s.candles)-lookbackWindow:]
	}
	s.atrInd.Update(c)
}

func (s *symbolState) pushFlow(f market.OrderFlowRow) {
	s.flowHist = append(s.flowHist, f)
	if len(s.flowHist) > lookbackWindow {
		s.flowHist = s.flowHist[len(s.flowHist)-lookbackWindow:]
	}
	s.lastCVD = f.CumulativeDelta
}

func (s *symbolState) cvdMomentum() float64 {
	if len(s.flowHist) == 0 {
		return 0
	}
	return s.flowHist[len(s.flowHist)-1].CumulativeDelta - s.flowHist[0].CumulativeDelta
}

func (s *symbolState) avgVolume() float64 {
	if len(s.candles) == 0 {
		return 0
	}
	var sum float64
	for _, c := range s.candles {
		sum += c.Volume
	}
	return sum / float64(len(s.candles))
}

// Runner drives one deterministic replay of historical candles through
// the same profile -> order-flow -> state -> strategy pipeline the
// live daemon runs tick by tick, one bar at a time, with no wall-clock
// dependency anywhere in the loop.
type Runner struct {
	st       *store.Store
	strategy strategy.Config
	state    state.Config
	run      RunConfig
	logger   *slog.Logger
}

// NewRunner builds a replay driver over a store's historical candles.
func NewRunner(st *store.Store, stratCfg strategy.Config, stateCfg state.Config, runCfg RunConfig, logger *slog.Logger) *Runner {
	return &Runner{st: st, strategy: stratCfg, state: stateCfg, run: runCfg, logger: logger}
}

// Run executes the replay and returns the completed performance report.
func (r *Runner) Run(ctx context.Context) (*BacktestResult, error) {
	if err := r.run.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}

	bySymbol := make(map[string][]market.Candle, len(r.run.Symbols))
	for _, sym := range r.run.Symbols {
		candles, err := r.st.GetCandles(sym, r.run.Start, r.run.End)
		if err != nil {
			return nil, fmt.Errorf("load candles for %s: %w", sym, err)
		}
		bySymbol[sym] = candles
	}

	timestamps := mergeTimestamps(bySymbol)
	if len(timestamps) == 0 {
		return nil, fmt.Errorf("no candle data in range for %v", r.run.Symbols)
	}

	cursor := make(map[string]int, len(r.run.Symbols))
	symStates := make(map[string]*symbolState, len(r.run.Symbols))
	for _, sym := range r.run.Symbols {
		symStates[sym] = newSymbolState()
	}

	managerFor, allManagers, totalInitialCapital := r.buildManagers()
	commission := r.run.EffectiveCommissionRate()
	slippage := r.run.EffectiveSlippageBps() / 10000

	lastPrices := make(map[string]float64, len(r.run.Symbols))
	var closedTrades []*Trade
	var pendingEquity []equityWrite

	for tIdx, ts := range timestamps {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		for _, sym := range r.run.Symbols {
			candles := bySymbol[sym]
			i := cursor[sym]
			if i >= len(candles) || !candles[i].Time.Equal(ts) {
				continue
			}
			bar := candles[i]
			cursor[sym] = i + 1
			lastPrices[sym] = bar.Close

			st := symStates[sym]
			mgr := managerFor(sym)
			st.pushCandle(bar)

			profileResult := profile.Compute(bar.Time, sym, nil, st.candles)
			prevCVD := st.lastCVD
			flow := orderflow.Compute(bar.Time, sym, profileResult.Rows, func(string, time.Time) float64 { return prevCVD })
			st.pushFlow(flow)

			marketState := state.Detect(r.state, bar.Close, profileResult.Metrics, st.candles, flow)

			agg := aggression.Score(bar.Volume, st.avgVolume(), st.cvdMomentum(), flow.BuyPressure, flow.SellPressure)
			if agg.IsAggressive {
				r.logger.Debug("aggressive flow detected", "symbol", sym, "direction", agg.Direction, "score", agg.Score)
			}

			if pos, ok := mgr.Position(sym); ok {
				mgr.UpdateOpenPosition(sym, bar.High, bar.Low)
				reason := strategy.EvaluateExit(pos.Side, pos.Stop, pos.Target, bar.Close, marketState.State, flow.BuyPressure, flow.SellPressure)
				if reason != strategy.ExitNone {
					exitPrice := applySlippage(bar.Close, pos.Side, slippage, false)
					if trade, err := r.closePosition(mgr, sym, bar.Time, exitPrice, string(reason), commission); err == nil {
						closedTrades = append(closedTrades, trade)
					}
				}
				continue
			}

			atrVal := 0.0
			if st.atrInd.Ready() {
				atrVal = st.atrInd.Value()
			}
			volumeRatio := 0.0
			if avg := st.avgVolume(); avg > 0 {
				volumeRatio = bar.Volume / avg
			}

			in := strategy.Input{
				Symbol:       sym,
				State:        marketState.State,
				Confidence:   marketState.Confidence,
				BuyPressure:  flow.BuyPressure,
				SellPressure: flow.SellPressure,
				CVDMomentum:  st.cvdMomentum(),
				VolumeRatio:  volumeRatio,
				Price:        bar.Close,
				ATR:          atrVal,
			}

			sig, ok := strategy.EvaluateEntrySignal(r.strategy, in)
			if !ok {
				continue
			}

			entryPrice := applySlippage(sig.EntryPrice, sig.Side, slippage, true)
			stopDist := math.Abs(sig.EntryPrice - sig.StopLoss)
			qty := strategy.PositionSize(mgr.Equity(), r.strategy.RiskPerTradePct, stopDist, mgr.Cash(), entryPrice)
			if qty <= 0 {
				continue
			}
			mgr.Open(sym, sig.Side, bar.Time, entryPrice, sig.StopLoss, sig.TakeProfit, qty, "auction_market_signal", marketState.State, sig.AggressionScore)
		}

		if tIdx%equitySnapshotEvery == 0 {
			for _, mgr := range allManagers {
				mgr.MarkToMarket(lastPrices)
				mgr.SnapshotEquity(ts)
				pendingEquity = append(pendingEquity, equityWrite{at: ts, equity: mgr.Equity()})
			}
		}
	}

	finalTs := timestamps[len(timestamps)-1]
	for _, sym := range r.run.Symbols {
		mgr := managerFor(sym)
		if _, ok := mgr.Position(sym); !ok {
			continue
		}
		price, ok := lastPrices[sym]
		if !ok {
			continue
		}
		if trade, err := r.closePosition(mgr, sym, finalTs, price, reasonEndOfBacktest, commission); err == nil {
			closedTrades = append(closedTrades, trade)
		}
	}
	for _, mgr := range allManagers {
		mgr.MarkToMarket(lastPrices)
		mgr.SnapshotEquity(finalTs)
		pendingEquity = append(pendingEquity, equityWrite{at: finalTs, equity: mgr.Equity()})
	}

	if err := r.st.AppendTrades(tradesToStoreRows(closedTrades)); err != nil {
		return nil, fmt.Errorf("persist trades: %w", err)
	}
	runID := r.runID()
	for _, w := range pendingEquity {
		if err := r.st.AppendEquityPoint(runID, w.at, w.equity); err != nil {
			return nil, fmt.Errorf("persist equity point: %w", err)
		}
	}

	var finalCash float64
	var generated, blocked map[string]int
	stats := NewStatistics(totalInitialCapital)
	for _, t := range closedTrades {
		stats.OnTrade(t)
	}
	for _, mgr := range allManagers {
		finalCash += mgr.Equity()
		g, b := mgr.SignalCounts()
		generated = mergeCounts(generated, g)
		blocked = mergeCounts(blocked, b)
	}

	result := stats.GenerateReport(finalCash)
	result.SignalsGenerated = generated
	result.SignalsBlocked = blocked

	if r.run.Mode == ModeUnlimited {
		total, blockedTotal := 0, 0
		for _, v := range generated {
			total += v
		}
		for _, v := range blocked {
			blockedTotal += v
		}
		r.logger.Info("unlimited-mode signal ceiling", "capturable", total, "blocked", blockedTotal)
	}

	return result, nil
}

type equityWrite struct {
	at     time.Time
	equity float64
}

func (r *Runner) buildManagers() (managerFor func(string) *portfolio.Manager, all []*portfolio.Manager, totalInitialCapital float64) {
	switch r.run.Mode {
	case ModeIndividual:
		managers := make(map[string]*portfolio.Manager, len(r.run.Symbols))
		for _, sym := range r.run.Symbols {
			m := portfolio.NewManager(portfolio.Config{
				MaxPositions:      1,
				MinAccountBalance: 0,
				MaxDailyLossPct:   100,
				InitialCapital:    r.run.InitialCapital,
			})
			managers[sym] = m
			all = append(all, m)
			totalInitialCapital += r.run.InitialCapital
		}
		return func(sym string) *portfolio.Manager { return managers[sym] }, all, totalInitialCapital

	case ModeUnlimited:
		// Position-count and daily-loss gates disabled; the single
		// per-symbol-position invariant stays, since it is a data
		// model constraint, not a risk gate.
		m := portfolio.NewManager(portfolio.Config{
			MaxPositions:      1 << 30,
			MinAccountBalance: 0,
			MaxDailyLossPct:   100,
			InitialCapital:    r.run.InitialCapital,
		})
		return func(string) *portfolio.Manager { return m }, []*portfolio.Manager{m}, r.run.InitialCapital

	default: // ModePortfolio
		m := portfolio.NewManager(portfolio.Config{
			MaxPositions:      r.run.MaxPositions,
			MinAccountBalance: 0,
			MaxDailyLossPct:   100,
			InitialCapital:    r.run.InitialCapital,
		})
		return func(string) *portfolio.Manager { return m }, []*portfolio.Manager{m}, r.run.InitialCapital
	}
}

// closePosition closes an open position through the portfolio manager
// and nets the round-trip commission into the reported PNL, returning
// the single Trade record used for both the performance report and
// store persistence.
func (r *Runner) closePosition(mgr *portfolio.Manager, sym string, at time.Time, price float64, reason string, commissionRate float64) (*Trade, error) {
	pt, err := mgr.Close(sym, at, price, reason)
	if err != nil {
		return nil, err
	}
	fee := (pt.EntryPrice + pt.ExitPrice) * float64(pt.Qty) * commissionRate
	pnl := pt.PnL - fee

	return &Trade{
		Symbol:     pt.Symbol,
		EntryTime:  pt.EntryTime,
		EntryPrice: pt.EntryPrice,
		Qty:        pt.Qty,
		Side:       pt.Side,
		ExitTime:   pt.ExitTime,
		ExitPrice:  pt.ExitPrice,
		ExitReason: pt.ExitReason,
		PNL:        pnl,
		Commission: fee,
		BarsHeld:   pt.BarsHeld,
		MAE:        pt.MAE,
		MFE:        pt.MFE,
	}, nil
}

func tradesToStoreRows(trades []*Trade) []store.Trade {
	out := make([]store.Trade, 0, len(trades))
	for _, t := range trades {
		pnlPct := 0.0
		if t.EntryPrice > 0 && t.Qty > 0 {
			pnlPct = t.PNL / (t.EntryPrice * float64(t.Qty)) * 100
		}
		out = append(out, store.Trade{
			Symbol:     t.Symbol,
			EntryTime:  t.EntryTime,
			EntryPrice: t.EntryPrice,
			Qty:        t.Qty,
			Side:       t.Side,
			ExitTime:   t.ExitTime,
			ExitPrice:  t.ExitPrice,
			ExitReason: t.ExitReason,
			PNL:        t.PNL,
			PNLPct:     pnlPct,
			BarsHeld:   t.BarsHeld,
			MAE:        t.MAE,
			MFE:        t.MFE,
		})
	}
	return out
}

func mergeCounts(into, from map[string]int) map[string]int {
	if into == nil {
		into = make(map[string]int, len(from))
	}
	for k, v := range from {
		into[k] += v
	}
	return into
}

func applySlippage(price float64, side market.Side, bps float64, entering bool) float64 {
	adj := price * bps
	worse := (side == market.SideBuy) == entering
	if worse {
		return price + adj
	}
	return price - adj
}

func mergeTimestamps(bySymbol map[string][]market.Candle) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, candles := range bySymbol {
		for _, c := range candles {
			seen[c.Time] = struct{}{}
		}
	}
	out := make([]time.Time, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// runID derives a stable identifier for the equity-curve rows this run
// writes, from the run's symbols, mode, and date range, so re-running
// identical parameters overwrites the same rows instead of appending
// duplicates.
func (r *Runner) runID() string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", strings.Join(r.run.Symbols, ","), r.run.Mode, r.run.Start.Format(time.RFC3339), r.run.End.Format(time.RFC3339))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
