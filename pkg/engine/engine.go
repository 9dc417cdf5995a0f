// Package engine drives the live daemon's per-candle pipeline: the
// same profile -> order-flow -> state -> strategy sequence the
// backtest runner replays from stored history, run here tick by tick
// against candles arriving off the ingestion bus, with positions
// opened and closed through a broker instead of simulated fills.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"auctioncore/pkg/aggression"
	"auctioncore/pkg/atr"
	"auctioncore/pkg/broker"
	"auctioncore/pkg/execution"
	"auctioncore/pkg/market"
	"auctioncore/pkg/orderflow"
	"auctioncore/pkg/portfolio"
	"auctioncore/pkg/profile"
	"auctioncore/pkg/risk"
	"auctioncore/pkg/state"
	"auctioncore/pkg/stats"
	"auctioncore/pkg/store"
	"auctioncore/pkg/strategy"
)

const (
	lookbackWindow = 60
	atrPeriod      = 14
)

// symbolState is the rolling per-symbol window the live pipeline
// carries across candles, the same shape the backtest runner keeps.
// Volume and CVD history ride on stats.TimeSeries rather than raw
// slices, since the rolling mean the entry path needs is exactly what
// that series already computes.
type symbolState struct {
	candles  []market.Candle
	flowHist []market.OrderFlowRow
	atrInd   *atr.ATR
	volume   *stats.TimeSeries
	cvd      *stats.TimeSeries
	lastCVD  float64
}

func newSymbolState() *symbolState {
	return &symbolState{
		atrInd: atr.New(atrPeriod),
		volume: stats.NewTimeSeries("volume", lookbackWindow),
		cvd:    stats.NewTimeSeries("cvd", lookbackWindow),
	}
}

func (s *symbolState) pushCandle(c market.Candle) {
	s.candles = append(s.candles, c)
	if len(s.candles) > lookbackWindow {
		s.candles = s.candles[len(s.candles)-lookbackWindow:]
	}
	s.atrInd.Update(c)
	s.volume.Append(c.Volume, c.Time.UnixNano())
}

func (s *symbolState) pushFlow(f market.OrderFlowRow) {
	s.flowHist = append(s.flowHist, f)
	if len(s.flowHist) > lookbackWindow {
		s.flowHist = s.flowHist[len(s.flowHist)-lookbackWindow:]
	}
	s.cvd.Append(f.CumulativeDelta, f.Bucket.UnixNano())
	s.lastCVD = f.CumulativeDelta
}

func (s *symbolState) cvdMomentum() float64 {
	series := s.cvd.GetAll()
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1] - series[0]
}

func (s *symbolState) avgVolume() float64 {
	return s.volume.Mean(lookbackWindow)
}

// Config bundles the strategy and state thresholds one Engine runs
// with. The portfolio, order monitor, broker and risk monitor are
// passed to New separately.
type Config struct {
	Strategy strategy.Config
	State    state.Config
}

// Engine owns one symbol universe's live tick processing: it persists
// every candle and derived row to the store, evaluates the strategy,
// and drives position entry/exit through the order monitor and
// broker. It holds no network listener of its own — the caller feeds
// candles in via HandleCandle from whatever transport it subscribes.
type Engine struct {
	st        *store.Store
	cfg       Config
	portfolio *portfolio.Manager
	orderMon  *execution.Monitor
	br        broker.Broker
	riskMon   *risk.Monitor
	logger    *slog.Logger

	symStates map[string]*symbolState

	pendingMu      sync.Mutex
	pendingSignals []pendingSignal
}

// New builds a live engine bound to one portfolio, broker, and order
// monitor. The order monitor's fill callback is overwritten to route
// confirmed fills back into the portfolio manager.
func New(st *store.Store, cfg Config, mgr *portfolio.Manager, orderMon *execution.Monitor, br broker.Broker, riskMon *risk.Monitor, logger *slog.Logger) *Engine {
	e := &Engine{
		st:        st,
		cfg:       cfg,
		portfolio: mgr,
		orderMon:  orderMon,
		br:        br,
		riskMon:   riskMon,
		logger:    logger,
		symStates: make(map[string]*symbolState),
	}
	orderMon.OnFill(e.onFill)
	return e
}

// Portfolio returns the manager this engine trades through, for the
// caller's periodic risk checks and status reporting.
func (e *Engine) Portfolio() *portfolio.Manager { return e.portfolio }

func (e *Engine) stateFor(symbol string) *symbolState {
	st, ok := e.symStates[symbol]
	if !ok {
		st = newSymbolState()
		e.symStates[symbol] = st
	}
	return st
}

// HandleCandle persists one normalized candle and runs it through the
// full detection and strategy pipeline for its symbol.
func (e *Engine) HandleCandle(ctx context.Context, c market.Candle) error {
	if err := e.st.UpsertCandle(c); err != nil {
		return fmt.Errorf("persist candle: %w", err)
	}

	sym := c.Symbol
	st := e.stateFor(sym)
	st.pushCandle(c)

	profileResult := profile.Compute(c.Time, sym, nil, st.candles)
	for _, row := range profileResult.Rows {
		if err := e.st.UpsertProfileRow(row); err != nil {
			e.logger.Warn("persist profile row failed", "symbol", sym, "error", err)
		}
	}
	if err := e.st.UpsertProfileMetrics(profileResult.Metrics); err != nil {
		e.logger.Warn("persist profile metrics failed", "symbol", sym, "error", err)
	}

	prevCVD := st.lastCVD
	flow := orderflow.Compute(c.Time, sym, profileResult.Rows, func(string, time.Time) float64 { return prevCVD })
	st.pushFlow(flow)
	if err := e.st.InsertOrderFlowRow(flow); err != nil {
		e.logger.Warn("persist order-flow row failed", "symbol", sym, "error", err)
	}

	marketState := state.Detect(e.cfg.State, c.Close, profileResult.Metrics, st.candles, flow)
	if err := e.st.InsertMarketState(marketState); err != nil {
		e.logger.Warn("persist market state failed", "symbol", sym, "error", err)
	}

	agg := aggression.Score(c.Volume, st.avgVolume(), st.cvdMomentum(), flow.BuyPressure, flow.SellPressure)
	if agg.IsAggressive {
		e.logger.Debug("aggressive flow detected", "symbol", sym, "direction", agg.Direction, "score", agg.Score)
	}

	if e.riskMon != nil && e.riskMon.EmergencyStop() {
		e.logger.Warn("emergency stop active, skipping signal evaluation", "symbol", sym)
		return nil
	}

	if pos, ok := e.portfolio.Position(sym); ok {
		return e.evaluateExit(ctx, pos, sym, c, marketState, flow)
	}
	return e.evaluateEntry(ctx, sym, c, st, marketState)
}

func (e *Engine) evaluateExit(ctx context.Context, pos portfolio.Position, sym string, c market.Candle, marketState market.MarketStateRow, flow market.OrderFlowRow) error {
	e.portfolio.UpdateOpenPosition(sym, c.High, c.Low)

	reason := strategy.EvaluateExit(pos.Side, pos.Stop, pos.Target, c.Close, marketState.State, flow.BuyPressure, flow.SellPressure)
	if reason == strategy.ExitNone {
		return nil
	}

	e.portfolio.MarkClosing(sym)
	if err := e.br.ClosePosition(ctx, sym); err != nil {
		return fmt.Errorf("close position %s at broker: %w", sym, err)
	}

	trade, err := e.portfolio.Close(sym, c.Time, c.Close, string(reason))
	if err != nil {
		return fmt.Errorf("close position %s in portfolio: %w", sym, err)
	}
	e.logger.Info("position closed", "symbol", sym, "reason", reason, "pnl", trade.PnL)
	return nil
}

func (e *Engine) evaluateEntry(ctx context.Context, sym string, c market.Candle, st *symbolState, marketState market.MarketStateRow) error {
	if ok, why := e.portfolio.CanOpen(sym); !ok {
		e.logger.Debug("entry blocked", "symbol", sym, "reason", why)
		return nil
	}

	atrVal := 0.0
	if st.atrInd.Ready() {
		atrVal = st.atrInd.Value()
	}
	volumeRatio := 0.0
	if avg := st.avgVolume(); avg > 0 {
		volumeRatio = c.Volume / avg
	}

	in := strategy.Input{
		Symbol:       sym,
		State:        marketState.State,
		Confidence:   marketState.Confidence,
		BuyPressure:  0,
		SellPressure: 0,
		CVDMomentum:  st.cvdMomentum(),
		VolumeRatio:  volumeRatio,
		Price:        c.Close,
		ATR:          atrVal,
	}
	if len(st.flowHist) > 0 {
		last := st.flowHist[len(st.flowHist)-1]
		in.BuyPressure = last.BuyPressure
		in.SellPressure = last.SellPressure
	}

	sig, ok := strategy.EvaluateEntrySignal(e.cfg.Strategy, in)
	if !ok {
		return nil
	}

	stopDist := math.Abs(sig.EntryPrice - sig.StopLoss)
	qty := strategy.PositionSize(e.portfolio.Equity(), e.cfg.Strategy.RiskPerTradePct, stopDist, e.portfolio.Cash(), sig.EntryPrice)
	if qty <= 0 {
		return nil
	}

	req := broker.BracketOrderRequest{
		Symbol:          sym,
		Qty:             qty,
		Side:            sig.Side,
		TakeProfitPrice: sig.TakeProfit,
		StopLossPrice:   sig.StopLoss,
	}
	tracked, err := e.orderMon.PlaceBracketOrder(ctx, req, sig.EntryPrice)
	if err != nil {
		return fmt.Errorf("place bracket order for %s: %w", sym, err)
	}
	e.pendingMu.Lock()
	e.pendingSignals = append(e.pendingSignals, pendingSignal{
		orderID:      tracked.ID,
		stop:         sig.StopLoss,
		target:       sig.TakeProfit,
		stateAtEntry: sig.StateAtEntry,
		aggression:   sig.AggressionScore,
	})
	e.pendingMu.Unlock()
	return nil
}

// pendingSignal carries the strategy context a placed order needs once
// it fills, since execution.FillEvent only reports the order monitor's
// own TrackedOrder fields (no stop/target/state).
type pendingSignal struct {
	orderID      string
	stop         float64
	target       float64
	stateAtEntry market.State
	aggression   float64
}

func (e *Engine) onFill(evt execution.FillEvent) {
	e.pendingMu.Lock()
	var sig *pendingSignal
	for i := range e.pendingSignals {
		if e.pendingSignals[i].orderID == evt.Order.ID {
			s := e.pendingSignals[i]
			sig = &s
			e.pendingSignals = append(e.pendingSignals[:i], e.pendingSignals[i+1:]...)
			break
		}
	}
	e.pendingMu.Unlock()
	if sig == nil {
		e.logger.Warn("fill for unknown order", "id", evt.Order.ID, "symbol", evt.Order.Symbol)
		return
	}

	_, err := e.portfolio.Open(evt.Order.Symbol, evt.Order.Side, time.Now(), evt.Order.EntryPrice,
		sig.stop, sig.target, evt.Order.Qty, "auction_market_signal", sig.stateAtEntry, sig.aggression)
	if err != nil {
		e.logger.Error("failed to record filled order in portfolio", "symbol", evt.Order.Symbol, "error", err)
		return
	}
	e.logger.Info("position opened", "symbol", evt.Order.Symbol, "side", evt.Order.Side, "qty", evt.Order.Qty, "entry", evt.Order.EntryPrice)
}
