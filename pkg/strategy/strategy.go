// Package strategy implements the single authoritative Auction Market
// Strategy signal evaluator. Every function here is pure: no I/O, no
// shared mutable state, and identical inputs always produce identical
// outputs. Both the live daemon and the backtest driver call this
// package by value.
package strategy

import (
	"math"

	"auctioncore/pkg/market"
)

// Config bundles the strategy's tunable parameters.
type Config struct {
	MinAggression     float64
	ATRStopMult       float64
	ATRTargetMult     float64
	RiskPerTradePct   float64
	MaxPositions      int
}

// Input is everything the strategy needs to evaluate one symbol on
// one tick: the fused market state, the latest flow pressures and CVD
// momentum, the current price, and volatility.
type Input struct {
	Symbol       string
	State        market.State
	Confidence   float64
	BuyPressure  float64
	SellPressure float64
	CVDMomentum  float64
	VolumeRatio  float64
	Price        float64
	ATR          float64
}

// Signal is the strategy's emitted entry decision, carrying both the
// order parameters and audit context.
type Signal struct {
	Symbol          string
	Side            market.Side
	EntryPrice      float64
	StopLoss        float64
	TakeProfit      float64
	AggressionScore float64
	StateAtEntry    market.State
	Confidence      float64
}

// aggressionScore applies the strategy's own rubric, a tighter
// weighting than the standalone aggressive-flow indicator: CVD
// momentum and one-sided pressure each dominate the score, with
// volume ratio as a smaller tiebreaker.
func aggressionScore(in Input) float64 {
	var score float64

	absMom := math.Abs(in.CVDMomentum)
	if absMom >= 1000 {
		score += 40
	}

	maxPressure := math.Max(in.BuyPressure, in.SellPressure)
	if maxPressure >= 70 {
		score += 40
	}

	switch {
	case in.VolumeRatio >= 2.0:
		score += 20
	case in.VolumeRatio >= 1.5:
		score += 10
	}

	return score
}

func flowDirection(in Input) market.Direction {
	switch {
	case in.BuyPressure > in.SellPressure:
		return market.DirectionBuy
	case in.SellPressure > in.BuyPressure:
		return market.DirectionSell
	default:
		return market.DirectionNeutral
	}
}

// EvaluateEntrySignal emits a signal iff all four gating conditions
// hold: state is directional, aggression clears the threshold, flow
// direction matches the state's bias, and ATR is usable for sizing.
func EvaluateEntrySignal(cfg Config, in Input) (Signal, bool) {
	if in.State != market.StateImbalanceUp && in.State != market.StateImbalanceDown {
		return Signal{}, false
	}

	score := aggressionScore(in)
	if score < cfg.MinAggression {
		return Signal{}, false
	}

	dir := flowDirection(in)
	wantBuy := in.State == market.StateImbalanceUp
	if wantBuy && dir != market.DirectionBuy {
		return Signal{}, false
	}
	if !wantBuy && dir != market.DirectionSell {
		return Signal{}, false
	}

	if in.ATR <= 0 {
		return Signal{}, false
	}

	side := market.SideSell
	stop := in.Price + in.ATR*cfg.ATRStopMult
	target := in.Price - in.ATR*cfg.ATRTargetMult
	if wantBuy {
		side = market.SideBuy
		stop = in.Price - in.ATR*cfg.ATRStopMult
		target = in.Price + in.ATR*cfg.ATRTargetMult
	}

	return Signal{
		Symbol:          in.Symbol,
		Side:            side,
		EntryPrice:      in.Price,
		StopLoss:        stop,
		TakeProfit:      target,
		AggressionScore: score,
		StateAtEntry:    in.State,
		Confidence:      in.Confidence,
	}, true
}

// ExitReason names why EvaluateExit signaled a close.
type ExitReason string

const (
	ExitNone     ExitReason = ""
	ExitStop     ExitReason = "stop"
	ExitTarget   ExitReason = "target"
	ExitOpposite ExitReason = "opposite_signal"
)

// EvaluateExit checks whether an open position should close: the
// price has crossed its stop or target on the held side, or an
// opposite state+direction pair now confirms against the position.
func EvaluateExit(side market.Side, stop, target, price float64, state market.State, buyPressure, sellPressure float64) ExitReason {
	dir := flowDirection(Input{BuyPressure: buyPressure, SellPressure: sellPressure})

	switch side {
	case market.SideBuy:
		if price <= stop {
			return ExitStop
		}
		if price >= target {
			return ExitTarget
		}
		if state == market.StateImbalanceDown && dir == market.DirectionSell {
			return ExitOpposite
		}
	case market.SideSell:
		if price >= stop {
			return ExitStop
		}
		if price <= target {
			return ExitTarget
		}
		if state == market.StateImbalanceUp && dir == market.DirectionBuy {
			return ExitOpposite
		}
	}
	return ExitNone
}

// PositionSize computes share/contract quantity from risk capital,
// capped by available cash. qty = floor(risk_amount / stop_distance),
// capped by floor(available_cash / entry_price).
func PositionSize(accountEquity, riskPerTradePct, stopDistance, availableCash, entryPrice float64) int64 {
	if stopDistance <= 0 || entryPrice <= 0 {
		return 0
	}
	riskAmount := accountEquity * riskPerTradePct / 100
	byRisk := math.Floor(riskAmount / stopDistance)
	byCash := math.Floor(availableCash / entryPrice)
	if byCash < byRisk {
		return int64(byCash)
	}
	return int64(byRisk)
}
