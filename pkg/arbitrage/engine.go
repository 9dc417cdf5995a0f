package arbitrage

import "time"

// Config bundles the arbitrage engine's tunable thresholds.
type Config struct {
	SpreadThreshold float64 // default 0.995
	FeeRatePct      float64 // default 0
	MinProfitPct    float64
}

// DefaultConfig returns the thresholds named in the engine's detection rule.
func DefaultConfig() Config {
	return Config{SpreadThreshold: 0.995, FeeRatePct: 0, MinProfitPct: 0.5}
}

// Quote is one side's best bid/ask as observed from the book or a
// price-change event.
type Quote struct {
	Bid, Ask float64
}

// Evaluate joins a market's YES and NO quotes and computes the
// spread, arbitrage flag, and estimated profit per the detection rule.
func Evaluate(cfg Config, symbol string, yes, no Quote, at time.Time) BinaryPrice {
	yesMid := (yes.Bid + yes.Ask) / 2
	noMid := (no.Bid + no.Ask) / 2
	spread := yes.Ask + no.Ask

	profitPct := 0.0
	if spread > 0 {
		profitPct = (1.00 - spread - spread*cfg.FeeRatePct) / spread * 100
	}

	return BinaryPrice{
		Timestamp: at, Symbol: symbol,
		YesBid: yes.Bid, YesAsk: yes.Ask, YesMid: yesMid,
		NoBid: no.Bid, NoAsk: no.Ask, NoMid: noMid,
		Spread:             spread,
		ArbitrageFlag:      spread < cfg.SpreadThreshold,
		EstimatedProfitPct: profitPct,
	}
}

// EligibleForEntry reports whether a detected opportunity passes the
// strategy's entry gates: the arbitrage flag set, estimated profit
// clearing the configured minimum, and no existing position already
// open for the same market.
func EligibleForEntry(cfg Config, price BinaryPrice, hasExistingPosition bool) bool {
	if hasExistingPosition {
		return false
	}
	if !price.ArbitrageFlag {
		return false
	}
	return price.EstimatedProfitPct >= cfg.MinProfitPct
}

// ExitReason names why the early-exit monitor closed a position.
type ExitReason string

const (
	ExitNone            ExitReason = ""
	ExitLockProfit      ExitReason = "lock_profit"      // current_spread >= 1.00
	ExitBonus           ExitReason = "bonus"             // current_spread > 1.02
	ExitNearResolution  ExitReason = "near_resolution"   // < 24h to resolution and spread >= 0.99
)

// EvaluateExit applies the early-exit monitor's three rules to an open
// position, given the current combined spread and time remaining
// until the market resolves.
func EvaluateExit(currentSpread float64, timeToResolution time.Duration) ExitReason {
	if currentSpread > 1.02 {
		return ExitBonus
	}
	if currentSpread >= 1.00 {
		return ExitLockProfit
	}
	if timeToResolution < 24*time.Hour && currentSpread >= 0.99 {
		return ExitNearResolution
	}
	return ExitNone
}

// LegFillReport describes how much of a two-leg entry actually filled.
type LegFillReport struct {
	YesFilled bool
	NoFilled  bool
}

// UnwindSide names which leg must be closed at best available price
// when only one side of a paired entry fills — the strategy never
// holds directional exposure on a partial fill.
func UnwindSide(r LegFillReport) (symbol string, mustClose bool) {
	switch {
	case r.YesFilled && !r.NoFilled:
		return "yes", true
	case r.NoFilled && !r.YesFilled:
		return "no", true
	default:
		return "", false
	}
}
