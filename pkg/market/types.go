// Package market holds the domain entities shared across the engines,
// the strategy, the portfolio manager, and both the live and backtest
// drivers. None of these types own I/O; storage and transport
// boundaries convert to and from them.
package market

import "time"

// Side is a trade direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// State is a market regime classification emitted by the state detector.
type State string

const (
	StateBalance        State = "BALANCE"
	StateImbalanceUp    State = "IMBALANCE_UP"
	StateImbalanceDown  State = "IMBALANCE_DOWN"
	StateUnknown        State = "UNKNOWN"
)

// Candle is a 1-minute OHLCV bar.
//
// Invariants: Low <= {Open,Close} <= High; Volume >= 0; (Time,Symbol)
// is unique at the store boundary; an upsert overwrites the OHLCV
// fields in place.
type Candle struct {
	Time   time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Tick is an individual trade print. When a tick series exists for a
// bucket it takes precedence over the candle-approximation path for
// volume-profile computation. (Time,Symbol,Price) is unique.
type Tick struct {
	Time   time.Time
	Symbol string
	Price  float64
	Size   float64
	Venue  string
}

// VolumeProfileRow is one price level's accumulated volume within a
// one-minute bucket. TotalVol = BuyVol + SellVol, truncated on tie.
type VolumeProfileRow struct {
	Bucket     time.Time
	Symbol     string
	PriceLevel float64
	TotalVol   float64
	BuyVol     float64
	SellVol    float64
	TradeCount int
}

// ProfileMetrics summarizes one bucket's volume profile.
//
// Invariant: VAL <= POC <= VAH.
type ProfileMetrics struct {
	Bucket      time.Time
	Symbol      string
	POC         float64
	VAH         float64
	VAL         float64
	TotalVolume float64
	LVNs        []float64
	HVNs        []float64
}

// OrderFlowRow is the derived delta/pressure state for one bucket.
//
// Delta = AggressiveBuys - AggressiveSells. CumulativeDelta(t) =
// CumulativeDelta(t-1) + Delta(t), seeded at 0 for a symbol's first
// bucket. BuyPressure + SellPressure == 100 (or 50/50 on an empty
// bucket).
type OrderFlowRow struct {
	Bucket           time.Time
	Symbol           string
	Delta            float64
	CumulativeDelta  float64
	AggressiveBuys   float64
	AggressiveSells  float64
	BuyPressure      float64
	SellPressure     float64
}

// MarketStateRow is one append-only detection tick.
type MarketStateRow struct {
	Time        time.Time
	Symbol      string
	State       State
	Confidence  float64
	BalanceHigh float64
	BalanceLow  float64
	POC         float64
}

// Direction is the flow bias reported by the aggressive-flow indicator
// and consumed by the strategy.
type Direction string

const (
	DirectionBuy     Direction = "BUY"
	DirectionSell    Direction = "SELL"
	DirectionNeutral Direction = "NEUTRAL"
)

// AggressionReading is the 0-100 aggressive-flow score plus the
// direction it favors.
type AggressionReading struct {
	Score        float64
	Direction    Direction
	IsAggressive bool
}
