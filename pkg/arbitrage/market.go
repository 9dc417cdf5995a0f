// Package arbitrage implements the binary-market (YES/NO) arbitrage
// engine: it watches paired YES/NO prices, flags when their combined
// ask cost falls below a cost threshold, and manages the resulting
// dual-leg position from entry through resolution or early exit.
package arbitrage

import "time"

// BinaryMarket is one two-outcome market tracked by the engine. A
// binary market's YES and NO tokens settle to exactly one of them
// paying $1 and the other $0.
type BinaryMarket struct {
	MarketID  string
	Symbol    string // local shorthand used across price/position lookups
	YesToken  string
	NoToken   string
	Question  string
	Category  string
	EndDate   time.Time
	Status    string // "active", "closed", "resolved"
}

// BinaryPrice is one observed quote pair for a binary market.
type BinaryPrice struct {
	Timestamp          time.Time
	Symbol             string
	YesBid, YesAsk, YesMid float64
	NoBid, NoAsk, NoMid    float64
	Spread               float64 // YesAsk + NoAsk
	ArbitrageFlag        bool
	EstimatedProfitPct   float64
}

// PositionStatus enumerates a binary arbitrage position's lifecycle.
type PositionStatus string

const (
	PositionOpen     PositionStatus = "open"
	PositionClosing  PositionStatus = "closing"
	PositionClosed   PositionStatus = "closed"
)

// BinaryPosition is a paired YES+NO holding entered at a combined
// price below the cost threshold.
type BinaryPosition struct {
	Symbol       string
	MarketID     string
	YesQty       float64
	NoQty        float64
	YesEntry     float64
	NoEntry      float64
	EntrySpread  float64
	Status       PositionStatus
	OpenedAt     time.Time
}

// CostBasis is the combined entry price paid for one unit of the pair.
func (p BinaryPosition) CostBasis() float64 {
	return p.YesEntry + p.NoEntry
}

// GuaranteedProfitPct is the profit realized at resolution: the pair
// always pays exactly $1 regardless of outcome, so the edge is fixed
// at entry and doesn't depend on which side resolves true.
func (p BinaryPosition) GuaranteedProfitPct() float64 {
	cost := p.CostBasis()
	if cost <= 0 {
		return 0
	}
	return (1.0 - cost) / cost * 100
}
