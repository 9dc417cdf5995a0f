// Package aggression scores how aggressively flow is hitting one side
// of the market from a volume spike, CVD momentum, and pressure
// extremes.
package aggression

import (
	"math"

	"auctioncore/pkg/market"
)

const aggressiveThreshold = 50.0

// Score computes the 0-100 aggressive-flow reading.
//
// currentVolume is the latest bar's volume; avgVolume is the lookback
// average. cvdMomentum is the change in cumulative delta over the
// lookback window. buyPressure/sellPressure come from the latest
// OrderFlowRow.
func Score(currentVolume, avgVolume, cvdMomentum, buyPressure, sellPressure float64) market.AggressionReading {
	var score float64

	ratio := 0.0
	if avgVolume > 0 {
		ratio = currentVolume / avgVolume
	}
	switch {
	case ratio >= 3.0:
		score += 30
	case ratio >= 2.0:
		score += 20
	case ratio >= 1.5:
		score += 10
	}

	absMom := math.Abs(cvdMomentum)
	switch {
	case absMom >= 2000:
		score += 40
	case absMom >= 1000:
		score += 30
	case absMom >= 500:
		score += 20
	case absMom >= 100:
		score += 10
	}

	maxPressure := math.Max(buyPressure, sellPressure)
	switch {
	case maxPressure >= 80:
		score += 30
	case maxPressure >= 70:
		score += 20
	case maxPressure >= 60:
		score += 10
	}

	direction := market.DirectionNeutral
	switch {
	case buyPressure >= 70 || cvdMomentum > 500:
		direction = market.DirectionBuy
	case sellPressure >= 70 || cvdMomentum < -500:
		direction = market.DirectionSell
	}

	return market.AggressionReading{
		Score:        score,
		Direction:    direction,
		IsAggressive: score >= aggressiveThreshold,
	}
}
