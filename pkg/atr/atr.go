// Package atr computes the Average True Range over a candle series
// using Wilder's smoothing.
package atr

import (
	"math"

	"auctioncore/pkg/market"
)

// ATR accumulates true-range values over a fixed period and reports a
// Wilder-smoothed average.
type ATR struct {
	period      int
	value       float64
	prevClose   float64
	hasPrevious bool
	dataPoints  int
	trValues    []float64
}

// New creates an ATR indicator for the given period (bars).
func New(period int) *ATR {
	if period <= 0 {
		period = 14
	}
	return &ATR{
		period:   period,
		trValues: make([]float64, 0, period),
	}
}

// Update folds one more candle into the running ATR.
func (a *ATR) Update(c market.Candle) {
	tr := a.trueRange(c.High, c.Low, c.Close)

	a.trValues = append(a.trValues, tr)
	if len(a.trValues) > a.period {
		a.trValues = a.trValues[1:]
	}
	a.dataPoints++

	switch {
	case a.dataPoints <= a.period:
		sum := 0.0
		for _, v := range a.trValues {
			sum += v
		}
		a.value = sum / float64(len(a.trValues))
	default:
		a.value = ((a.value * float64(a.period-1)) + tr) / float64(a.period)
	}

	a.prevClose = c.Close
	a.hasPrevious = true
}

func (a *ATR) trueRange(high, low, close float64) float64 {
	if !a.hasPrevious {
		return high - low
	}
	highLow := high - low
	highClose := math.Abs(high - a.prevClose)
	lowClose := math.Abs(low - a.prevClose)

	tr := highLow
	if highClose > tr {
		tr = highClose
	}
	if lowClose > tr {
		tr = lowClose
	}
	return tr
}

// Value returns the current ATR.
func (a *ATR) Value() float64 { return a.value }

// Ready reports whether the indicator has seen a full period of bars.
func (a *ATR) Ready() bool { return a.dataPoints >= a.period }

// FromCandles computes the ATR value over an entire candle slice in
// one pass, used by the backtest driver which replays whole series
// rather than streaming bar-by-bar.
func FromCandles(candles []market.Candle, period int) float64 {
	a := New(period)
	for _, c := range candles {
		a.Update(c)
	}
	return a.Value()
}
