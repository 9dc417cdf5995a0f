// Package profile computes per-bucket volume profiles: the
// distribution of traded volume across price levels within a one
// minute window, and the POC/VAH/VAL/LVN/HVN metrics derived from it.
package profile

import (
	"math"
	"sort"
	"time"

	"auctioncore/pkg/market"
)

const (
	valueAreaTarget = 0.70
	lvnFactor       = 0.30
	hvnFactor       = 1.50
	minCandleLevels = 10
	minLevelStep    = 0.10
)

type level struct {
	price float64
	buy   float64
	sell  float64
}

// Result is the output of one bucket's computation: the per-level
// rows to upsert plus the derived metrics row.
type Result struct {
	Rows    []market.VolumeProfileRow
	Metrics market.ProfileMetrics
}

// Compute builds the profile for a bucket, preferring ticks when any
// are present for the bucket and falling back to the candle
// approximation otherwise.
func Compute(bucket time.Time, symbol string, ticks []market.Tick, candles []market.Candle) Result {
	var levels map[float64]*level
	if len(ticks) > 0 {
		levels = fromTicks(ticks)
	} else {
		levels = fromCandles(candles)
	}
	return build(bucket, symbol, levels)
}

func fromTicks(ticks []market.Tick) map[float64]*level {
	sorted := make([]market.Tick, len(ticks))
	copy(sorted, ticks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	levels := make(map[float64]*level)
	prevPrice := 0.0
	for i, t := range sorted {
		lv := levelFor(levels, t.Price)
		lv.price = t.Price

		switch {
		case i == 0:
			half := math.Floor(t.Size / 2)
			lv.buy += half
			lv.sell += t.Size - half
		case t.Price > prevPrice:
			lv.buy += t.Size
		case t.Price < prevPrice:
			lv.sell += t.Size
		default:
			// Odd-size remainder policy: remainder to the sell side.
			half := math.Floor(t.Size / 2)
			lv.buy += half
			lv.sell += t.Size - half
		}
		prevPrice = t.Price
	}
	return levels
}

func fromCandles(candles []market.Candle) map[float64]*level {
	levels := make(map[float64]*level)
	for _, c := range candles {
		rng := c.High - c.Low
		step := rng / minCandleLevels
		if step < minLevelStep {
			step = minLevelStep
		}

		numLevels := minCandleLevels
		if step > 0 {
			if n := int(rng/step) + 1; n > numLevels {
				numLevels = n
			}
		}

		perLevel := c.Volume / float64(numLevels)
		bullish := c.Close >= c.Open

		for i := 0; i < numLevels; i++ {
			price := c.Low + float64(i)*step
			if price > c.High {
				price = c.High
			}
			lv := levelFor(levels, price)
			lv.price = price
			if bullish {
				lv.buy += perLevel * 0.60
				lv.sell += perLevel * 0.40
			} else {
				lv.buy += perLevel * 0.40
				lv.sell += perLevel * 0.60
			}
		}
	}
	return levels
}

func levelFor(levels map[float64]*level, price float64) *level {
	lv, ok := levels[price]
	if !ok {
		lv = &level{price: price}
		levels[price] = lv
	}
	return lv
}

func build(bucket time.Time, symbol string, levels map[float64]*level) Result {
	prices := make([]float64, 0, len(levels))
	for p := range levels {
		prices = append(prices, p)
	}
	sort.Float64s(prices)

	rows := make([]market.VolumeProfileRow, 0, len(prices))
	totals := make([]float64, len(prices))
	var totalVolume float64

	for i, p := range prices {
		lv := levels[p]
		total := lv.buy + lv.sell
		totals[i] = total
		totalVolume += total

		rows = append(rows, market.VolumeProfileRow{
			Bucket:     bucket,
			Symbol:     symbol,
			PriceLevel: p,
			TotalVol:   total,
			BuyVol:     lv.buy,
			SellVol:    lv.sell,
			TradeCount: 1,
		})
	}

	// Per-level shares of a candle's volume do not sum back exactly in
	// floating point; round the total so it matches the input volume.
	totalVolume = math.Round(totalVolume*1e9) / 1e9
	metrics := market.ProfileMetrics{Bucket: bucket, Symbol: symbol, TotalVolume: totalVolume}
	if len(prices) == 0 {
		return Result{Rows: rows, Metrics: metrics}
	}

	pocIdx := argmaxLowestTie(totals)
	metrics.POC = prices[pocIdx]

	lo, hi := expandValueArea(totals, pocIdx, totalVolume)
	metrics.VAL = prices[lo]
	metrics.VAH = prices[hi]

	mean := totalVolume / float64(len(prices))
	for i, p := range prices {
		switch {
		case totals[i] < lvnFactor*mean:
			metrics.LVNs = append(metrics.LVNs, p)
		case totals[i] > hvnFactor*mean:
			metrics.HVNs = append(metrics.HVNs, p)
		}
	}

	return Result{Rows: rows, Metrics: metrics}
}

// argmaxLowestTie returns the index of the maximum value, preferring
// the lowest index (lowest price level) on ties.
func argmaxLowestTie(totals []float64) int {
	best := 0
	for i := 1; i < len(totals); i++ {
		if totals[i] > totals[best] {
			best = i
		}
	}
	return best
}

// expandValueArea grows [lo,hi] outward from pocIdx until the
// accumulated volume reaches 70% of total, preferring upward
// expansion when both neighbors tie.
func expandValueArea(totals []float64, pocIdx int, totalVolume float64) (lo, hi int) {
	lo, hi = pocIdx, pocIdx
	accumulated := totals[pocIdx]
	target := valueAreaTarget * totalVolume

	for accumulated < target {
		hasLo := lo-1 >= 0
		hasHi := hi+1 < len(totals)
		if !hasLo && !hasHi {
			break
		}

		var lowVal, highVal float64
		if hasLo {
			lowVal = totals[lo-1]
		}
		if hasHi {
			highVal = totals[hi+1]
		}

		switch {
		case hasHi && (!hasLo || highVal >= lowVal):
			hi++
			accumulated += totals[hi]
		case hasLo:
			lo--
			accumulated += totals[lo]
		}
	}
	return lo, hi
}

// FastMetrics computes POC/VAH/VAL/TotalVolume in memory from a
// candle series, without producing per-level rows or touching the
// store. Nothing in this module calls it; the backtest runner builds
// its profiles with Compute.
func FastMetrics(symbol string, bucket time.Time, candles []market.Candle) market.ProfileMetrics {
	levels := fromCandles(candles)
	return build(bucket, symbol, levels).Metrics
}
