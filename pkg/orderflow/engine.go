// Package orderflow derives delta, cumulative delta, and buy/sell
// pressure from a bucket's volume profile rows.
package orderflow

import (
	"time"

	"auctioncore/pkg/market"
)

// CVDLookup returns the cumulative delta as of the bucket immediately
// before the given one, or 0 when no prior history exists for the
// symbol. The live engine and the backtest runner both pass a closure
// over the previous bucket's CVD kept in memory.
type CVDLookup func(symbol string, before time.Time) float64

// Compute derives the order-flow row for one bucket's profile rows.
func Compute(bucket time.Time, symbol string, rows []market.VolumeProfileRow, prevCVD CVDLookup) market.OrderFlowRow {
	var buys, sells float64
	for _, r := range rows {
		buys += r.BuyVol
		sells += r.SellVol
	}

	total := buys + sells
	if total == 0 {
		return market.OrderFlowRow{
			Bucket:          bucket,
			Symbol:          symbol,
			Delta:           0,
			CumulativeDelta: prevCVD(symbol, bucket),
			AggressiveBuys:  0,
			AggressiveSells: 0,
			BuyPressure:     50.0,
			SellPressure:    50.0,
		}
	}

	delta := buys - sells
	buyPressure := 100 * buys / maxFloat(1, total)
	sellPressure := 100 * sells / maxFloat(1, total)

	return market.OrderFlowRow{
		Bucket:          bucket,
		Symbol:          symbol,
		Delta:           delta,
		CumulativeDelta: prevCVD(symbol, bucket) + delta,
		AggressiveBuys:  buys,
		AggressiveSells: sells,
		BuyPressure:     buyPressure,
		SellPressure:    sellPressure,
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
