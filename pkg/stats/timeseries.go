// Package stats provides the rolling-window and correlation arithmetic
// shared by the live engine's per-symbol windows and the backtest
// report's performance metrics.
package stats

import (
	"math"
)

// RollingWindowStats is the result of one rolling-window pass.
type RollingWindowStats struct {
	Mean     float64
	Std      float64
	Variance float64
	Count    int
}

// CalculateRollingStats computes mean, variance, and stddev over the
// last period samples in a single pass (period <= 0 or > len(data)
// uses the whole series).
func CalculateRollingStats(data []float64, period int) RollingWindowStats {
	if len(data) == 0 {
		return RollingWindowStats{}
	}

	n := len(data)
	if period <= 0 || period > n {
		period = n
	}
	recent := data[n-period:]

	var sum float64
	for _, val := range recent {
		sum += val
	}
	mean := sum / float64(len(recent))

	var variance float64
	for _, val := range recent {
		diff := val - mean
		variance += diff * diff
	}
	variance /= float64(len(recent))

	return RollingWindowStats{
		Mean:     mean,
		Std:      math.Sqrt(variance),
		Variance: variance,
		Count:    len(recent),
	}
}

// Mean returns the arithmetic mean of data.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, val := range data {
		sum += val
	}
	return sum / float64(len(data))
}

// Variance returns the population variance of data.
func Variance(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	mean := Mean(data)
	var variance float64
	for _, val := range data {
		diff := val - mean
		variance += diff * diff
	}
	return variance / float64(len(data))
}

// StdDev returns the population standard deviation of data.
func StdDev(data []float64) float64 {
	return math.Sqrt(Variance(data))
}

// ZScore returns (value - mean) / std, 0 if std is ~0.
func ZScore(value, mean, std float64) float64 {
	if std < 1e-10 {
		return 0
	}
	return (value - mean) / std
}

// Correlation returns the Pearson correlation coefficient between x and y.
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}

	meanX := Mean(x)
	meanY := Mean(y)

	var numerator, varX, varY float64
	for i := range x {
		diffX := x[i] - meanX
		diffY := y[i] - meanY
		numerator += diffX * diffY
		varX += diffX * diffX
		varY += diffY * diffY
	}

	denominator := math.Sqrt(varX * varY)
	if denominator < 1e-10 {
		return 0
	}
	return numerator / denominator
}

// Covariance returns the population covariance between x and y.
func Covariance(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}

	meanX := Mean(x)
	meanY := Mean(y)

	var covariance float64
	for i := range x {
		covariance += (x[i] - meanX) * (y[i] - meanY)
	}
	return covariance / float64(len(x))
}

// Beta returns Cov(x,y)/Var(y), the regression coefficient of x on y,
// clamped to [0.5, 2.0] — a hedge ratio is never trusted outside that
// range without a human looking at it first.
func Beta(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 1.0
	}

	variance := Variance(y)
	if variance < 1e-10 {
		return 1.0
	}

	beta := Covariance(x, y) / variance
	if beta < 0.5 {
		return 0.5
	}
	if beta > 2.0 {
		return 2.0
	}
	return beta
}

// LinearRegression fits y = slope*x + intercept by least squares.
func LinearRegression(x, y []float64) (slope, intercept float64) {
	if len(x) != len(y) || len(x) == 0 {
		return 0, 0
	}

	meanX := Mean(x)
	meanY := Mean(y)

	var numerator, denominator float64
	for i := range x {
		diffX := x[i] - meanX
		numerator += diffX * (y[i] - meanY)
		denominator += diffX * diffX
	}
	if denominator < 1e-10 {
		return 0, meanY
	}

	slope = numerator / denominator
	intercept = meanY - slope*meanX
	return slope, intercept
}

// CorrelationStats bundles the three pairwise statistics callers
// typically want together.
type CorrelationStats struct {
	Correlation float64
	Covariance  float64
	Beta        float64
}

// CalculateCorrelation computes Correlation, Covariance, and Beta in one call.
func CalculateCorrelation(x, y []float64) CorrelationStats {
	return CorrelationStats{
		Correlation: Correlation(x, y),
		Covariance:  Covariance(x, y),
		Beta:        Beta(x, y),
	}
}
