package indicator

import (
	"math"

	"github.com/montanaflynn/stats"
)

// The functions in this file return one value per input price, with NaN
// during the warm-up period, so results index-align with the price series.

// RollingMean returns the trailing mean over period values.
func RollingMean(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	for i, v := range SMA(values, period) {
		out[i+period-1] = v
	}
	return out
}

// AlignedEMA returns the SMA-seeded EMA, NaN before the first full window.
// Leading NaN inputs are skipped so an EMA of an EMA stays well defined.
func AlignedEMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	if period <= 0 || len(values)-start < period {
		return out
	}
	for i, v := range EMA(values[start:], period) {
		out[start+i+period-1] = v
	}
	return out
}

// RSI computes the relative strength index from rolling means of gains and losses.
// A window with no movement at all is undefined.
func RSI(prices []float64, period int) []float64 {
	out := nanSlice(len(prices))
	if period <= 0 || len(prices) <= period {
		return out
	}
	gains := make([]float64, len(prices)-1)
	losses := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gains[i-1] = d
		} else {
			losses[i-1] = -d
		}
	}
	avgGain := SMA(gains, period)
	avgLoss := SMA(losses, period)
	for j := range avgGain {
		g, l := avgGain[j], avgLoss[j]
		i := j + period
		switch {
		case l == 0 && g == 0:
			continue
		case l == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+g/l)
		}
	}
	return out
}

// MACD returns the MACD line (fast EMA minus slow EMA) and its signal line.
func MACD(prices []float64, fast, slow, signal int) (line, signalLine []float64) {
	fastEMA := AlignedEMA(prices, fast)
	slowEMA := AlignedEMA(prices, slow)
	line = make([]float64, len(prices))
	for i := range prices {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	return line, AlignedEMA(line, signal)
}

// Bollinger returns the middle, upper and lower bands using the population
// standard deviation over the window.
func Bollinger(prices []float64, period int, width float64) (middle, upper, lower []float64) {
	middle = RollingMean(prices, period)
	upper = nanSlice(len(prices))
	lower = nanSlice(len(prices))
	if period <= 0 {
		return middle, upper, lower
	}
	for i := period - 1; i < len(prices); i++ {
		sd, err := stats.StandardDeviationPopulation(prices[i-period+1 : i+1])
		if err != nil {
			continue
		}
		upper[i] = middle[i] + width*sd
		lower[i] = middle[i] - width*sd
	}
	return middle, upper, lower
}

// CrossedAbove reports whether a moved from at-or-below b to above b at i.
// Any undefined operand yields false.
func CrossedAbove(a, b []float64, i int) bool {
	if i < 1 || !defined(a[i], b[i], a[i-1], b[i-1]) {
		return false
	}
	return a[i] > b[i] && a[i-1] <= b[i-1]
}

// CrossedBelow reports whether a moved from at-or-above b to below b at i.
func CrossedBelow(a, b []float64, i int) bool {
	if i < 1 || !defined(a[i], b[i], a[i-1], b[i-1]) {
		return false
	}
	return a[i] < b[i] && a[i-1] >= b[i-1]
}

func defined(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
