// Package indicator provides technical indicator calculations over candle
// windows. All functions are pure: they read a window slice and return
// values, holding no state between calls. Strategies re-derive what they
// need from the window on every evaluation, so a window replay always yields
// the same indicator values.
package indicator

import (
	"math"

	"github.com/gamboaalejandro/trading-bot/internal/model"
)

// Closes extracts the close prices from a candle window, oldest first.
func Closes(window []model.Candle) []float64 {
	out := make([]float64, len(window))
	for i := range window {
		out[i] = window[i].Close
	}
	return out
}

// SMA returns the simple moving average of the last period values.
// ok is false when there are fewer than period values.
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// StdDev returns the sample standard deviation of the last period values.
func StdDev(values []float64, period int) (float64, bool) {
	if period <= 1 || len(values) < period {
		return 0, false
	}
	mean, _ := SMA(values, period)
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(period-1)), true
}

// EMASeries computes the exponential moving average for every bar, seeded
// with the SMA of the first period values. Entries before index period-1 are
// NaN. Returns nil when there are fewer than period values.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, len(values))
	mult := 2.0 / float64(period+1)

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
		if i < period-1 {
			out[i] = math.NaN()
		}
	}
	out[period-1] = seed / float64(period)

	for i := period; i < len(values); i++ {
		out[i] = values[i]*mult + out[i-1]*(1-mult)
	}
	return out
}

// EMA returns the exponential moving average at the final bar.
func EMA(values []float64, period int) (float64, bool) {
	series := EMASeries(values, period)
	if series == nil {
		return 0, false
	}
	return series[len(series)-1], true
}

// RSI returns the Relative Strength Index at the final bar using Wilder's
// smoothing, seeded with the average gain/loss of the first period deltas.
// Requires at least period+1 values.
func RSI(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period+1 {
		return 0, false
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	p := float64(period)
	for i := period + 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

// ATR returns the Average True Range at the final bar: the mean of the last
// period true ranges. Requires at least period+1 candles so every true range
// has a previous close.
func ATR(window []model.Candle, period int) (float64, bool) {
	if period <= 0 || len(window) < period+1 {
		return 0, false
	}
	sum := 0.0
	for i := len(window) - period; i < len(window); i++ {
		sum += window[i].TrueRange(window[i-1].Close)
	}
	return sum / float64(period), true
}

// Bollinger returns the middle (SMA), upper, and lower bands at the final
// bar: middle ± k standard deviations.
func Bollinger(values []float64, period int, k float64) (middle, upper, lower float64, ok bool) {
	middle, ok = SMA(values, period)
	if !ok {
		return 0, 0, 0, false
	}
	std, ok := StdDev(values, period)
	if !ok {
		return 0, 0, 0, false
	}
	return middle, middle + k*std, middle - k*std, true
}
