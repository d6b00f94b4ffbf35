// Package indicators computes technical analysis series over daily
// bars. Leading values that lack enough history are NaN; callers must
// check before comparing.
package indicators

import (
	"math"

	"finagent/internal/market"
)

// Standard parameter sets.
const (
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9

	RSIPeriod  = 14
	KDJPeriod  = 9
	BollPeriod = 20
	BollWidth  = 2.0
)

// SMA returns the simple moving average. Indices with fewer than
// period samples are NaN.
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA returns the exponential moving average seeded with the first
// value, defined for every index.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// MACD returns the DIF (fast EMA minus slow EMA), DEA (signal EMA of
// DIF), and histogram (2 * (DIF - DEA), provider convention) series.
func MACD(closes []float64) (dif, dea, hist []float64) {
	fast := EMA(closes, MACDFast)
	slow := EMA(closes, MACDSlow)

	dif = make([]float64, len(closes))
	for i := range closes {
		dif[i] = fast[i] - slow[i]
	}
	dea = EMA(dif, MACDSignal)

	hist = make([]float64, len(closes))
	for i := range closes {
		hist[i] = 2 * (dif[i] - dea[i])
	}
	return dif, dea, hist
}

// RSI returns the relative strength index with Wilder smoothing.
// The first period indices are NaN.
func RSI(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// KDJ returns the stochastic K, D, and J series over the given bars.
// K and D are smoothed 2/3 previous + 1/3 new; both start at 50.
func KDJ(bars []market.Bar, period int) (k, d, j []float64) {
	n := len(bars)
	k = make([]float64, n)
	d = make([]float64, n)
	j = make([]float64, n)

	prevK, prevD := 50.0, 50.0
	for i := 0; i < n; i++ {
		lo := i - period + 1
		if lo < 0 {
			lo = 0
		}
		highest, lowest := bars[i].High, bars[i].Low
		for _, b := range bars[lo:i] {
			if b.High > highest {
				highest = b.High
			}
			if b.Low < lowest {
				lowest = b.Low
			}
		}

		rsv := 50.0
		if highest > lowest {
			rsv = (bars[i].Close - lowest) / (highest - lowest) * 100
		}

		k[i] = prevK*2/3 + rsv/3
		d[i] = prevD*2/3 + k[i]/3
		j[i] = 3*k[i] - 2*d[i]
		prevK, prevD = k[i], d[i]
	}
	return k, d, j
}

// BOLL returns the Bollinger middle band (SMA), upper band, and lower
// band at the given width in standard deviations.
func BOLL(closes []float64, period int, width float64) (mid, upper, lower []float64) {
	mid = SMA(closes, period)
	upper = nanSlice(len(closes))
	lower = nanSlice(len(closes))

	for i := period - 1; i < len(closes); i++ {
		var sq float64
		for _, v := range closes[i-period+1 : i+1] {
			diff := v - mid[i]
			sq += diff * diff
		}
		sd := math.Sqrt(sq / float64(period))
		upper[i] = mid[i] + width*sd
		lower[i] = mid[i] - width*sd
	}
	return mid, upper, lower
}

// Pattern is a detected signal on the most recent bars.
type Pattern struct {
	Name   string
	Signal string // "bullish" or "bearish"
	Date   string
}

// DetectPatterns scans the latest bar for classic signals: MACD
// golden/dead crosses and RSI overbought/oversold crossings.
func DetectPatterns(bars []market.Bar) []Pattern {
	if len(bars) < 2 {
		return nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	last := len(bars) - 1
	date := bars[last].Date

	var patterns []Pattern

	dif, dea, _ := MACD(closes)
	if dif[last-1] <= dea[last-1] && dif[last] > dea[last] {
		patterns = append(patterns, Pattern{Name: "macd_golden_cross", Signal: "bullish", Date: date})
	}
	if dif[last-1] >= dea[last-1] && dif[last] < dea[last] {
		patterns = append(patterns, Pattern{Name: "macd_dead_cross", Signal: "bearish", Date: date})
	}

	rsi := RSI(closes, RSIPeriod)
	if !math.IsNaN(rsi[last]) {
		if rsi[last] > 70 {
			patterns = append(patterns, Pattern{Name: "rsi_overbought", Signal: "bearish", Date: date})
		}
		if rsi[last] < 30 {
			patterns = append(patterns, Pattern{Name: "rsi_oversold", Signal: "bullish", Date: date})
		}
	}

	return patterns
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
