// Package indicator enriches raw OHLCV bars with the derived fields consumed
// by the built-in strategies. Enrichment is a pure function: each output bar
// depends only on bars at or before it, never on later data.
package indicator

import (
	"math"

	"tradesim/internal/domain"
)

const (
	smaPeriod = 20
	emaPeriod = 20
	rsiPeriod = 14
	atrPeriod = 14
	bbPeriod  = 20
	bbStdDev  = 2.0
)

// Enrich returns a copy of bars with indicator fields populated. Bars inside
// the warmup window keep zero-valued indicators, which strategies treat as
// "not ready". The input slice is never mutated.
func Enrich(bars []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, len(bars))
	copy(out, bars)

	closes := make([]float64, len(bars))
	for i := range bars {
		closes[i] = bars[i].Close
	}

	sma := rollingMean(closes, smaPeriod)
	ema := exponentialMA(closes, emaPeriod)
	rsi := relativeStrength(closes, rsiPeriod)
	atr := averageTrueRange(bars, atrPeriod)
	bbUp, bbLo := bollinger(closes, bbPeriod, bbStdDev)

	for i := range out {
		out[i].Ind = domain.Indicators{
			SMA20:   sma[i],
			EMA20:   ema[i],
			RSI14:   rsi[i],
			ATR14:   atr[i],
			BBUpper: bbUp[i],
			BBLower: bbLo[i],
		}
	}
	return out
}

// rollingMean computes a simple moving average; zeros during warmup.
func rollingMean(x []float64, p int) []float64 {
	out := make([]float64, len(x))
	var sum float64
	for i := range x {
		sum += x[i]
		if i >= p {
			sum -= x[i-p]
		}
		if i >= p-1 {
			out[i] = sum / float64(p)
		}
	}
	return out
}

// exponentialMA seeds with the SMA of the first p values, then applies the
// standard 2/(p+1) smoothing.
func exponentialMA(x []float64, p int) []float64 {
	out := make([]float64, len(x))
	if len(x) < p {
		return out
	}
	k := 2.0 / float64(p+1)

	var seed float64
	for i := 0; i < p; i++ {
		seed += x[i]
	}
	out[p-1] = seed / float64(p)
	for i := p; i < len(x); i++ {
		out[i] = (x[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// relativeStrength computes Wilder-smoothed RSI; zeros during warmup.
func relativeStrength(x []float64, p int) []float64 {
	out := make([]float64, len(x))
	if len(x) <= p {
		return out
	}

	var gain, loss float64
	for i := 1; i <= p; i++ {
		d := x[i] - x[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(p)
	avgLoss := loss / float64(p)
	out[p] = rsiFrom(avgGain, avgLoss)

	for i := p + 1; i < len(x); i++ {
		d := x[i] - x[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(p-1) + g) / float64(p)
		avgLoss = (avgLoss*float64(p-1) + l) / float64(p)
		out[i] = rsiFrom(avgGain, avgLoss)
	}
	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// averageTrueRange computes Wilder-smoothed ATR; zeros during warmup.
func averageTrueRange(bars []domain.Bar, p int) []float64 {
	out := make([]float64, len(bars))
	if len(bars) <= p {
		return out
	}

	tr := make([]float64, len(bars))
	tr[0] = bars[0].High - bars[0].Low
	for i := 1; i < len(bars); i++ {
		hl := bars[i].High - bars[i].Low
		hc := abs(bars[i].High - bars[i-1].Close)
		lc := abs(bars[i].Low - bars[i-1].Close)
		tr[i] = max3(hl, hc, lc)
	}

	var sum float64
	for i := 0; i <= p; i++ {
		sum += tr[i]
	}
	atr := sum / float64(p+1)
	out[p] = atr
	for i := p + 1; i < len(bars); i++ {
		atr = (atr*float64(p-1) + tr[i]) / float64(p)
		out[i] = atr
	}
	return out
}

// bollinger computes upper/lower bands at k population standard deviations
// around the rolling mean; zeros during warmup.
func bollinger(x []float64, p int, k float64) (upper, lower []float64) {
	upper = make([]float64, len(x))
	lower = make([]float64, len(x))

	var sum, sum2 float64
	for i := range x {
		sum += x[i]
		sum2 += x[i] * x[i]
		if i >= p {
			sum -= x[i-p]
			sum2 -= x[i-p] * x[i-p]
		}
		if i < p-1 {
			continue
		}
		m := sum / float64(p)
		v := sum2/float64(p) - m*m
		if v < 0 {
			v = 0
		}
		sd := math.Sqrt(v)
		upper[i] = m + k*sd
		lower[i] = m - k*sd
	}
	return upper, lower
}

func abs(x float64) float64 {
	return math.Abs(x)
}

func max3(a, b, c float64) float64 {
	return math.Max(a, math.Max(b, c))
}
