package builtins

import (
	"context"

	"tradesim/internal/domain"
	"tradesim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MeanReversion)(nil)

// MeanReversion fades extremes: long when price is stretched below the lower
// Bollinger band with an oversold RSI, short on the mirror setup. The target
// is the rolling mean itself; the stop sits one ATR multiple away.
type MeanReversion struct {
	rsiOversold   float64
	rsiOverbought float64
	stretch       float64 // required displacement from SMA20, e.g. 0.02 = 2%
	stopMult      float64
}

// NewMeanReversion creates a mean-reversion strategy. Recognised params:
// rsi_oversold (30), rsi_overbought (70), stretch (0.02), atr_stop_mult (1.0).
func NewMeanReversion(params map[string]float64) *MeanReversion {
	return &MeanReversion{
		rsiOversold:   param(params, "rsi_oversold", 30),
		rsiOverbought: param(params, "rsi_overbought", 70),
		stretch:       param(params, "stretch", 0.02),
		stopMult:      param(params, "atr_stop_mult", 1.0),
	}
}

// Name returns "mean-reversion".
func (s *MeanReversion) Name() string { return "mean-reversion" }

// Init performs no setup; the strategy is stateless.
func (s *MeanReversion) Init(_ context.Context) error { return nil }

// GenerateSignals emits at most one signal per call, for the latest bar.
func (s *MeanReversion) GenerateSignals(_ context.Context, history []domain.Bar) ([]domain.Signal, error) {
	if len(history) < warmupBars {
		return nil, nil
	}
	latest := history[len(history)-1]
	ind := latest.Ind
	if ind.SMA20 == 0 || ind.ATR14 == 0 || ind.BBLower == 0 {
		return nil, nil
	}

	oversold := ind.RSI14 < s.rsiOversold &&
		latest.Close < ind.BBLower &&
		latest.Close < ind.SMA20*(1-s.stretch)

	overbought := ind.RSI14 > s.rsiOverbought &&
		latest.Close > ind.BBUpper &&
		latest.Close > ind.SMA20*(1+s.stretch)

	switch {
	case oversold:
		return []domain.Signal{{
			Symbol:     latest.Symbol,
			Direction:  domain.DirectionLong,
			Confidence: 0.6,
			Timestamp:  latest.Timestamp,
			RefPrice:   latest.Close,
		}}, nil
	case overbought:
		return []domain.Signal{{
			Symbol:     latest.Symbol,
			Direction:  domain.DirectionShort,
			Confidence: 0.6,
			Timestamp:  latest.Timestamp,
			RefPrice:   latest.Close,
		}}, nil
	}
	return nil, nil
}

// EntryExit targets the rolling mean with a tight ATR stop.
func (s *MeanReversion) EntryExit(_ string, history []domain.Bar, sig domain.Signal) (entry, stop, target float64, err error) {
	latest := history[len(history)-1]
	atr := latest.Ind.ATR14
	entry = sig.RefPrice
	target = latest.Ind.SMA20

	if sig.Direction == domain.DirectionLong {
		stop = entry - atr*s.stopMult
	} else {
		stop = entry + atr*s.stopMult
	}
	return entry, stop, target, nil
}
