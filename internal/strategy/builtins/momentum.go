package builtins

import (
	"context"

	"tradesim/internal/domain"
	"tradesim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Momentum)(nil)

// Momentum goes with the prevailing trend: long when RSI, price, and the
// moving-average stack all point up, short on the mirror conditions. Stops
// and targets are ATR multiples of the entry.
type Momentum struct {
	stopMult   float64
	targetMult float64
}

// NewMomentum creates a momentum strategy. Recognised params: atr_stop_mult
// (default 1.5) and atr_target_mult (default 3.0).
func NewMomentum(params map[string]float64) *Momentum {
	return &Momentum{
		stopMult:   param(params, "atr_stop_mult", 1.5),
		targetMult: param(params, "atr_target_mult", 3.0),
	}
}

// Name returns "momentum".
func (s *Momentum) Name() string { return "momentum" }

// Init performs no setup; the strategy is stateless.
func (s *Momentum) Init(_ context.Context) error { return nil }

// GenerateSignals emits at most one signal per call, for the latest bar.
func (s *Momentum) GenerateSignals(_ context.Context, history []domain.Bar) ([]domain.Signal, error) {
	if len(history) < warmupBars {
		return nil, nil
	}
	latest := history[len(history)-1]
	ind := latest.Ind
	if ind.SMA20 == 0 || ind.EMA20 == 0 || ind.ATR14 == 0 {
		return nil, nil
	}

	up := ind.RSI14 > 50 && latest.Close > ind.SMA20 && ind.EMA20 > ind.SMA20
	down := ind.RSI14 < 50 && latest.Close < ind.SMA20 && ind.EMA20 < ind.SMA20

	switch {
	case up:
		return []domain.Signal{{
			Symbol:     latest.Symbol,
			Direction:  domain.DirectionLong,
			Confidence: 0.7,
			Timestamp:  latest.Timestamp,
			RefPrice:   latest.Close,
		}}, nil
	case down:
		return []domain.Signal{{
			Symbol:     latest.Symbol,
			Direction:  domain.DirectionShort,
			Confidence: 0.7,
			Timestamp:  latest.Timestamp,
			RefPrice:   latest.Close,
		}}, nil
	}
	return nil, nil
}

// EntryExit enters at the signal reference price with an ATR-multiple stop
// and target.
func (s *Momentum) EntryExit(_ string, history []domain.Bar, sig domain.Signal) (entry, stop, target float64, err error) {
	atr := history[len(history)-1].Ind.ATR14
	entry = sig.RefPrice

	if sig.Direction == domain.DirectionLong {
		stop = entry - atr*s.stopMult
		target = entry + atr*s.targetMult
	} else {
		stop = entry + atr*s.stopMult
		target = entry - atr*s.targetMult
	}
	return entry, stop, target, nil
}
