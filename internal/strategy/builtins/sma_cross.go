package builtins

import (
	"context"
	"fmt"

	"tradesim/internal/domain"
	"tradesim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It signals
// long when the short-period SMA crosses above the long-period SMA on the
// latest bar, and short when it crosses below. Both averages are recomputed
// from the visible history on every call, so the strategy carries no state
// between bars.
type SMACross struct {
	shortPeriod int
	longPeriod  int
	stopLook    int // bars of recent extremes used for the stop
	rewardMult  float64
}

// NewSMACross creates an SMA crossover strategy. Recognised params:
// short_period (10), long_period (30), stop_lookback (10), reward_mult (2.0).
func NewSMACross(params map[string]float64) *SMACross {
	return &SMACross{
		shortPeriod: int(param(params, "short_period", 10)),
		longPeriod:  int(param(params, "long_period", 30)),
		stopLook:    int(param(params, "stop_lookback", 10)),
		rewardMult:  param(params, "reward_mult", 2.0),
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string { return "sma-cross" }

// Init validates the period configuration.
func (s *SMACross) Init(_ context.Context) error {
	if s.shortPeriod <= 0 || s.longPeriod <= s.shortPeriod {
		return fmt.Errorf("sma-cross periods must satisfy 0 < short (%d) < long (%d)", s.shortPeriod, s.longPeriod)
	}
	return nil
}

// GenerateSignals detects a crossover completed on the latest bar.
func (s *SMACross) GenerateSignals(_ context.Context, history []domain.Bar) ([]domain.Signal, error) {
	// One extra bar so the previous relation is defined.
	if len(history) < s.longPeriod+1 {
		return nil, nil
	}

	latest := history[len(history)-1]

	curShort := smaAt(history, len(history)-1, s.shortPeriod)
	curLong := smaAt(history, len(history)-1, s.longPeriod)
	prevShort := smaAt(history, len(history)-2, s.shortPeriod)
	prevLong := smaAt(history, len(history)-2, s.longPeriod)

	crossedUp := prevShort <= prevLong && curShort > curLong
	crossedDown := prevShort >= prevLong && curShort < curLong

	switch {
	case crossedUp:
		return []domain.Signal{{
			Symbol:     latest.Symbol,
			Direction:  domain.DirectionLong,
			Confidence: 0.65,
			Timestamp:  latest.Timestamp,
			RefPrice:   latest.Close,
		}}, nil
	case crossedDown:
		return []domain.Signal{{
			Symbol:     latest.Symbol,
			Direction:  domain.DirectionShort,
			Confidence: 0.65,
			Timestamp:  latest.Timestamp,
			RefPrice:   latest.Close,
		}}, nil
	}
	return nil, nil
}

// EntryExit anchors the stop at the most recent swing extreme and the target
// at reward_mult times the resulting risk distance.
func (s *SMACross) EntryExit(_ string, history []domain.Bar, sig domain.Signal) (entry, stop, target float64, err error) {
	entry = sig.RefPrice

	look := s.stopLook
	if look > len(history) {
		look = len(history)
	}
	recent := history[len(history)-look:]

	if sig.Direction == domain.DirectionLong {
		stop = recent[0].Low
		for _, b := range recent {
			if b.Low < stop {
				stop = b.Low
			}
		}
		target = entry + (entry-stop)*s.rewardMult
	} else {
		stop = recent[0].High
		for _, b := range recent {
			if b.High > stop {
				stop = b.High
			}
		}
		target = entry - (stop-entry)*s.rewardMult
	}
	return entry, stop, target, nil
}

// smaAt computes the simple moving average of closes over the p bars ending
// at index i (inclusive).
func smaAt(bars []domain.Bar, i, p int) float64 {
	var sum float64
	for j := i - p + 1; j <= i; j++ {
		sum += bars[j].Close
	}
	return sum / float64(p)
}
