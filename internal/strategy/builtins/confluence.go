package builtins

import (
	"context"

	"tradesim/internal/domain"
	"tradesim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Confluence)(nil)

// Confluence scores a checklist of directional conditions and signals when
// enough of them line up. Confidence is the fraction of conditions met, so a
// higher min_confidence demands a cleaner setup.
type Confluence struct {
	rsiOversold   float64
	rsiOverbought float64
	minConfidence float64
	atrMult       float64
	rewardMult    float64 // target distance as a multiple of the stop distance
}

// NewConfluence creates a confluence strategy. Recognised params:
// rsi_oversold (30), rsi_overbought (70), min_confidence (0.6),
// atr_mult (2.0), reward_mult (2.0).
func NewConfluence(params map[string]float64) *Confluence {
	return &Confluence{
		rsiOversold:   param(params, "rsi_oversold", 30),
		rsiOverbought: param(params, "rsi_overbought", 70),
		minConfidence: param(params, "min_confidence", 0.6),
		atrMult:       param(params, "atr_mult", 2.0),
		rewardMult:    param(params, "reward_mult", 2.0),
	}
}

// Name returns "confluence".
func (s *Confluence) Name() string { return "confluence" }

// Init performs no setup; the strategy is stateless.
func (s *Confluence) Init(_ context.Context) error { return nil }

// GenerateSignals emits at most one signal per call, for the latest bar.
// The long side wins ties, matching the checklist evaluation order.
func (s *Confluence) GenerateSignals(_ context.Context, history []domain.Bar) ([]domain.Signal, error) {
	if len(history) < warmupBars {
		return nil, nil
	}
	latest := history[len(history)-1]
	prev := history[len(history)-2]
	ind := latest.Ind
	if ind.SMA20 == 0 || ind.ATR14 == 0 {
		return nil, nil
	}

	longConds := []bool{
		ind.RSI14 < s.rsiOversold,
		latest.Close < ind.BBLower,
		ind.EMA20 > ind.SMA20,
		latest.Close > prev.Close,
	}
	shortConds := []bool{
		ind.RSI14 > s.rsiOverbought,
		latest.Close > ind.BBUpper,
		ind.EMA20 < ind.SMA20,
		latest.Close < prev.Close,
	}

	longConf := score(longConds)
	shortConf := score(shortConds)

	switch {
	case longConf >= s.minConfidence:
		return []domain.Signal{{
			Symbol:     latest.Symbol,
			Direction:  domain.DirectionLong,
			Confidence: longConf,
			Timestamp:  latest.Timestamp,
			RefPrice:   latest.Close,
		}}, nil
	case shortConf >= s.minConfidence:
		return []domain.Signal{{
			Symbol:     latest.Symbol,
			Direction:  domain.DirectionShort,
			Confidence: shortConf,
			Timestamp:  latest.Timestamp,
			RefPrice:   latest.Close,
		}}, nil
	}
	return nil, nil
}

// EntryExit places the stop at atr_mult ATRs and the target at reward_mult
// times the stop distance.
func (s *Confluence) EntryExit(_ string, history []domain.Bar, sig domain.Signal) (entry, stop, target float64, err error) {
	atr := history[len(history)-1].Ind.ATR14
	entry = sig.RefPrice
	riskDist := atr * s.atrMult

	if sig.Direction == domain.DirectionLong {
		stop = entry - riskDist
		target = entry + riskDist*s.rewardMult
	} else {
		stop = entry + riskDist
		target = entry - riskDist*s.rewardMult
	}
	return entry, stop, target, nil
}

func score(conds []bool) float64 {
	met := 0
	for _, c := range conds {
		if c {
			met++
		}
	}
	return float64(met) / float64(len(conds))
}
