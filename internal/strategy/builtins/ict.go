package builtins

import (
	"context"
	"math"

	"tradesim/internal/domain"
	"tradesim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*ICT)(nil)

// po3Sizes are the power-of-three dealing-range widths, from scalping ranges
// out to yearly ranges.
var po3Sizes = []float64{3, 9, 27, 81, 243, 729, 2187}

// goldbachLevel is one institutional price level inside a dealing range,
// expressed as a percentage of the range width.
type goldbachLevel struct {
	pct           float64
	institutional bool // order blocks and fair value gaps react strongest
}

var goldbachLevels = []goldbachLevel{
	{0, false}, {100, false}, // range boundaries
	{11, true}, {89, true}, // order blocks
	{17, true}, {83, true}, // fair value gaps
	{29, false}, {71, false}, // liquidity voids
	{41, false}, {59, false}, // breakers
	{50, false}, // equilibrium
}

const (
	discountZone = 0.33 // range fraction below which price is at a discount
	premiumZone  = 0.67 // range fraction above which price is at a premium

	zoneBonus      = 0.1
	levelBonus     = 0.15
	expansionBonus = 0.2
)

// ICT trades power-of-three dealing ranges: price is snapped to a grid of
// width po3, bought in a strong discount and sold in a strong premium. The
// zone strength is the base score; confluence with an institutional Goldbach
// level or a range-expansion bar raises it. Stops sit at the range boundary
// behind the entry and targets at the opposite zone threshold.
type ICT struct {
	rangeLookback  int
	po3Size        float64 // fixed range width; 0 selects from recent swings
	minConfluence  float64
	levelTolerance float64 // Goldbach proximity as a fraction of price
	expansionMult  float64 // bar range multiple that counts as expansion
}

// NewICT creates an ICT strategy. Recognised params: range_lookback (60),
// po3_size (0 = auto from recent swings), min_confluence (0.6),
// level_tolerance (0.001), expansion_mult (1.5).
func NewICT(params map[string]float64) *ICT {
	return &ICT{
		rangeLookback:  int(param(params, "range_lookback", 60)),
		po3Size:        param(params, "po3_size", 0),
		minConfluence:  param(params, "min_confluence", 0.6),
		levelTolerance: param(params, "level_tolerance", 0.001),
		expansionMult:  param(params, "expansion_mult", 1.5),
	}
}

// Name returns "ict".
func (s *ICT) Name() string { return "ict" }

// Init performs no setup; the strategy is stateless.
func (s *ICT) Init(_ context.Context) error { return nil }

// GenerateSignals emits at most one signal per call, for the latest bar.
func (s *ICT) GenerateSignals(_ context.Context, history []domain.Bar) ([]domain.Signal, error) {
	if len(history) < s.rangeLookback {
		return nil, nil
	}
	window := history[len(history)-s.rangeLookback:]
	latest := window[len(window)-1]

	po3 := s.po3Size
	if po3 <= 0 {
		po3 = optimalPO3(window)
	}
	low, _ := dealingRange(latest.Close, po3)
	pct := (latest.Close - low) / po3

	var dir domain.Direction
	var strength float64
	switch {
	case pct <= discountZone:
		dir = domain.DirectionLong
		strength = (discountZone - pct) / discountZone
	case pct >= premiumZone:
		dir = domain.DirectionShort
		strength = (pct - premiumZone) / (1 - premiumZone)
	default:
		return nil, nil // equilibrium, no edge
	}

	score := strength + zoneBonus
	if lvl, dist := nearestGoldbachLevel(latest.Close, low, po3); lvl.institutional &&
		dist <= latest.Close*s.levelTolerance {
		score += levelBonus
	}
	if rangeExpansion(window, s.expansionMult) {
		score += expansionBonus
	}
	if score > 1 {
		score = 1
	}
	if score < s.minConfluence {
		return nil, nil
	}

	return []domain.Signal{{
		Symbol:     latest.Symbol,
		Direction:  dir,
		Confidence: score,
		Timestamp:  latest.Timestamp,
		RefPrice:   latest.Close,
	}}, nil
}

// EntryExit places the stop at the dealing-range boundary behind the entry
// and the target at the opposite zone threshold.
func (s *ICT) EntryExit(_ string, history []domain.Bar, sig domain.Signal) (entry, stop, target float64, err error) {
	po3 := s.po3Size
	if po3 <= 0 {
		window := history
		if len(window) > s.rangeLookback {
			window = window[len(window)-s.rangeLookback:]
		}
		po3 = optimalPO3(window)
	}
	low, high := dealingRange(sig.RefPrice, po3)

	entry = sig.RefPrice
	if sig.Direction == domain.DirectionLong {
		stop = low
		target = low + premiumZone*po3
	} else {
		stop = high
		target = low + discountZone*po3
	}
	return entry, stop, target, nil
}

// dealingRange snaps price onto the po3 grid and returns the surrounding
// range boundaries.
func dealingRange(price, po3 float64) (low, high float64) {
	low = math.Floor(price/po3) * po3
	return low, low + po3
}

// optimalPO3 picks the range width closest to the average five-bar swing of
// the window.
func optimalPO3(bars []domain.Bar) float64 {
	const swingWindow = 5
	if len(bars) < swingWindow {
		return po3Sizes[0]
	}

	var sum float64
	var n int
	for i := swingWindow - 1; i < len(bars); i++ {
		hi, lo := bars[i].High, bars[i].Low
		for j := i - swingWindow + 1; j < i; j++ {
			hi = math.Max(hi, bars[j].High)
			lo = math.Min(lo, bars[j].Low)
		}
		sum += hi - lo
		n++
	}
	avg := sum / float64(n)

	best := po3Sizes[0]
	for _, p := range po3Sizes[1:] {
		if math.Abs(avg-p) < math.Abs(avg-best) {
			best = p
		}
	}
	return best
}

// nearestGoldbachLevel returns the level closest to price within the dealing
// range starting at low, and its distance.
func nearestGoldbachLevel(price, low, po3 float64) (goldbachLevel, float64) {
	var nearest goldbachLevel
	minDist := math.Inf(1)
	for _, lvl := range goldbachLevels {
		dist := math.Abs(price - (low + po3*lvl.pct/100))
		if dist < minDist {
			minDist = dist
			nearest = lvl
		}
	}
	return nearest, minDist
}

// rangeExpansion reports whether the latest bar's range is at least mult
// times the average range of the preceding bars.
func rangeExpansion(bars []domain.Bar, mult float64) bool {
	n := len(bars)
	if n < 2 {
		return false
	}
	var sum float64
	for _, b := range bars[:n-1] {
		sum += b.High - b.Low
	}
	avg := sum / float64(n-1)
	latest := bars[n-1]
	return avg > 0 && latest.High-latest.Low >= mult*avg
}
