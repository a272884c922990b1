// Package builtins provides the built-in strategy implementations that ship
// with the tradesim platform.
package builtins

import (
	"fmt"

	"tradesim/internal/strategy"
)

// New constructs a built-in strategy by name, applying the given parameter
// overrides on top of each variant's defaults. Unknown names are an error so
// configuration typos surface before a run starts.
func New(name string, params map[string]float64) (strategy.Strategy, error) {
	switch name {
	case "momentum":
		return NewMomentum(params), nil
	case "mean-reversion":
		return NewMeanReversion(params), nil
	case "confluence":
		return NewConfluence(params), nil
	case "sma-cross":
		return NewSMACross(params), nil
	case "ict":
		return NewICT(params), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// param returns params[key] when present and the fallback otherwise.
func param(params map[string]float64, key string, fallback float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return fallback
}

// warmupBars is the minimum history length before any built-in strategy
// trusts its indicator fields.
const warmupBars = 21
