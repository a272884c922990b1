// Package strategy defines the Strategy interface for signal generators and
// provides a Registry for managing multiple strategy implementations.
package strategy

import (
	"context"
	"fmt"
	"sort"

	"tradesim/internal/domain"
)

// Strategy is the contract every trading strategy implements. Both methods
// are deterministic functions of the visible history: the engine only ever
// passes bars at or before the current simulation timestamp, so a strategy
// cannot look ahead.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init performs any one-time setup required before the strategy begins
	// processing market data.
	Init(ctx context.Context) error

	// GenerateSignals inspects one symbol's bar history up to and including
	// the current timestamp and returns zero or more trade signals for that
	// timestamp.
	GenerateSignals(ctx context.Context, history []domain.Bar) ([]domain.Signal, error)

	// EntryExit computes the entry price, stop loss, and take profit for a
	// signal. Stop and target must straddle the entry on the side implied by
	// the signal direction; a stop equal to the entry is degenerate geometry
	// and is rejected downstream by the risk manager.
	EntryExit(symbol string, history []domain.Bar, sig domain.Signal) (entry, stop, target float64, err error)
}

// Validate checks that a signal carries the fields the risk manager relies
// on. Invalid signals are dropped and logged; they never abort a run.
func Validate(sig domain.Signal) error {
	if sig.Symbol == "" {
		return fmt.Errorf("signal missing symbol")
	}
	if sig.Direction != domain.DirectionLong && sig.Direction != domain.DirectionShort {
		return fmt.Errorf("invalid signal direction %q", sig.Direction)
	}
	if sig.Confidence < 0 || sig.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0, 1]", sig.Confidence)
	}
	if sig.Timestamp.IsZero() {
		return fmt.Errorf("signal missing timestamp")
	}
	return nil
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
