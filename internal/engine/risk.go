// Package engine contains the risk manager and the backtest engine that
// together drive a causally-ordered, risk-constrained trade simulation.
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

// RejectReason classifies why the risk manager refused to turn a signal into
// an order. Rejections are expected flow control, not failures: the run
// always continues.
type RejectReason string

const (
	// RejectDegenerateGeometry: the stop equals the entry (or the computed
	// size rounds to zero), so the position cannot be sized.
	RejectDegenerateGeometry RejectReason = "DEGENERATE_GEOMETRY"

	// RejectDrawdownHalt: the portfolio drawdown reached the configured
	// threshold. The halt is sticky for the remainder of the run.
	RejectDrawdownHalt RejectReason = "DRAWDOWN_HALT"

	// RejectPositionLimit: the portfolio is at its concurrent-position cap,
	// or a position in the same symbol is already open (no pyramiding).
	RejectPositionLimit RejectReason = "POSITION_LIMIT"

	// RejectCapitalExceeded: the order notional exceeds available cash.
	RejectCapitalExceeded RejectReason = "CAPITAL_EXCEEDED"
)

// Rejection is the error returned by SizeAndValidate when a signal is
// refused.
type Rejection struct {
	Reason RejectReason
	Detail string
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// RiskManager converts signals into sized, bounded orders. It holds only
// configuration; apart from latching the portfolio halt flag it performs no
// state mutation; opening positions is the engine's job.
type RiskManager struct {
	riskPerTrade decimal.Decimal // fraction of equity risked per trade
	maxDrawdown  decimal.Decimal // absolute currency threshold for the halt
	maxPositions int
	minUnit      decimal.Decimal // instrument minimum tradable unit
}

// NewRiskManager creates a RiskManager.
//
//   - riskPerTrade: fraction of current equity risked entry-to-stop
//     (e.g. 0.01 for 1%).
//   - maxDrawdown: absolute currency drawdown that triggers the soft halt.
//   - maxPositions: maximum concurrent open positions.
//   - minUnit: sizes are floored to a multiple of this unit.
func NewRiskManager(riskPerTrade, maxDrawdown, minUnit float64, maxPositions int) *RiskManager {
	return &RiskManager{
		riskPerTrade: decimal.NewFromFloat(riskPerTrade),
		maxDrawdown:  decimal.NewFromFloat(maxDrawdown),
		maxPositions: maxPositions,
		minUnit:      decimal.NewFromFloat(minUnit),
	}
}

// SizeAndValidate turns a signal plus its entry/stop/target geometry into an
// order sized off current equity, or returns a *Rejection explaining why the
// signal was refused. The drawdown guard runs before sizing and latches the
// portfolio's halt flag; the halt does not clear within a run.
func (rm *RiskManager) SizeAndValidate(sig domain.Signal, entry, stop, target float64, pf *domain.Portfolio) (domain.Order, error) {
	// Drawdown guard first: once tripped, every subsequent signal is refused.
	if pf.Halted {
		return domain.Order{}, &Rejection{Reason: RejectDrawdownHalt}
	}
	if pf.Drawdown().GreaterThanOrEqual(rm.maxDrawdown) {
		pf.Halted = true
		return domain.Order{}, &Rejection{
			Reason: RejectDrawdownHalt,
			Detail: fmt.Sprintf("drawdown %s reached threshold %s", pf.Drawdown(), rm.maxDrawdown),
		}
	}

	// Position-count guard and no-pyramiding rule.
	if len(pf.Positions) >= rm.maxPositions {
		return domain.Order{}, &Rejection{
			Reason: RejectPositionLimit,
			Detail: fmt.Sprintf("%d positions open, limit %d", len(pf.Positions), rm.maxPositions),
		}
	}
	if _, open := pf.Positions[sig.Symbol]; open {
		return domain.Order{}, &Rejection{
			Reason: RejectPositionLimit,
			Detail: fmt.Sprintf("position already open in %s", sig.Symbol),
		}
	}

	// Position sizing: size = (equity × riskPerTrade) / |entry − stop|,
	// floored to the instrument's minimum tradable unit.
	perUnitRisk := decimal.NewFromFloat(entry).Sub(decimal.NewFromFloat(stop)).Abs()
	if perUnitRisk.IsZero() {
		return domain.Order{}, &Rejection{
			Reason: RejectDegenerateGeometry,
			Detail: fmt.Sprintf("stop equals entry at %v for %s", entry, sig.Symbol),
		}
	}

	riskAmount := pf.Equity.Mul(rm.riskPerTrade)
	size := riskAmount.Div(perUnitRisk)
	size = size.Div(rm.minUnit).Floor().Mul(rm.minUnit)
	if size.LessThanOrEqual(decimal.Zero) {
		return domain.Order{}, &Rejection{
			Reason: RejectDegenerateGeometry,
			Detail: fmt.Sprintf("size rounds to zero for %s", sig.Symbol),
		}
	}

	// Capital guard: no leverage, the order notional must fit in the cash
	// not already committed to open positions.
	notional := size.Mul(decimal.NewFromFloat(entry))
	available := pf.Cash.Sub(pf.CommittedNotional())
	if notional.GreaterThan(available) {
		return domain.Order{}, &Rejection{
			Reason: RejectCapitalExceeded,
			Detail: fmt.Sprintf("notional %s exceeds available capital %s", notional, available),
		}
	}

	return domain.Order{
		Symbol:     sig.Symbol,
		Direction:  sig.Direction,
		Size:       size,
		Entry:      entry,
		Stop:       stop,
		Target:     target,
		RiskAmount: riskAmount,
	}, nil
}
