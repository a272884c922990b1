// Package domain defines the core types shared across the tradesim
// platform: bars, signals, orders, positions, trades, and the portfolio
// state owned by the backtest engine.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a signal, order, or position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Sign returns +1 for LONG and -1 for SHORT, used when computing P&L.
func (d Direction) Sign() int64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitStop   ExitReason = "STOP"
	ExitTarget ExitReason = "TARGET"
	ExitEnd    ExitReason = "END"
)

// Indicators holds the derived fields attached to a bar by the indicator
// supplier. A zero value means the indicator has not warmed up yet.
type Indicators struct {
	SMA20   float64
	EMA20   float64
	RSI14   float64
	ATR14   float64
	BBUpper float64
	BBLower float64
}

// Bar is a single OHLCV observation for a symbol at a timestamp, optionally
// enriched with indicator fields. Bars are immutable once produced and
// ordered ascending by timestamp per symbol.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
	Ind        Indicators
}

// Valid reports whether the bar carries a usable OHLC range. Bars failing
// this check are skipped for their symbol; the run continues.
func (b Bar) Valid() bool {
	if b.Symbol == "" || b.Timestamp.IsZero() {
		return false
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return false
	}
	if b.High < b.Low {
		return false
	}
	return b.High >= b.Open && b.High >= b.Close && b.Low <= b.Open && b.Low <= b.Close
}

// Signal is an ephemeral trade intent emitted by a strategy. It is consumed
// by the risk manager in the same simulation step it was produced.
type Signal struct {
	Symbol     string
	Direction  Direction
	Confidence float64 // [0, 1]
	Timestamp  time.Time
	RefPrice   float64 // price the strategy observed when signalling
}

// Order is a sized, risk-validated trade produced from a Signal.
type Order struct {
	Symbol     string
	Direction  Direction
	Size       decimal.Decimal // units, > 0
	Entry      float64
	Stop       float64
	Target     float64
	RiskAmount decimal.Decimal // currency amount at risk entry-to-stop
}

// Position is an open holding. It is owned exclusively by the portfolio and
// mutated only by the backtest engine.
type Position struct {
	Symbol    string
	Direction Direction
	Size      decimal.Decimal
	Entry     float64
	Stop      float64
	Target    float64
	OpenedAt  time.Time
}

// UnrealizedPnL marks the position to market at the given price.
func (p *Position) UnrealizedPnL(price float64) decimal.Decimal {
	diff := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(p.Entry))
	return diff.Mul(p.Size).Mul(decimal.NewFromInt(p.Direction.Sign()))
}

// Trade is the closed-position record appended to the portfolio history.
type Trade struct {
	Symbol    string
	Direction Direction
	Size      decimal.Decimal
	Entry     float64
	Exit      float64
	Reason    ExitReason
	OpenedAt  time.Time
	ClosedAt  time.Time
	PnL       decimal.Decimal
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Timestamp time.Time
	Equity    decimal.Decimal
}

// Portfolio is the mutable state of a single backtest run. It has a single
// owner (the engine driving the run); the equity curve and trade history are
// append-only and strictly time-ordered.
type Portfolio struct {
	Cash        decimal.Decimal
	Equity      decimal.Decimal
	PeakEquity  decimal.Decimal
	Positions   map[string]*Position // at most one open position per symbol
	Trades      []Trade
	EquityCurve []EquityPoint

	// Halted is monotonic within a run: once the drawdown guard trips, no
	// new positions open for the remainder of the run.
	Halted bool
}

// NewPortfolio creates a portfolio funded with the given initial capital.
func NewPortfolio(initialCapital decimal.Decimal) *Portfolio {
	return &Portfolio{
		Cash:       initialCapital,
		Equity:     initialCapital,
		PeakEquity: initialCapital,
		Positions:  make(map[string]*Position),
	}
}

// Drawdown returns the decline from peak equity to current equity, never
// negative.
func (p *Portfolio) Drawdown() decimal.Decimal {
	dd := p.PeakEquity.Sub(p.Equity)
	if dd.IsNegative() {
		return decimal.Zero
	}
	return dd
}

// MarkToMarket recomputes equity as cash plus the unrealized P&L of every
// open position valued at the supplied last-known close prices, and advances
// the running peak.
func (p *Portfolio) MarkToMarket(lastClose map[string]float64) {
	equity := p.Cash
	for sym, pos := range p.Positions {
		if price, ok := lastClose[sym]; ok {
			equity = equity.Add(pos.UnrealizedPnL(price))
		}
	}
	p.Equity = equity
	if equity.GreaterThan(p.PeakEquity) {
		p.PeakEquity = equity
	}
}

// CommittedNotional returns the entry notional of all open positions, the
// capital already spoken for under the no-leverage rule.
func (p *Portfolio) CommittedNotional() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.Positions {
		total = total.Add(pos.Size.Mul(decimal.NewFromFloat(pos.Entry)))
	}
	return total
}

// Open records a new position from a validated order. Cash is not deducted:
// the risk manager's capital guard counts open positions' entry notional as
// committed, and realized P&L settles into cash on close.
func (p *Portfolio) Open(order Order, at time.Time) {
	p.Positions[order.Symbol] = &Position{
		Symbol:    order.Symbol,
		Direction: order.Direction,
		Size:      order.Size,
		Entry:     order.Entry,
		Stop:      order.Stop,
		Target:    order.Target,
		OpenedAt:  at,
	}
}

// Close settles the open position in symbol at the given exit price,
// credits realized P&L to cash, appends the trade record, and removes the
// position. The second return value is false when no position is open.
func (p *Portfolio) Close(symbol string, exit float64, reason ExitReason, at time.Time) (Trade, bool) {
	pos, ok := p.Positions[symbol]
	if !ok {
		return Trade{}, false
	}

	pnl := pos.UnrealizedPnL(exit)
	p.Cash = p.Cash.Add(pnl)

	trade := Trade{
		Symbol:    pos.Symbol,
		Direction: pos.Direction,
		Size:      pos.Size,
		Entry:     pos.Entry,
		Exit:      exit,
		Reason:    reason,
		OpenedAt:  pos.OpenedAt,
		ClosedAt:  at,
		PnL:       pnl,
	}
	p.Trades = append(p.Trades, trade)
	delete(p.Positions, symbol)
	return trade, true
}

// RecordEquity appends one (timestamp, equity) sample to the equity curve.
func (p *Portfolio) RecordEquity(at time.Time) {
	p.EquityCurve = append(p.EquityCurve, EquityPoint{Timestamp: at, Equity: p.Equity})
}
