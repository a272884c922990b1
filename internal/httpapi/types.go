// Package httpapi provides an HTTP REST API over persisted backtest runs,
// serving stored summaries and trade histories in JSON format.
package httpapi

import (
	"time"

	"tradesim/internal/domain"
	"tradesim/internal/report"
	"tradesim/internal/store"
)

// TradeJSON is the JSON representation of one closed trade.
type TradeJSON struct {
	Symbol    string    `json:"symbol"`
	Direction string    `json:"direction"`
	Size      string    `json:"size"`
	Entry     float64   `json:"entry"`
	Exit      float64   `json:"exit"`
	Reason    string    `json:"reason"`
	OpenedAt  time.Time `json:"opened_at"`
	ClosedAt  time.Time `json:"closed_at"`
	PnL       string    `json:"pnl"`
}

// EquityPointJSON is one sample of a run's equity curve. Equity is a decimal
// string.
type EquityPointJSON struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    string    `json:"equity"`
}

// RunJSON is the JSON representation of one persisted backtest run.
type RunJSON struct {
	ID             int64             `json:"id"`
	CreatedAt      time.Time         `json:"created_at"`
	Strategy       string            `json:"strategy"`
	Symbols        []string          `json:"symbols"`
	InitialCapital float64           `json:"initial_capital"`
	State          string            `json:"state"`
	Truncated      bool              `json:"truncated"`
	Summary        report.Summary    `json:"summary"`
	Trades         []TradeJSON       `json:"trades,omitempty"`
	EquityCurve    []EquityPointJSON `json:"equity_curve,omitempty"`
}

func tradeToJSON(t domain.Trade) TradeJSON {
	return TradeJSON{
		Symbol:    t.Symbol,
		Direction: string(t.Direction),
		Size:      t.Size.String(),
		Entry:     t.Entry,
		Exit:      t.Exit,
		Reason:    string(t.Reason),
		OpenedAt:  t.OpenedAt,
		ClosedAt:  t.ClosedAt,
		PnL:       t.PnL.String(),
	}
}

func runToJSON(r store.RunRecord) RunJSON {
	out := RunJSON{
		ID:             r.ID,
		CreatedAt:      r.CreatedAt,
		Strategy:       r.Strategy,
		Symbols:        r.Symbols,
		InitialCapital: r.InitialCapital,
		State:          r.State,
		Truncated:      r.Truncated,
		Summary:        r.Summary,
	}
	for _, t := range r.Trades {
		out.Trades = append(out.Trades, tradeToJSON(t))
	}
	for _, pt := range r.EquityCurve {
		out.EquityCurve = append(out.EquityCurve, EquityPointJSON{
			Timestamp: pt.Timestamp,
			Equity:    pt.Equity.String(),
		})
	}
	return out
}
