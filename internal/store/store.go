// Package store defines storage interfaces for bar history and persisted
// backtest runs, with Parquet and SQLite implementations.
package store

import (
	"context"
	"time"

	"tradesim/internal/domain"
	"tradesim/internal/report"
)

// BarStore persists and retrieves daily OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars, deduplicating by (symbol, timestamp).
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns the symbol's bars within [start, end], ascending.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with stored bars.
	ListSymbols(ctx context.Context) ([]string, error)
}

// RunRecord is one persisted backtest run: identifying metadata, the summary
// metrics, the full trade history, and the equity curve.
type RunRecord struct {
	ID             int64                `json:"id"`
	CreatedAt      time.Time            `json:"created_at"`
	Strategy       string               `json:"strategy"`
	Symbols        []string             `json:"symbols"`
	InitialCapital float64              `json:"initial_capital"`
	State          string               `json:"state"`
	Truncated      bool                 `json:"truncated"`
	Summary        report.Summary       `json:"summary"`
	Trades         []domain.Trade       `json:"trades,omitempty"`
	EquityCurve    []domain.EquityPoint `json:"equity_curve,omitempty"`
}

// ResultStore persists completed backtest runs for later inspection.
type ResultStore interface {
	// SaveRun inserts a run with its trades and equity curve, returning the
	// assigned ID.
	SaveRun(ctx context.Context, run *RunRecord) (int64, error)

	// GetRun retrieves a run by ID, including its trades and equity curve.
	GetRun(ctx context.Context, id int64) (*RunRecord, error)

	// ListRuns returns the most recent runs, newest first, without trades or
	// equity curves.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}
