package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

// SQLiteStore implements ResultStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at       TEXT NOT NULL,
	strategy         TEXT NOT NULL,
	symbols          TEXT NOT NULL,
	initial_capital  REAL NOT NULL,
	state            TEXT NOT NULL,
	truncated        INTEGER NOT NULL,
	final_equity     REAL NOT NULL,
	total_return_pct REAL NOT NULL,
	max_drawdown_pct REAL NOT NULL,
	sharpe_ratio     REAL NOT NULL,
	total_trades     INTEGER NOT NULL,
	winning_trades   INTEGER NOT NULL,
	losing_trades    INTEGER NOT NULL,
	win_rate         REAL NOT NULL,
	profit_factor    REAL NOT NULL,
	average_win      REAL NOT NULL,
	average_loss     REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id    INTEGER NOT NULL REFERENCES runs(id),
	symbol    TEXT NOT NULL,
	direction TEXT NOT NULL,
	size      TEXT NOT NULL,
	entry     REAL NOT NULL,
	exit      REAL NOT NULL,
	reason    TEXT NOT NULL,
	opened_at TEXT NOT NULL,
	closed_at TEXT NOT NULL,
	pnl       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);

CREATE TABLE IF NOT EXISTS equity_points (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES runs(id),
	ts     TEXT NOT NULL,
	equity TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_points_run ON equity_points(run_id);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts the run, its trades, and its equity curve in one
// transaction and returns the assigned run ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (
			created_at, strategy, symbols, initial_capital, state, truncated,
			final_equity, total_return_pct, max_drawdown_pct, sharpe_ratio,
			total_trades, winning_trades, losing_trades, win_rate,
			profit_factor, average_win, average_loss
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		createdAt.Format(time.RFC3339Nano),
		run.Strategy,
		strings.Join(run.Symbols, ","),
		run.InitialCapital,
		run.State,
		boolToInt(run.Truncated),
		run.Summary.FinalEquity,
		run.Summary.TotalReturnPct,
		run.Summary.MaxDrawdownPct,
		run.Summary.SharpeRatio,
		run.Summary.TotalTrades,
		run.Summary.WinningTrades,
		run.Summary.LosingTrades,
		run.Summary.WinRate,
		run.Summary.ProfitFactor,
		run.Summary.AverageWin,
		run.Summary.AverageLoss,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, t := range run.Trades {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO trades (
				run_id, symbol, direction, size, entry, exit, reason,
				opened_at, closed_at, pnl
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id,
			t.Symbol,
			string(t.Direction),
			t.Size.String(),
			t.Entry,
			t.Exit,
			string(t.Reason),
			t.OpenedAt.Format(time.RFC3339Nano),
			t.ClosedAt.Format(time.RFC3339Nano),
			t.PnL.String(),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting trade for %s: %w", t.Symbol, err)
		}
	}

	for _, pt := range run.EquityCurve {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO equity_points (run_id, ts, equity) VALUES (?, ?, ?)`,
			id,
			pt.Timestamp.Format(time.RFC3339Nano),
			pt.Equity.String(),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting equity point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetRun retrieves a run by ID, including its trades and equity curve. A
// missing ID reports sql.ErrNoRows.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, strategy, symbols, initial_capital, state,
		       truncated, final_equity, total_return_pct, max_drawdown_pct,
		       sharpe_ratio, total_trades, winning_trades, losing_trades,
		       win_rate, profit_factor, average_win, average_loss
		FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, direction, size, entry, exit, reason,
		       opened_at, closed_at, pnl
		FROM trades WHERE run_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t                  domain.Trade
			direction, reason  string
			sizeStr, pnlStr    string
			openedAt, closedAt string
		)
		if err := rows.Scan(&t.Symbol, &direction, &sizeStr, &t.Entry, &t.Exit,
			&reason, &openedAt, &closedAt, &pnlStr); err != nil {
			return nil, err
		}
		t.Direction = domain.Direction(direction)
		t.Reason = domain.ExitReason(reason)
		if t.Size, err = decimal.NewFromString(sizeStr); err != nil {
			return nil, fmt.Errorf("parsing trade size %q: %w", sizeStr, err)
		}
		if t.PnL, err = decimal.NewFromString(pnlStr); err != nil {
			return nil, fmt.Errorf("parsing trade pnl %q: %w", pnlStr, err)
		}
		if t.OpenedAt, err = time.Parse(time.RFC3339Nano, openedAt); err != nil {
			return nil, err
		}
		if t.ClosedAt, err = time.Parse(time.RFC3339Nano, closedAt); err != nil {
			return nil, err
		}
		run.Trades = append(run.Trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	points, err := s.db.QueryContext(ctx, `
		SELECT ts, equity FROM equity_points WHERE run_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer points.Close()

	for points.Next() {
		var (
			pt        domain.EquityPoint
			ts, value string
		)
		if err := points.Scan(&ts, &value); err != nil {
			return nil, err
		}
		if pt.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, err
		}
		if pt.Equity, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("parsing equity point %q: %w", value, err)
		}
		run.EquityCurve = append(run.EquityCurve, pt)
	}
	if err := points.Err(); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first, without trades or
// equity curves.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, strategy, symbols, initial_capital, state,
		       truncated, final_equity, total_return_pct, max_drawdown_pct,
		       sharpe_ratio, total_trades, winning_trades, losing_trades,
		       win_rate, profit_factor, average_win, average_loss
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		run       RunRecord
		createdAt string
		symbols   string
		truncated int
	)
	err := row.Scan(&run.ID, &createdAt, &run.Strategy, &symbols,
		&run.InitialCapital, &run.State, &truncated,
		&run.Summary.FinalEquity, &run.Summary.TotalReturnPct,
		&run.Summary.MaxDrawdownPct, &run.Summary.SharpeRatio,
		&run.Summary.TotalTrades, &run.Summary.WinningTrades,
		&run.Summary.LosingTrades, &run.Summary.WinRate,
		&run.Summary.ProfitFactor, &run.Summary.AverageWin,
		&run.Summary.AverageLoss)
	if err != nil {
		return nil, err
	}

	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if symbols != "" {
		run.Symbols = strings.Split(symbols, ",")
	}
	run.Truncated = truncated != 0
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
