package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
	"tradesim/internal/report"
	"tradesim/internal/strategy"
)

// State is the lifecycle of one backtest run.
type State string

const (
	// StateRunning accepts new entries and closes existing positions.
	StateRunning State = "RUNNING"
	// StateHalted rejects new entries but continues closing positions. The
	// transition happens on a drawdown-halt rejection and never reverses
	// within a run.
	StateHalted State = "HALTED"
	// StateFinished is terminal: the run consumed all bars (or was aborted).
	StateFinished State = "FINISHED"
)

// Params carries the run-level simulation settings that are not risk
// constraints.
type Params struct {
	InitialCapital float64
	RiskFreeRate   float64
	Annualization  float64
}

// Result is the output of one run: the full equity curve, the trade history,
// and the derived summary metrics. Truncated is set when the run was
// cancelled between bars; the partial curve and history remain valid.
type Result struct {
	Strategy    string
	State       State
	Truncated   bool
	EquityCurve []domain.EquityPoint
	Trades      []domain.Trade
	Summary     report.Summary
}

// Backtester replays historical bar data through a strategy, applying the
// risk manager to every signal, and owns the portfolio state for the
// duration of a run. A Backtester is single-use-at-a-time: each Run builds a
// private portfolio, so independent Backtesters may run in parallel.
type Backtester struct {
	strat  strategy.Strategy
	risk   *RiskManager
	params Params
	log    *slog.Logger
}

// NewBacktester creates a Backtester wired with the given strategy, risk
// manager, and run parameters.
func NewBacktester(strat strategy.Strategy, risk *RiskManager, params Params, log *slog.Logger) *Backtester {
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{
		strat:  strat,
		risk:   risk,
		params: params,
		log:    log.With("strategy", strat.Name()),
	}
}

// Run executes the simulation over the given per-symbol bar sequences. Bars
// must be pre-sorted ascending by timestamp per symbol; malformed or
// out-of-order bars are skipped for that symbol only. Cancellation between
// bars yields a truncated Result, not an error.
func (bt *Backtester) Run(ctx context.Context, barsBySymbol map[string][]domain.Bar) (*Result, error) {
	if err := bt.strat.Init(ctx); err != nil {
		return nil, err
	}

	clean := sanitize(barsBySymbol, bt.log)
	timeline := buildTimeline(clean)

	pf := domain.NewPortfolio(decimal.NewFromFloat(bt.params.InitialCapital))
	state := StateRunning

	// Growing per-symbol view of the bars seen so far; GenerateSignals only
	// ever receives this slice, which is what enforces no-lookahead.
	history := make(map[string][]domain.Bar, len(clean))
	cursor := make(map[string]int, len(clean))
	lastClose := make(map[string]float64, len(clean))

	truncated := false

steps:
	for _, t := range timeline {
		select {
		case <-ctx.Done():
			truncated = true
			break steps
		default:
		}

		current := barsAt(clean, cursor, t)

		// 1. Resolve existing positions against intrabar extremes before
		// anything else at this timestamp; the stop wins when both stop and
		// target fall inside the bar's range.
		for _, sym := range sortedSymbols(current) {
			pos, open := pf.Positions[sym]
			if !open {
				continue
			}
			if exit, reason, hit := resolveExit(pos, current[sym]); hit {
				trade, _ := pf.Close(sym, exit, reason, t)
				bt.log.Debug("position closed",
					"symbol", sym, "reason", string(reason), "pnl", trade.PnL.String())
			}
		}

		for sym, bar := range current {
			history[sym] = append(history[sym], bar)
			lastClose[sym] = bar.Close
		}

		// 2. Mark open positions to market at the bar close.
		pf.MarkToMarket(lastClose)

		// 3. New entries, unless halted.
		if state == StateRunning {
			state = bt.processSignals(ctx, pf, history, current, t)
		}

		// 4. Sample the equity curve.
		pf.RecordEquity(t)
	}

	// 5. End of data: liquidate whatever is still open at its last known
	// close. The fill price equals the final mark, so equity is unchanged
	// and the last curve sample stays valid. A cancelled run skips this and
	// reports the open-position state as-is.
	if !truncated {
		for _, sym := range sortedSymbols(pf.Positions) {
			if px, ok := lastClose[sym]; ok {
				pf.Close(sym, px, domain.ExitEnd, timeline[len(timeline)-1])
			}
		}
		pf.MarkToMarket(lastClose)
		state = StateFinished
	}

	summary := report.Compute(pf.EquityCurve, pf.Trades,
		decimal.NewFromFloat(bt.params.InitialCapital),
		report.Options{RiskFreeRate: bt.params.RiskFreeRate, Annualization: bt.params.Annualization})

	return &Result{
		Strategy:    bt.strat.Name(),
		State:       state,
		Truncated:   truncated,
		EquityCurve: pf.EquityCurve,
		Trades:      pf.Trades,
		Summary:     summary,
	}, nil
}

// processSignals asks the strategy for signals on every symbol with a bar at
// this timestamp (in lexical symbol order for determinism) and routes each
// through the risk manager. It returns StateHalted when the drawdown guard
// trips, StateRunning otherwise.
func (bt *Backtester) processSignals(
	ctx context.Context,
	pf *domain.Portfolio,
	history map[string][]domain.Bar,
	current map[string]domain.Bar,
	t time.Time,
) State {
	for _, sym := range sortedSymbols(current) {
		sigs, err := bt.strat.GenerateSignals(ctx, history[sym])
		if err != nil {
			bt.log.Warn("signal generation failed", "symbol", sym, "err", err)
			continue
		}

		for _, sig := range sigs {
			if err := strategy.Validate(sig); err != nil {
				bt.log.Warn("dropping invalid signal", "symbol", sym, "err", err)
				continue
			}

			entry, stop, target, err := bt.strat.EntryExit(sym, history[sym], sig)
			if err != nil {
				bt.log.Warn("entry/exit computation failed", "symbol", sym, "err", err)
				continue
			}

			order, err := bt.risk.SizeAndValidate(sig, entry, stop, target, pf)
			if err != nil {
				var rej *Rejection
				if errors.As(err, &rej) && rej.Reason == RejectDrawdownHalt {
					bt.log.Warn("drawdown halt triggered", "at", t, "detail", rej.Detail)
					return StateHalted
				}
				bt.log.Debug("signal rejected", "symbol", sym, "err", err)
				continue
			}

			pf.Open(order, t)
			bt.log.Debug("position opened",
				"symbol", order.Symbol, "direction", string(order.Direction),
				"size", order.Size.String(), "entry", order.Entry, "stop", order.Stop)
		}
	}
	return StateRunning
}

// resolveExit checks a position against one bar's intrabar extremes. The
// stop is checked before the target: when both levels fall inside the bar's
// range, the adverse fill is assumed.
func resolveExit(pos *domain.Position, bar domain.Bar) (exit float64, reason domain.ExitReason, hit bool) {
	if pos.Direction == domain.DirectionLong {
		if bar.Low <= pos.Stop {
			return pos.Stop, domain.ExitStop, true
		}
		if pos.Target > 0 && bar.High >= pos.Target {
			return pos.Target, domain.ExitTarget, true
		}
		return 0, "", false
	}

	if bar.High >= pos.Stop {
		return pos.Stop, domain.ExitStop, true
	}
	if pos.Target > 0 && bar.Low <= pos.Target {
		return pos.Target, domain.ExitTarget, true
	}
	return 0, "", false
}

// sanitize drops malformed bars and bars whose timestamp does not strictly
// advance within a symbol. The affected symbol keeps its remaining bars; the
// run continues for all symbols.
func sanitize(barsBySymbol map[string][]domain.Bar, log *slog.Logger) map[string][]domain.Bar {
	clean := make(map[string][]domain.Bar, len(barsBySymbol))
	for sym, bars := range barsBySymbol {
		kept := make([]domain.Bar, 0, len(bars))
		var lastTS time.Time
		for _, b := range bars {
			if !b.Valid() {
				log.Warn("skipping malformed bar", "symbol", sym, "at", b.Timestamp)
				continue
			}
			if !lastTS.IsZero() && !b.Timestamp.After(lastTS) {
				log.Warn("skipping out-of-order bar", "symbol", sym, "at", b.Timestamp)
				continue
			}
			lastTS = b.Timestamp
			kept = append(kept, b)
		}
		if len(kept) > 0 {
			clean[sym] = kept
		}
	}
	return clean
}

// buildTimeline returns the sorted distinct timestamps across all symbols.
// Gaps are fine: a symbol simply has no event at a timestamp it is missing.
func buildTimeline(barsBySymbol map[string][]domain.Bar) []time.Time {
	seen := make(map[int64]time.Time)
	for _, bars := range barsBySymbol {
		for _, b := range bars {
			seen[b.Timestamp.UnixNano()] = b.Timestamp
		}
	}
	timeline := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		timeline = append(timeline, t)
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Before(timeline[j]) })
	return timeline
}

// barsAt advances each symbol's cursor and returns the bars stamped exactly t.
func barsAt(barsBySymbol map[string][]domain.Bar, cursor map[string]int, t time.Time) map[string]domain.Bar {
	current := make(map[string]domain.Bar)
	for sym, bars := range barsBySymbol {
		i := cursor[sym]
		if i < len(bars) && bars[i].Timestamp.Equal(t) {
			current[sym] = bars[i]
			cursor[sym] = i + 1
		}
	}
	return current
}

// sortedSymbols returns map keys in lexical order; iteration order is part
// of the determinism contract.
func sortedSymbols[V any](m map[string]V) []string {
	syms := make([]string, 0, len(m))
	for s := range m {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}
