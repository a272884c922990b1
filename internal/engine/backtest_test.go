package engine

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

// tradePlan is one scripted entry: when the scripted strategy sees a bar at
// the given timestamp, it signals with this geometry.
type tradePlan struct {
	direction domain.Direction
	entry     float64
	stop      float64
	target    float64
}

// scriptedStrategy emits pre-planned signals keyed by (symbol, timestamp).
// It only ever inspects the latest visible bar, so it is trivially causal.
type scriptedStrategy struct {
	plans map[string]map[int64]tradePlan
}

func newScripted() *scriptedStrategy {
	return &scriptedStrategy{plans: make(map[string]map[int64]tradePlan)}
}

func (s *scriptedStrategy) plan(symbol string, at time.Time, p tradePlan) *scriptedStrategy {
	if s.plans[symbol] == nil {
		s.plans[symbol] = make(map[int64]tradePlan)
	}
	s.plans[symbol][at.UnixNano()] = p
	return s
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) Init(_ context.Context) error { return nil }

func (s *scriptedStrategy) GenerateSignals(_ context.Context, history []domain.Bar) ([]domain.Signal, error) {
	latest := history[len(history)-1]
	p, ok := s.plans[latest.Symbol][latest.Timestamp.UnixNano()]
	if !ok {
		return nil, nil
	}
	return []domain.Signal{{
		Symbol:     latest.Symbol,
		Direction:  p.direction,
		Confidence: 1,
		Timestamp:  latest.Timestamp,
		RefPrice:   p.entry,
	}}, nil
}

func (s *scriptedStrategy) EntryExit(symbol string, history []domain.Bar, _ domain.Signal) (float64, float64, float64, error) {
	latest := history[len(history)-1]
	p := s.plans[symbol][latest.Timestamp.UnixNano()]
	return p.entry, p.stop, p.target, nil
}

func day(n int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func bar(symbol string, at time.Time, o, h, l, c float64) domain.Bar {
	return domain.Bar{Symbol: symbol, Timestamp: at, Open: o, High: h, Low: l, Close: c}
}

func params(capital float64) Params {
	return Params{InitialCapital: capital, RiskFreeRate: 0, Annualization: 252}
}

// TestRunStopOutScenario replays the canonical two-bar scenario: a long
// opened at 104 with a 100 stop is stopped out when the next bar trades
// through 100, losing exactly the configured risk amount.
func TestRunStopOutScenario(t *testing.T) {
	strat := newScripted().plan("ES", day(0), tradePlan{
		direction: domain.DirectionLong, entry: 104, stop: 100, target: 112,
	})
	bt := NewBacktester(strat, NewRiskManager(0.01, 10000, 1, 6), params(10000), nil)

	bars := map[string][]domain.Bar{
		"ES": {
			bar("ES", day(0), 100, 105, 99, 104),
			bar("ES", day(1), 104, 106, 98, 99),
		},
	}

	res, err := bt.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if res.State != StateFinished {
		t.Errorf("State = %v, want FINISHED", res.State)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("Trades count = %d, want 1", len(res.Trades))
	}

	trade := res.Trades[0]
	if !trade.Size.Equal(decimal.NewFromInt(25)) {
		t.Errorf("trade Size = %s, want 25", trade.Size)
	}
	if trade.Exit != 100 {
		t.Errorf("trade Exit = %v, want 100 (stop fill)", trade.Exit)
	}
	if trade.Reason != domain.ExitStop {
		t.Errorf("trade Reason = %q, want STOP", trade.Reason)
	}
	if !trade.PnL.Equal(decimal.NewFromInt(-100)) {
		t.Errorf("trade PnL = %s, want -100", trade.PnL)
	}

	final := res.EquityCurve[len(res.EquityCurve)-1].Equity
	if !final.Equal(decimal.NewFromInt(9900)) {
		t.Errorf("final equity = %s, want 9900", final)
	}
	if got := res.Summary.TotalReturnPct; got < -1.000001 || got > -0.999999 {
		t.Errorf("TotalReturnPct = %v, want -1", got)
	}
}

// TestRunStopPriorityOverTarget: when one bar trades through both the stop
// and the target, the engine assumes the adverse fill.
func TestRunStopPriorityOverTarget(t *testing.T) {
	strat := newScripted().plan("ES", day(0), tradePlan{
		direction: domain.DirectionLong, entry: 100, stop: 98, target: 103,
	})
	bt := NewBacktester(strat, NewRiskManager(0.01, 10000, 1, 6), params(10000), nil)

	bars := map[string][]domain.Bar{
		"ES": {
			bar("ES", day(0), 100, 101, 99, 100),
			// Wide bar touching both levels.
			bar("ES", day(1), 100, 104, 97, 102),
		},
	}

	res, err := bt.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("Trades count = %d, want 1", len(res.Trades))
	}
	if res.Trades[0].Reason != domain.ExitStop {
		t.Errorf("Reason = %q, want STOP (stop takes priority)", res.Trades[0].Reason)
	}
	if res.Trades[0].Exit != 98 {
		t.Errorf("Exit = %v, want 98", res.Trades[0].Exit)
	}
}

// TestRunTargetFill covers the profitable path: the target is touched on a
// later bar without the stop being violated.
func TestRunTargetFill(t *testing.T) {
	strat := newScripted().plan("ES", day(0), tradePlan{
		direction: domain.DirectionLong, entry: 100, stop: 96, target: 108,
	})
	bt := NewBacktester(strat, NewRiskManager(0.01, 10000, 1, 6), params(10000), nil)

	bars := map[string][]domain.Bar{
		"ES": {
			bar("ES", day(0), 100, 101, 99, 100),
			bar("ES", day(1), 101, 109, 100, 107),
		},
	}

	res, err := bt.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("Trades count = %d, want 1", len(res.Trades))
	}
	trade := res.Trades[0]
	if trade.Reason != domain.ExitTarget || trade.Exit != 108 {
		t.Errorf("trade = (%q, %v), want (TARGET, 108)", trade.Reason, trade.Exit)
	}
	// size = 100 / 4 = 25; pnl = (108-100)*25 = 200
	if !trade.PnL.Equal(decimal.NewFromInt(200)) {
		t.Errorf("PnL = %s, want 200", trade.PnL)
	}
}

// TestRunShortStopOut exercises the mirrored geometry for a short position.
func TestRunShortStopOut(t *testing.T) {
	strat := newScripted().plan("ES", day(0), tradePlan{
		direction: domain.DirectionShort, entry: 100, stop: 104, target: 92,
	})
	bt := NewBacktester(strat, NewRiskManager(0.01, 10000, 1, 6), params(10000), nil)

	bars := map[string][]domain.Bar{
		"ES": {
			bar("ES", day(0), 100, 101, 99, 100),
			bar("ES", day(1), 101, 105, 100, 103),
		},
	}

	res, err := bt.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("Trades count = %d, want 1", len(res.Trades))
	}
	trade := res.Trades[0]
	if trade.Reason != domain.ExitStop || trade.Exit != 104 {
		t.Errorf("trade = (%q, %v), want (STOP, 104)", trade.Reason, trade.Exit)
	}
	// size = 100 / 4 = 25; short pnl = (104-100)*25*-1 = -100
	if !trade.PnL.Equal(decimal.NewFromInt(-100)) {
		t.Errorf("PnL = %s, want -100", trade.PnL)
	}
}

// TestRunEndOfDataLiquidation: a position still open when the data ends is
// force-closed at its last known close with reason END.
func TestRunEndOfDataLiquidation(t *testing.T) {
	strat := newScripted().plan("ES", day(0), tradePlan{
		direction: domain.DirectionLong, entry: 100, stop: 90, target: 200,
	})
	bt := NewBacktester(strat, NewRiskManager(0.01, 10000, 1, 6), params(10000), nil)

	bars := map[string][]domain.Bar{
		"ES": {
			bar("ES", day(0), 100, 101, 99, 100),
			bar("ES", day(1), 100, 103, 98, 102),
		},
	}

	res, err := bt.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("Trades count = %d, want 1", len(res.Trades))
	}
	trade := res.Trades[0]
	if trade.Reason != domain.ExitEnd || trade.Exit != 102 {
		t.Errorf("trade = (%q, %v), want (END, 102)", trade.Reason, trade.Exit)
	}
	// Final equity must equal cash: 10000 + (102-100)*10 = 10020.
	// size = 100 / 10 = 10 units.
	final := res.EquityCurve[len(res.EquityCurve)-1].Equity
	if !final.Equal(decimal.NewFromInt(10020)) {
		t.Errorf("final equity = %s, want 10020", final)
	}
}

// TestRunSinglePositionPerSymbol: repeated signals for a symbol with an open
// position never stack a second position.
func TestRunSinglePositionPerSymbol(t *testing.T) {
	strat := newScripted()
	for d := 0; d < 5; d++ {
		strat.plan("ES", day(d), tradePlan{
			direction: domain.DirectionLong, entry: 100, stop: 95, target: 300,
		})
	}
	bt := NewBacktester(strat, NewRiskManager(0.01, 10000, 1, 6), params(10000), nil)

	bars := map[string][]domain.Bar{"ES": {}}
	for d := 0; d < 5; d++ {
		bars["ES"] = append(bars["ES"], bar("ES", day(d), 100, 101, 99, 100))
	}

	res, err := bt.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	// Only the first signal opens; the four repeats are rejected, and the one
	// position is liquidated at the end.
	if len(res.Trades) != 1 {
		t.Errorf("Trades count = %d, want 1", len(res.Trades))
	}
}

// TestRunDrawdownHaltBlocksNewEntries: after the halt trips, later signals
// open nothing even though equity recovers.
func TestRunDrawdownHaltBlocksNewEntries(t *testing.T) {
	strat := newScripted().
		plan("ES", day(0), tradePlan{direction: domain.DirectionLong, entry: 100, stop: 90, target: 300}).
		plan("ES", day(2), tradePlan{direction: domain.DirectionLong, entry: 80, stop: 75, target: 120}).
		plan("ES", day(4), tradePlan{direction: domain.DirectionLong, entry: 105, stop: 100, target: 150})

	// Max drawdown 50: marking the 10-unit position at the day-2 close of 91
	// puts equity at 9910, a drawdown of 90, so the day-2 signal trips the
	// halt before any other guard runs.
	bt := NewBacktester(strat, NewRiskManager(0.01, 50, 1, 6), params(10000), nil)

	bars := map[string][]domain.Bar{
		"ES": {
			bar("ES", day(0), 100, 101, 99, 100),
			bar("ES", day(1), 95, 96, 91, 92),   // mark-to-market loss, no stop hit
			bar("ES", day(2), 92, 93, 90.5, 91), // signal here must trip the halt
			bar("ES", day(3), 95, 110, 94, 108), // strong recovery
			bar("ES", day(4), 108, 112, 105, 110),
		},
	}

	res, err := bt.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// The only trade is the original position, closed at end of data; the
	// day-2 and day-4 signals open nothing.
	if len(res.Trades) != 1 {
		t.Fatalf("Trades count = %d, want 1 (halt must block re-entry)", len(res.Trades))
	}
	if res.Trades[0].Reason != domain.ExitEnd {
		t.Errorf("Reason = %q, want END", res.Trades[0].Reason)
	}
}

// TestRunNoLookahead: the trades and curve prefix produced on truncated data
// match those of the full run up to the cutoff.
func TestRunNoLookahead(t *testing.T) {
	strat := newScripted().plan("ES", day(1), tradePlan{
		direction: domain.DirectionLong, entry: 100, stop: 95, target: 110,
	})

	full := map[string][]domain.Bar{
		"ES": {
			bar("ES", day(0), 100, 101, 99, 100),
			bar("ES", day(1), 100, 102, 99, 101),
			bar("ES", day(2), 101, 103, 100, 102),
			bar("ES", day(3), 102, 111, 101, 109),
		},
	}
	truncated := map[string][]domain.Bar{"ES": full["ES"][:3]}

	mk := func() *Backtester {
		return NewBacktester(strat, NewRiskManager(0.01, 10000, 1, 6), params(10000), nil)
	}

	resFull, err := mk().Run(context.Background(), full)
	if err != nil {
		t.Fatalf("full Run returned error: %v", err)
	}
	resTrunc, err := mk().Run(context.Background(), truncated)
	if err != nil {
		t.Fatalf("truncated Run returned error: %v", err)
	}

	// Equity samples before the cutoff must be unaffected by future bars.
	for i := 0; i < 2; i++ {
		if !resFull.EquityCurve[i].Equity.Equal(resTrunc.EquityCurve[i].Equity) {
			t.Errorf("equity at step %d differs with future data: %s vs %s",
				i, resFull.EquityCurve[i].Equity, resTrunc.EquityCurve[i].Equity)
		}
	}
}

// TestRunDeterminism: identical inputs produce identical histories.
func TestRunDeterminism(t *testing.T) {
	strat := newScripted().
		plan("ES", day(0), tradePlan{direction: domain.DirectionLong, entry: 100, stop: 95, target: 104}).
		plan("NQ", day(0), tradePlan{direction: domain.DirectionShort, entry: 200, stop: 208, target: 185})

	bars := map[string][]domain.Bar{
		"ES": {
			bar("ES", day(0), 100, 101, 99, 100),
			bar("ES", day(1), 100, 105, 99, 104),
		},
		"NQ": {
			bar("NQ", day(0), 200, 201, 198, 200),
			bar("NQ", day(1), 199, 209, 196, 207),
		},
	}

	mk := func() *Backtester {
		return NewBacktester(strat, NewRiskManager(0.01, 10000, 1, 6), params(10000), nil)
	}

	a, err := mk().Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("first Run returned error: %v", err)
	}
	b, err := mk().Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}

	if !reflect.DeepEqual(a.Trades, b.Trades) {
		t.Error("trade histories differ between identical runs")
	}
	if !reflect.DeepEqual(a.EquityCurve, b.EquityCurve) {
		t.Error("equity curves differ between identical runs")
	}
}

// TestRunZeroSignals: a run that never signals leaves the curve flat at the
// initial capital and the trade history empty, with ratio metrics at zero.
func TestRunZeroSignals(t *testing.T) {
	strat := newScripted() // no plans
	bt := NewBacktester(strat, NewRiskManager(0.01, 10000, 1, 6), params(10000), nil)

	bars := map[string][]domain.Bar{
		"ES": {
			bar("ES", day(0), 100, 101, 99, 100),
			bar("ES", day(1), 100, 102, 99, 101),
			bar("ES", day(2), 101, 103, 100, 102),
		},
	}

	res, err := bt.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(res.Trades) != 0 {
		t.Errorf("Trades count = %d, want 0", len(res.Trades))
	}
	if len(res.EquityCurve) != 3 {
		t.Fatalf("EquityCurve length = %d, want 3", len(res.EquityCurve))
	}
	for i, pt := range res.EquityCurve {
		if !pt.Equity.Equal(decimal.NewFromInt(10000)) {
			t.Errorf("equity at step %d = %s, want 10000", i, pt.Equity)
		}
	}
	if res.Summary.SharpeRatio != 0 || res.Summary.WinRate != 0 || res.Summary.ProfitFactor != 0 {
		t.Errorf("ratios = (%v, %v, %v), want all 0",
			res.Summary.SharpeRatio, res.Summary.WinRate, res.Summary.ProfitFactor)
	}
}

// TestRunCancellation: aborting between bars reports a valid truncated
// result, never an error.
func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	strat := newScripted()
	bt := NewBacktester(strat, NewRiskManager(0.01, 10000, 1, 6), params(10000), nil)

	bars := map[string][]domain.Bar{
		"ES": {bar("ES", day(0), 100, 101, 99, 100)},
	}

	res, err := bt.Run(ctx, bars)
	if err != nil {
		t.Fatalf("cancelled Run returned error: %v", err)
	}
	if !res.Truncated {
		t.Error("Truncated = false, want true for cancelled run")
	}
	if res.State == StateFinished {
		t.Error("State = FINISHED, want non-terminal for cancelled run")
	}
}

// TestRunSkipsMalformedBars: a broken bar is ignored for its symbol while
// other symbols keep trading.
func TestRunSkipsMalformedBars(t *testing.T) {
	strat := newScripted().plan("NQ", day(1), tradePlan{
		direction: domain.DirectionLong, entry: 200, stop: 195, target: 210,
	})
	bt := NewBacktester(strat, NewRiskManager(0.01, 10000, 1, 6), params(10000), nil)

	bars := map[string][]domain.Bar{
		"ES": {
			bar("ES", day(0), 100, 101, 99, 100),
			{Symbol: "ES", Timestamp: day(1)},    // missing OHLC
			bar("ES", day(0), 100, 101, 99, 100), // non-monotonic timestamp
		},
		"NQ": {
			bar("NQ", day(0), 200, 201, 198, 200),
			bar("NQ", day(1), 200, 202, 199, 201),
			bar("NQ", day(2), 201, 211, 200, 210),
		},
	}

	res, err := bt.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("Trades count = %d, want 1 (NQ unaffected by ES bad bars)", len(res.Trades))
	}
	if res.Trades[0].Symbol != "NQ" || res.Trades[0].Reason != domain.ExitTarget {
		t.Errorf("trade = (%s, %q), want (NQ, TARGET)", res.Trades[0].Symbol, res.Trades[0].Reason)
	}
}

// TestRunEquityConservation: after every step, equity equals cash plus the
// mark-to-market value of open positions.
func TestRunEquityConservation(t *testing.T) {
	strat := newScripted().plan("ES", day(0), tradePlan{
		direction: domain.DirectionLong, entry: 100, stop: 90, target: 300,
	})
	bt := NewBacktester(strat, NewRiskManager(0.01, 10000, 1, 6), params(10000), nil)

	closes := []float64{100, 97, 103, 95, 101}
	bars := map[string][]domain.Bar{"ES": {}}
	for d, c := range closes {
		bars["ES"] = append(bars["ES"], bar("ES", day(d), c, c+1, c-1, c))
	}

	res, err := bt.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// Position of 10 units opened at 100 on day 0, held to the end.
	for i, pt := range res.EquityCurve {
		want := decimal.NewFromInt(10000).Add(
			decimal.NewFromFloat(closes[i] - 100).Mul(decimal.NewFromInt(10)))
		if !pt.Equity.Equal(want) {
			t.Errorf("equity at step %d = %s, want %s", i, pt.Equity, want)
		}
	}
}
