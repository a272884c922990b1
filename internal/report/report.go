// Package report derives summary performance statistics from a completed
// (or truncated) backtest run. Everything here is a pure function over the
// equity curve and trade history; an empty run yields zeros, never errors.
package report

import (
	"math"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

// ProfitFactorCap is the sentinel reported when a run has winning trades and
// no losing trades, where the true profit factor is unbounded.
const ProfitFactorCap = 999

// Options configures the Sharpe ratio derivation.
type Options struct {
	RiskFreeRate  float64 // annualized, e.g. 0.02
	Annualization float64 // periods per year, e.g. 252 for daily bars
}

// Summary holds the headline metrics of one backtest run.
type Summary struct {
	FinalEquity    float64 `json:"final_equity"`
	TotalReturnPct float64 `json:"total_return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	ProfitFactor  float64 `json:"profit_factor"`
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
}

// Compute derives the summary metrics for a run that started with
// initialCapital. It tolerates empty inputs: all ratios report as zero.
func Compute(curve []domain.EquityPoint, trades []domain.Trade, initialCapital decimal.Decimal, opts Options) Summary {
	s := Summary{}

	s.FinalEquity = initialCapital.InexactFloat64()
	if len(curve) > 0 {
		s.FinalEquity = curve[len(curve)-1].Equity.InexactFloat64()
	}
	if !initialCapital.IsZero() {
		s.TotalReturnPct = (s.FinalEquity/initialCapital.InexactFloat64() - 1) * 100
	}

	s.MaxDrawdownPct = maxDrawdownPct(curve)
	s.SharpeRatio = sharpe(curve, opts)

	fillTradeStats(&s, trades)
	return s
}

// maxDrawdownPct returns the largest peak-relative equity decline over the
// curve, in percent.
func maxDrawdownPct(curve []domain.EquityPoint) float64 {
	var maxDD, peak float64
	for _, pt := range curve {
		e := pt.Equity.InexactFloat64()
		if e > peak {
			peak = e
		}
		if peak > 0 {
			if dd := (peak - e) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// sharpe computes the annualized Sharpe ratio from per-period equity-curve
// returns. It reports 0 when the return variance is zero or the curve is too
// short to produce a return series.
func sharpe(curve []domain.EquityPoint, opts Options) float64 {
	if len(curve) < 2 || opts.Annualization <= 0 {
		return 0
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity.InexactFloat64()
		if prev == 0 {
			continue
		}
		cur := curve[i].Equity.InexactFloat64()
		returns = append(returns, cur/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}

	perPeriodRF := opts.RiskFreeRate / opts.Annualization
	return (mean - perPeriodRF) / math.Sqrt(variance) * math.Sqrt(opts.Annualization)
}

func fillTradeStats(s *Summary, trades []domain.Trade) {
	s.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	grossWin := decimal.Zero
	grossLoss := decimal.Zero
	for _, t := range trades {
		if t.PnL.IsPositive() {
			s.WinningTrades++
			grossWin = grossWin.Add(t.PnL)
		} else if t.PnL.IsNegative() {
			s.LosingTrades++
			grossLoss = grossLoss.Add(t.PnL.Abs())
		}
	}

	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)

	switch {
	case grossLoss.IsZero() && grossWin.IsPositive():
		s.ProfitFactor = ProfitFactorCap
	case grossLoss.IsZero():
		s.ProfitFactor = 0
	default:
		s.ProfitFactor = grossWin.Div(grossLoss).InexactFloat64()
	}

	if s.WinningTrades > 0 {
		s.AverageWin = grossWin.InexactFloat64() / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AverageLoss = -grossLoss.InexactFloat64() / float64(s.LosingTrades)
	}
}
