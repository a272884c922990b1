package report

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

func curveOf(values ...float64) []domain.EquityPoint {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	curve := make([]domain.EquityPoint, len(values))
	for i, v := range values {
		curve[i] = domain.EquityPoint{
			Timestamp: base.AddDate(0, 0, i),
			Equity:    decimal.NewFromFloat(v),
		}
	}
	return curve
}

func tradeOf(pnl float64) domain.Trade {
	return domain.Trade{Symbol: "ES", PnL: decimal.NewFromFloat(pnl)}
}

func approx(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol
}

func TestComputeEmptyRun(t *testing.T) {
	s := Compute(nil, nil, decimal.NewFromInt(10000), Options{Annualization: 252})

	if s.FinalEquity != 10000 {
		t.Errorf("FinalEquity = %v, want initial capital 10000", s.FinalEquity)
	}
	if s.TotalReturnPct != 0 || s.MaxDrawdownPct != 0 || s.SharpeRatio != 0 {
		t.Errorf("return/drawdown/sharpe = (%v, %v, %v), want zeros",
			s.TotalReturnPct, s.MaxDrawdownPct, s.SharpeRatio)
	}
	if s.TotalTrades != 0 || s.WinRate != 0 || s.ProfitFactor != 0 {
		t.Errorf("trade stats = (%d, %v, %v), want zeros",
			s.TotalTrades, s.WinRate, s.ProfitFactor)
	}
}

func TestComputeTotalReturn(t *testing.T) {
	s := Compute(curveOf(10000, 10500, 11000), nil, decimal.NewFromInt(10000),
		Options{Annualization: 252})
	if !approx(s.TotalReturnPct, 10, 1e-9) {
		t.Errorf("TotalReturnPct = %v, want 10", s.TotalReturnPct)
	}
	if s.FinalEquity != 11000 {
		t.Errorf("FinalEquity = %v, want 11000", s.FinalEquity)
	}
}

func TestMaxDrawdownPeakRelative(t *testing.T) {
	// Peak 12000, trough 9000 afterwards: drawdown 25% even though the run
	// ends above where it started.
	s := Compute(curveOf(10000, 12000, 9000, 11500), nil, decimal.NewFromInt(10000),
		Options{Annualization: 252})
	if !approx(s.MaxDrawdownPct, 25, 1e-9) {
		t.Errorf("MaxDrawdownPct = %v, want 25", s.MaxDrawdownPct)
	}
}

func TestMaxDrawdownMonotoneCurve(t *testing.T) {
	s := Compute(curveOf(10000, 10100, 10250, 10400), nil, decimal.NewFromInt(10000),
		Options{Annualization: 252})
	if s.MaxDrawdownPct != 0 {
		t.Errorf("MaxDrawdownPct = %v, want 0 for a rising curve", s.MaxDrawdownPct)
	}
}

func TestSharpeZeroVariance(t *testing.T) {
	// Equity doubles every period, so every return is exactly 1.0: variance
	// is zero, and the ratio must report 0 rather than dividing by it.
	s := Compute(curveOf(10000, 20000, 40000, 80000), nil, decimal.NewFromInt(10000),
		Options{Annualization: 252})
	if s.SharpeRatio != 0 {
		t.Errorf("SharpeRatio = %v, want 0 for zero-variance returns", s.SharpeRatio)
	}
}

func TestSharpeKnownSeries(t *testing.T) {
	// Returns: +2%, -1%. mean = 0.005, sample stddev = sqrt(2*0.015^2) .
	curve := curveOf(10000, 10200, 10098)
	s := Compute(curve, nil, decimal.NewFromInt(10000), Options{Annualization: 252})

	mean := 0.005
	sd := math.Sqrt((math.Pow(0.02-mean, 2) + math.Pow(-0.01-mean, 2)) / 1)
	want := mean / sd * math.Sqrt(252)
	if !approx(s.SharpeRatio, want, 1e-9) {
		t.Errorf("SharpeRatio = %v, want %v", s.SharpeRatio, want)
	}
}

func TestSharpeRiskFreeAdjustment(t *testing.T) {
	curve := curveOf(10000, 10200, 10098)
	plain := Compute(curve, nil, decimal.NewFromInt(10000), Options{Annualization: 252})
	adjusted := Compute(curve, nil, decimal.NewFromInt(10000),
		Options{RiskFreeRate: 0.05, Annualization: 252})
	if adjusted.SharpeRatio >= plain.SharpeRatio {
		t.Errorf("risk-free rate must lower the ratio: %v >= %v",
			adjusted.SharpeRatio, plain.SharpeRatio)
	}
}

func TestTradeStats(t *testing.T) {
	trades := []domain.Trade{
		tradeOf(200), tradeOf(100), tradeOf(-150), tradeOf(0),
	}
	s := Compute(curveOf(10000, 10150), trades, decimal.NewFromInt(10000),
		Options{Annualization: 252})

	if s.TotalTrades != 4 || s.WinningTrades != 2 || s.LosingTrades != 1 {
		t.Errorf("counts = (%d, %d, %d), want (4, 2, 1)",
			s.TotalTrades, s.WinningTrades, s.LosingTrades)
	}
	if !approx(s.WinRate, 0.5, 1e-12) {
		t.Errorf("WinRate = %v, want 0.5", s.WinRate)
	}
	if !approx(s.ProfitFactor, 2, 1e-12) {
		t.Errorf("ProfitFactor = %v, want 2 (300/150)", s.ProfitFactor)
	}
	if !approx(s.AverageWin, 150, 1e-12) {
		t.Errorf("AverageWin = %v, want 150", s.AverageWin)
	}
	if !approx(s.AverageLoss, -150, 1e-12) {
		t.Errorf("AverageLoss = %v, want -150", s.AverageLoss)
	}
}

func TestProfitFactorCapNoLosers(t *testing.T) {
	trades := []domain.Trade{tradeOf(50), tradeOf(75)}
	s := Compute(curveOf(10000, 10125), trades, decimal.NewFromInt(10000),
		Options{Annualization: 252})
	if s.ProfitFactor != ProfitFactorCap {
		t.Errorf("ProfitFactor = %v, want cap %d", s.ProfitFactor, ProfitFactorCap)
	}
}

func TestProfitFactorAllScratch(t *testing.T) {
	trades := []domain.Trade{tradeOf(0), tradeOf(0)}
	s := Compute(curveOf(10000, 10000), trades, decimal.NewFromInt(10000),
		Options{Annualization: 252})
	if s.ProfitFactor != 0 {
		t.Errorf("ProfitFactor = %v, want 0 when nothing was won or lost", s.ProfitFactor)
	}
	if s.WinRate != 0 {
		t.Errorf("WinRate = %v, want 0", s.WinRate)
	}
}
