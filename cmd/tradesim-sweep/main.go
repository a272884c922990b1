package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/engine"
	"tradesim/internal/indicator"
	"tradesim/internal/store"
	"tradesim/internal/strategy/builtins"
	"tradesim/internal/util"
)

func main() {
	paramName := flag.String("param", "risk_per_trade",
		"parameter to sweep: risk_per_trade or a strategy param name")
	valuesArg := flag.String("values", "", "comma-separated values to sweep (required)")
	workers := flag.Int("workers", runtime.NumCPU(), "parallel runs")
	flag.Parse()

	values, err := parseValues(*valuesArg)
	if err != nil {
		log.Fatalf("invalid -values: %v", err)
	}

	cfgPath := "config/tradesim.yaml"
	if p := os.Getenv("TRADESIM_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bars, err := loadBars(ctx, cfg)
	if err != nil {
		log.Fatalf("loading bars: %v", err)
	}

	runs := make([]engine.SweepRun, 0, len(values))
	for _, v := range values {
		bt, label, err := buildRun(cfg, *paramName, v)
		if err != nil {
			log.Fatalf("building run for %v: %v", v, err)
		}
		runs = append(runs, engine.SweepRun{Label: label, Backtest: bt})
	}

	logger.Info("sweep starting", "param", *paramName, "runs", len(runs), "workers", *workers)
	results := engine.Sweep(ctx, runs, bars, *workers, logger)

	fmt.Printf("%-28s %12s %10s %10s %8s %8s\n",
		"run", "final", "return%", "maxDD%", "sharpe", "trades")
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("%-28s failed: %v\n", r.Label, r.Err)
			continue
		}
		s := r.Result.Summary
		fmt.Printf("%-28s %12.2f %10.2f %10.2f %8.2f %8d\n",
			r.Label, s.FinalEquity, s.TotalReturnPct, s.MaxDrawdownPct,
			s.SharpeRatio, s.TotalTrades)
	}
}

// buildRun constructs one backtester with the swept parameter applied.
func buildRun(cfg *config.Config, param string, value float64) (*engine.Backtester, string, error) {
	bt := cfg.Backtest

	riskPerTrade := bt.RiskPerTrade
	stratParams := make(map[string]float64, len(bt.Strategy.Params)+1)
	for k, v := range bt.Strategy.Params {
		stratParams[k] = v
	}

	if param == "risk_per_trade" {
		riskPerTrade = value
	} else {
		stratParams[param] = value
	}

	strat, err := builtins.New(bt.Strategy.Name, stratParams)
	if err != nil {
		return nil, "", err
	}

	risk := engine.NewRiskManager(
		riskPerTrade,
		bt.InitialCapital*bt.MaxDrawdown,
		bt.MinTradeUnit,
		bt.MaxPositions,
	)
	params := engine.Params{
		InitialCapital: bt.InitialCapital,
		RiskFreeRate:   bt.RiskFreeRate,
		Annualization:  bt.Annualization,
	}

	label := fmt.Sprintf("%s=%g", param, value)
	return engine.NewBacktester(strat, risk, params, nil), label, nil
}

func parseValues(arg string) ([]float64, error) {
	if strings.TrimSpace(arg) == "" {
		return nil, fmt.Errorf("at least one value is required")
	}
	parts := strings.Split(arg, ",")
	values := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", p, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// loadBars reads the configured symbols from the parquet store for the
// configured window and enriches them with indicator values.
func loadBars(ctx context.Context, cfg *config.Config) (map[string][]domain.Bar, error) {
	start, err := time.Parse("2006-01-02", cfg.Backtest.StartDate)
	if err != nil {
		return nil, fmt.Errorf("parsing start date %q: %w", cfg.Backtest.StartDate, err)
	}
	end, err := time.Parse("2006-01-02", cfg.Backtest.EndDate)
	if err != nil {
		return nil, fmt.Errorf("parsing end date %q: %w", cfg.Backtest.EndDate, err)
	}

	ps := store.NewParquetStore(cfg.Storage.DataDir)
	bars := make(map[string][]domain.Bar, len(cfg.Backtest.Symbols))
	for _, sym := range cfg.Backtest.Symbols {
		raw, err := ps.ReadBars(ctx, sym, start, end)
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s: %w", sym, err)
		}
		if len(raw) == 0 {
			return nil, fmt.Errorf("no bars stored for %s in [%s, %s]; run tradesim-fetch first",
				sym, cfg.Backtest.StartDate, cfg.Backtest.EndDate)
		}
		bars[sym] = indicator.Enrich(raw)
	}
	return bars, nil
}
