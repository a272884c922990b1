package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
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
	noPersist := flag.Bool("no-persist", false, "skip writing the run to the results database")
	flag.Parse()

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

	strat, err := builtins.New(cfg.Backtest.Strategy.Name, cfg.Backtest.Strategy.Params)
	if err != nil {
		log.Fatalf("building strategy: %v", err)
	}

	bt := engine.NewBacktester(strat, riskManager(cfg), engineParams(cfg), logger)

	res, err := bt.Run(ctx, bars)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	out, err := json.MarshalIndent(res.Summary, "", "  ")
	if err != nil {
		log.Fatalf("encoding summary: %v", err)
	}
	fmt.Println(string(out))

	if *noPersist {
		return
	}

	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening results database: %v", err)
	}
	defer st.Close()

	id, err := st.SaveRun(ctx, &store.RunRecord{
		Strategy:       res.Strategy,
		Symbols:        cfg.Backtest.Symbols,
		InitialCapital: cfg.Backtest.InitialCapital,
		State:          string(res.State),
		Truncated:      res.Truncated,
		Summary:        res.Summary,
		Trades:         res.Trades,
		EquityCurve:    res.EquityCurve,
	})
	if err != nil {
		log.Fatalf("persisting run: %v", err)
	}
	logger.Info("run persisted", "id", id, "trades", len(res.Trades))
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

func riskManager(cfg *config.Config) *engine.RiskManager {
	bt := cfg.Backtest
	return engine.NewRiskManager(
		bt.RiskPerTrade,
		bt.InitialCapital*bt.MaxDrawdown,
		bt.MinTradeUnit,
		bt.MaxPositions,
	)
}

func engineParams(cfg *config.Config) engine.Params {
	bt := cfg.Backtest
	return engine.Params{
		InitialCapital: bt.InitialCapital,
		RiskFreeRate:   bt.RiskFreeRate,
		Annualization:  bt.Annualization,
	}
}
