package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tradesim/internal/config"
	"tradesim/internal/feed"
	"tradesim/internal/store"
	"tradesim/internal/util"
)

func main() {
	symbolsArg := flag.String("symbols", "",
		"comma-separated symbols to fetch (default: backtest.symbols from config)")
	flag.Parse()

	cfgPath := "config/tradesim.yaml"
	if p := os.Getenv("TRADESIM_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	symbols := cfg.Backtest.Symbols
	if *symbolsArg != "" {
		symbols = nil
		for _, s := range strings.Split(*symbolsArg, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, strings.ToUpper(s))
			}
		}
	}
	if len(symbols) == 0 {
		log.Fatal("no symbols to fetch: pass -symbols or set backtest.symbols")
	}

	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		log.Fatal("alpaca credentials missing: set alpaca.api_key/api_secret or APCA_API_KEY_ID/APCA_API_SECRET_KEY")
	}

	start, err := time.Parse("2006-01-02", cfg.Fetch.StartDate)
	if err != nil {
		log.Fatalf("parsing fetch.start_date %q: %v", cfg.Fetch.StartDate, err)
	}
	end := util.LastTradingDay(time.Now())

	fetcher := feed.NewFetcher(feed.Options{
		APIKey:          cfg.Alpaca.APIKey,
		APISecret:       cfg.Alpaca.APISecret,
		DataURL:         cfg.Alpaca.DataURL,
		BatchSize:       cfg.Fetch.BatchSize,
		RateLimitPerMin: cfg.Fetch.RateLimitPerMin,
		MaxAttempts:     cfg.Fetch.MaxAttempts,
	}, store.NewParquetStore(cfg.Storage.DataDir), logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("fetch starting", "symbols", len(symbols), "start", cfg.Fetch.StartDate)
	n, err := fetcher.Fetch(ctx, symbols, start, end)
	if err != nil {
		log.Fatalf("fetch failed after %d bars: %v", n, err)
	}
	logger.Info("fetch complete", "bars", n)
}
