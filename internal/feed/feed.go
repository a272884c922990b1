// Package feed populates the local bar store with daily OHLCV history from
// the Alpaca market-data API. It runs before a backtest starts; a feed
// failure means the run never begins, it is never interrupted mid-run.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"tradesim/internal/domain"
	"tradesim/internal/store"
	"tradesim/internal/util"
)

// barClient is the slice of the Alpaca market-data client the fetcher needs.
type barClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// Fetcher downloads daily bars in symbol batches and writes them to a
// BarStore, rate-limited and retried around every API call.
type Fetcher struct {
	client      barClient
	store       store.BarStore
	batchSize   int
	maxAttempts int
	retryDelay  time.Duration
	limiter     *util.RateLimiter
	log         *slog.Logger
}

// Options configures a Fetcher.
type Options struct {
	APIKey          string
	APISecret       string
	DataURL         string
	BatchSize       int // symbols per API call
	RateLimitPerMin int
	MaxAttempts     int
}

// NewFetcher creates a Fetcher talking to the real Alpaca data API.
func NewFetcher(opts Options, s store.BarStore, log *slog.Logger) *Fetcher {
	clientOpts := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		clientOpts.BaseURL = opts.DataURL
	}
	return newFetcher(marketdata.NewClient(clientOpts), opts, s, log)
}

func newFetcher(client barClient, opts Options, s store.BarStore, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 500
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	perMin := opts.RateLimitPerMin
	if perMin <= 0 {
		perMin = 200
	}
	return &Fetcher{
		client:      client,
		store:       s,
		batchSize:   batch,
		maxAttempts: attempts,
		retryDelay:  time.Second,
		limiter:     util.NewRateLimiter(perMin),
		log:         log.With("component", "feed"),
	}
}

// Fetch downloads daily bars for the given symbols over [start, end] and
// persists them. It returns the number of bars written. Any batch failing
// after all retries aborts the fetch.
func (f *Fetcher) Fetch(ctx context.Context, symbols []string, start, end time.Time) (int, error) {
	if len(symbols) == 0 {
		return 0, nil
	}

	total := 0
	for i := 0; i < len(symbols); i += f.batchSize {
		j := min(i+f.batchSize, len(symbols))
		batch := symbols[i:j]

		bars, err := f.fetchBatch(ctx, batch, start, end)
		if err != nil {
			return total, fmt.Errorf("fetching %v: %w", batch, err)
		}
		if len(bars) == 0 {
			f.log.Warn("no bars returned", "symbols", batch)
			continue
		}
		if err := f.store.WriteBars(ctx, bars); err != nil {
			return total, fmt.Errorf("writing bars: %w", err)
		}
		total += len(bars)
		f.log.Info("batch stored", "symbols", len(batch), "bars", len(bars))
	}
	return total, nil
}

// fetchBatch fetches daily bars for one symbol batch with rate limiting and
// exponential-backoff retries.
func (f *Fetcher) fetchBatch(ctx context.Context, symbols []string, start, end time.Time) ([]domain.Bar, error) {
	var multiBars map[string][]marketdata.Bar

	err := util.Retry(ctx, f.maxAttempts, f.retryDelay, func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		multiBars, err = f.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp,
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars, nil
}
