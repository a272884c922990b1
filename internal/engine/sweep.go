package engine

import (
	"context"
	"log/slog"
	"sync"

	"tradesim/internal/domain"
)

// SweepRun is one configuration in a parameter sweep: a label, a strategy
// instance, and the risk settings for that run.
type SweepRun struct {
	Label    string
	Backtest *Backtester
}

// SweepResult pairs a run label with its outcome.
type SweepResult struct {
	Label  string
	Result *Result
	Err    error
}

// Sweep executes independent runs in parallel across at most workers
// goroutines. Runs share the (read-only) bar data but nothing else: each
// owns a private portfolio, so this is safe and deterministic per run.
// Results are returned in the order the runs were given.
func Sweep(ctx context.Context, runs []SweepRun, barsBySymbol map[string][]domain.Bar, workers int, log *slog.Logger) []SweepResult {
	if workers < 1 {
		workers = 1
	}
	if workers > len(runs) {
		workers = len(runs)
	}
	if log == nil {
		log = slog.Default()
	}

	results := make([]SweepResult, len(runs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				run := runs[i]
				res, err := run.Backtest.Run(ctx, barsBySymbol)
				results[i] = SweepResult{Label: run.Label, Result: res, Err: err}
				if err != nil {
					log.Warn("sweep run failed", "label", run.Label, "err", err)
				}
			}
		}()
	}

	for i := range runs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}
