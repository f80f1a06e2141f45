package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/promptopt/models"
	"golang.org/x/sync/errgroup"
)

// Item is one prompt of a batch with its own options.
type Item struct {
	Prompt  string
	Options Options
}

// ProcessBatch runs prompts with shared options. See ProcessItems.
func (p *Pipeline) ProcessBatch(ctx context.Context, prompts []string, opts Options, concurrency int) *models.BatchResult {
	items := make([]Item, len(prompts))
	for i, prompt := range prompts {
		items[i] = Item{Prompt: prompt, Options: opts}
	}
	return p.ProcessItems(ctx, items, concurrency)
}

// ProcessItems splits items into chunks of size concurrency (Config
// default when <= 0) and runs each chunk concurrently. A chunk settles
// fully before the next one starts, and one prompt's failure never cancels
// its siblings. Results keep input order and carry ids "<batchId>_<n>".
func (p *Pipeline) ProcessItems(ctx context.Context, items []Item, concurrency int) *models.BatchResult {
	start := time.Now()
	batchID := newID("batch_")
	if concurrency <= 0 {
		concurrency = p.cfg.Concurrency
	}

	results := make([]models.Outcome, len(items))
	for lo := 0; lo < len(items); lo += concurrency {
		hi := min(lo+concurrency, len(items))

		// Plain Group: no shared context, so siblings are never cancelled.
		var g errgroup.Group
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				results[i] = p.safeProcess(ctx, ItemID(batchID, i), items[i].Prompt, items[i].Options)
				return nil
			})
		}
		_ = g.Wait()
	}

	res := Summarize(batchID, results, time.Since(start))
	slog.Info("batch finished",
		"batch_id", batchID,
		"total", res.TotalPrompts,
		"successful", res.Successful,
		"failed", res.Failed,
		"duration_ms", res.Statistics.TotalProcessingTime,
	)
	return res
}

// ItemID derives the id of the index-th (0-based) prompt of a batch.
func ItemID(batchID string, index int) string {
	return fmt.Sprintf("%s_%d", batchID, index+1)
}

// Summarize builds a BatchResult from outcomes in input order.
func Summarize(batchID string, results []models.Outcome, elapsed time.Duration) *models.BatchResult {
	res := &models.BatchResult{
		BatchID:      batchID,
		TotalPrompts: len(results),
		Results:      results,
		Timestamp:    time.Now().UTC(),
	}

	for _, o := range results {
		if r, ok := o.(*models.OptimizationResult); ok {
			res.Successful++
			res.Statistics.TotalTokenReduction += r.Statistics.TotalTokenReduction
		} else {
			res.Failed++
		}
	}

	res.Statistics.TotalProcessingTime = elapsed.Milliseconds()
	if res.TotalPrompts > 0 {
		res.Statistics.AverageProcessingTime = float64(res.Statistics.TotalProcessingTime) / float64(res.TotalPrompts)
	}
	if res.Successful > 0 {
		res.Statistics.AverageTokenReduction = float64(res.Statistics.TotalTokenReduction) / float64(res.Successful)
	}
	return res
}
