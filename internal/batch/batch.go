// Package batch runs one extraction or validation operator over many inputs
// with bounded concurrency, optional result caching, and order-preserving
// output.
package batch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"deepresearch/internal/cache"
	"deepresearch/internal/errs"
	"deepresearch/internal/logging"
)

// Item is one unit of batch work. An empty ID is assigned item-<n>.
type Item struct {
	ID    string
	Input any
}

// Operator executes one item. Implementations must honor ctx cancellation
// between expensive phases.
type Operator func(ctx context.Context, input any) (any, error)

// Options tunes one batch run.
type Options struct {
	MaxConcurrency int
	UseCache       bool
	StopOnError    bool
}

// ItemResult is one item's outcome, at its input position.
type ItemResult struct {
	ID      string  `json:"id"`
	Index   int     `json:"index"`
	Success bool    `json:"success"`
	Data    any     `json:"data,omitempty"`
	Error   string  `json:"error,omitempty"`
	Cached  bool    `json:"cached"`
	TimeMs  float64 `json:"time_ms"`
}

// Summary aggregates a batch run.
type Summary struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	Aborted     int     `json:"aborted,omitempty"`
	TotalTimeMs float64 `json:"totalTimeMs"`
	AvgTimeMs   float64 `json:"avgTimeMs"`
}

// Result is a full batch outcome. Results[i] always describes items[i].
type Result struct {
	Results []ItemResult `json:"results"`
	Summary Summary      `json:"summary"`
}

// Runner executes batches for one operator family. Cache may be nil.
type Runner struct {
	Cache *cache.Cache
}

// Run dispatches items to op over a worker pool of size MaxConcurrency.
// With StopOnError the first failure cancels the pool and undispatched
// items report as aborted; otherwise failures are collected and the batch
// runs to completion.
func (r *Runner) Run(ctx context.Context, items []Item, op Operator, opts Options) (*Result, error) {
	const runOp = "batch.Run"
	if len(items) == 0 {
		return nil, errs.Validation(runOp, "items are required")
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 5
	}

	start := time.Now()
	results := make([]ItemResult, len(items))
	for i, item := range items {
		results[i] = ItemResult{ID: idOf(item, i), Index: i, Error: "aborted"}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxConcurrency)

	for i := range items {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			// A slot freed by a failing worker may hand us a cancelled
			// context; the item then stays aborted.
			if gctx.Err() != nil {
				return nil
			}
			res := r.runOne(gctx, items[i], results[i].ID, i, op, opts)
			results[i] = res
			if !res.Success && opts.StopOnError {
				return fmt.Errorf("item %s: %s", res.ID, res.Error)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logging.Batch().Warnf("batch stopped early: %v", err)
	}

	res := &Result{Results: results}
	var itemMs float64
	ran := 0
	for _, ir := range results {
		switch {
		case ir.Success:
			res.Summary.Successful++
		case ir.Error == "aborted":
			res.Summary.Aborted++
			continue
		default:
			res.Summary.Failed++
		}
		itemMs += ir.TimeMs
		ran++
	}
	res.Summary.Total = len(items)
	res.Summary.TotalTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	if ran > 0 {
		res.Summary.AvgTimeMs = itemMs / float64(ran)
	}

	logging.Batch().Debugf("batch complete: total=%d ok=%d failed=%d aborted=%d in %.1fms",
		res.Summary.Total, res.Summary.Successful, res.Summary.Failed,
		res.Summary.Aborted, res.Summary.TotalTimeMs)
	return res, nil
}

func (r *Runner) runOne(ctx context.Context, item Item, id string, index int, op Operator, opts Options) ItemResult {
	res := ItemResult{ID: id, Index: index}
	start := time.Now()

	var key string
	if opts.UseCache && r.Cache != nil {
		key = cache.Key(item.Input)
		if v, ok := r.Cache.Get(key); ok {
			res.Success = true
			res.Cached = true
			res.Data = v
			res.TimeMs = float64(time.Since(start).Microseconds()) / 1000.0
			return res
		}
	}

	data, err := op(ctx, item.Input)
	res.TimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.Data = data
	if key != "" {
		r.Cache.Put(key, data)
	}
	return res
}

func idOf(item Item, index int) string {
	if item.ID != "" {
		return item.ID
	}
	return fmt.Sprintf("item-%d", index+1)
}
