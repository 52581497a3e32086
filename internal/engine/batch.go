package engine

import (
	"context"
	"runtime"
	"sync"
)

// Batch runs jobs on up to workers goroutines (GOMAXPROCS when workers <= 0).
// Jobs share no state; results come back in job order.
func (e *Engine) Batch(ctx context.Context, jobs []Job, workers int) []JobResult {
	if len(jobs) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	type result struct {
		index int
		res   JobResult
	}

	work := make(chan int, len(jobs))
	results := make(chan result, len(jobs))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				job := jobs[idx]
				if err := ctx.Err(); err != nil {
					results <- result{index: idx, res: JobResult{Job: job, Err: err}}
					continue
				}
				results <- result{index: idx, res: e.Run(ctx, job)}
			}
		}()
	}

	for i := range jobs {
		work <- i
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results in original order
	indexed := make([]JobResult, len(jobs))
	for r := range results {
		indexed[r.index] = r.res
	}
	return indexed
}
