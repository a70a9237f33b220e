package runner

import (
	"context"
	"sync"
)

// Task is an independent in-process job, such as building one estimator's
// summary. Trials never go through the pool.
type Task func(ctx context.Context) error

// RunPool executes tasks with at most maxWorkers concurrently and returns one
// error slot per task, in task order. Tasks not yet started when ctx is done
// report ctx.Err() without running.
func RunPool(ctx context.Context, maxWorkers int, tasks []Task) []error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxWorkers)

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			errs[i] = ctx.Err()
			continue
		}
		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = task(ctx)
		}(i, task)
	}
	wg.Wait()
	return errs
}
