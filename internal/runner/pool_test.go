package runner_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/signalnine/cardbench/internal/runner"
)

func TestPool(t *testing.T) {
	var count, running, maxRunning atomic.Int32
	tasks := make([]runner.Task, 10)
	for i := range tasks {
		tasks[i] = func(context.Context) error {
			n := running.Add(1)
			for {
				m := maxRunning.Load()
				if n <= m || maxRunning.CompareAndSwap(m, n) {
					break
				}
			}
			count.Add(1)
			running.Add(-1)
			return nil
		}
	}
	errs := runner.RunPool(context.Background(), 3, tasks)
	for i, err := range errs {
		if err != nil {
			t.Errorf("task %d: unexpected error %v", i, err)
		}
	}
	if count.Load() != 10 {
		t.Errorf("expected 10 tasks, got %d", count.Load())
	}
	if maxRunning.Load() > 3 {
		t.Errorf("expected at most 3 concurrent tasks, saw %d", maxRunning.Load())
	}
}

func TestPoolWithErrors(t *testing.T) {
	fail := errors.New("fail")
	tasks := []runner.Task{
		func(context.Context) error { return nil },
		func(context.Context) error { return fail },
		func(context.Context) error { return nil },
	}
	errs := runner.RunPool(context.Background(), 2, tasks)
	if len(errs) != 3 {
		t.Fatalf("expected one slot per task, got %d", len(errs))
	}
	if errs[0] != nil || errs[2] != nil || !errors.Is(errs[1], fail) {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestPoolCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Int32
	tasks := []runner.Task{
		func(context.Context) error { ran.Add(1); return nil },
		func(context.Context) error { ran.Add(1); return nil },
	}
	errs := runner.RunPool(ctx, 1, tasks)
	if ran.Load() != 0 {
		t.Errorf("expected no task to run, %d did", ran.Load())
	}
	for i, err := range errs {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("task %d: got %v, want context.Canceled", i, err)
		}
	}
}
