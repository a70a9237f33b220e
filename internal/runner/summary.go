package runner

import (
	"context"
	"time"
)

// TimeSummary runs a one-shot preprocessing step in the calling process and
// reports how long it took. There is no isolation, deadline or retry.
func TimeSummary(ctx context.Context, fn func(context.Context) error) (time.Duration, error) {
	start := time.Now()
	err := fn(ctx)
	return time.Since(start), err
}
