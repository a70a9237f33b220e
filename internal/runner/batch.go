package runner

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Batch is a fixed number of trials of one unit of work.
type Batch struct {
	Work     string
	Payload  []byte
	Trials   int
	BaseSeed int64
	// OnTrial, if set, observes every classified outcome, including the one
	// that aborts the batch.
	OnTrial func(Outcome)
}

// Summary aggregates the usable estimates of a batch that ran to completion.
type Summary struct {
	MeanEstimate       float64
	MeanElapsedSeconds float64
	EstimateVariance   float64
	TrialsCompleted    int
	TrialsDiscarded    int
	PeakMemory         int64
	Estimates          []float64
}

// RunBatch runs b.Trials trials in sequence, trial i seeded with BaseSeed+i.
//
// The first trial that times out, is killed by a signal or exits without a
// result aborts the batch: a *TrialError is returned and samples from earlier
// trials are dropped. Completed trials whose estimate is at or below
// SentinelThreshold are skipped. If no usable sample remains ErrNoSamples is
// returned.
//
// The running peak memory is reset at the start of every batch.
func (e *Executor) RunBatch(ctx context.Context, b Batch) (*Summary, error) {
	if b.Trials < 1 {
		return nil, fmt.Errorf("trial count must be at least 1, got %d", b.Trials)
	}
	e.ch.Reset()

	var (
		estimates []float64
		elapsed   []float64
		discarded int
		peak      int64
	)
	for i := 0; i < b.Trials; i++ {
		out, err := e.RunTrial(ctx, Trial{
			Work:    b.Work,
			Payload: b.Payload,
			Index:   i,
			Seed:    b.BaseSeed + int64(i),
		})
		if err != nil {
			return nil, &TrialError{Trial: i, Err: err}
		}
		if b.OnTrial != nil {
			b.OnTrial(out)
		}
		if out.Kind != Completed {
			e.log.Warn("aborting batch",
				zap.String("work", b.Work),
				zap.Int("trial", i),
				zap.Stringer("outcome", out.Kind),
				zap.Int("signal", int(out.Signal)))
			return nil, &TrialError{Trial: i, Err: out.Err()}
		}
		peak = out.PeakMemory
		if !out.Usable() {
			discarded++
			e.log.Debug("discarding sentinel estimate", zap.Int("trial", i), zap.Float64("estimate", out.Estimate))
			continue
		}
		estimates = append(estimates, out.Estimate)
		elapsed = append(elapsed, out.ElapsedSeconds)
	}

	if len(estimates) == 0 {
		return nil, ErrNoSamples
	}
	s := &Summary{
		MeanEstimate:       stat.Mean(estimates, nil),
		MeanElapsedSeconds: stat.Mean(elapsed, nil),
		TrialsCompleted:    len(estimates),
		TrialsDiscarded:    discarded,
		PeakMemory:         peak,
		Estimates:          estimates,
	}
	if len(estimates) > 1 {
		s.EstimateVariance = stat.Variance(estimates, nil)
	}
	return s, nil
}
