package runner

import (
	"errors"
	"fmt"
	"syscall"
	"time"
)

// SentinelThreshold separates usable estimates from the sentinel estimators
// return when a trial finished without a result. Only estimates strictly above
// it are averaged.
const SentinelThreshold = -1e9

var (
	// ErrTimedOut is reported when a worker outlives the trial deadline.
	ErrTimedOut = errors.New("trial timed out")
	// ErrNoSamples is returned by RunBatch when every trial completed with a
	// sentinel estimate.
	ErrNoSamples = errors.New("no trial produced a usable estimate")
)

type OutcomeKind int

const (
	Completed OutcomeKind = iota
	TimedOut
	Signaled
	// Exited covers a worker that exited on its own without publishing a
	// result for its trial.
	Exited
)

func (k OutcomeKind) String() string {
	switch k {
	case Completed:
		return "completed"
	case TimedOut:
		return "timeout"
	case Signaled:
		return "signaled"
	case Exited:
		return "exited"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the classified result of a single trial.
type Outcome struct {
	Kind           OutcomeKind
	Trial          int
	Estimate       float64
	ElapsedSeconds float64
	// PeakMemory is the running maximum held by the channel after this trial.
	PeakMemory int64
	Signal     syscall.Signal
	ExitCode   int
	// Wall is the controller-side time from spawn to reap.
	Wall time.Duration
}

// Usable reports whether a completed trial carries an estimate that should be
// averaged.
func (o Outcome) Usable() bool {
	return o.Kind == Completed && o.Estimate > SentinelThreshold
}

// Err returns nil for completed trials and the matching error otherwise.
func (o Outcome) Err() error {
	switch o.Kind {
	case Completed:
		return nil
	case TimedOut:
		return ErrTimedOut
	case Signaled:
		return &SignalError{Signal: o.Signal}
	default:
		return &ExitError{Code: o.ExitCode}
	}
}

type SignalError struct {
	Signal syscall.Signal
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("worker terminated by signal %d (%s)", int(e.Signal), e.Signal)
}

type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	if e.Code == 0 {
		return "worker exited without publishing a result"
	}
	return fmt.Sprintf("worker exited with status %d", e.Code)
}

// TrialError is returned by RunBatch when a trial aborts the batch.
type TrialError struct {
	Trial int
	Err   error
}

func (e *TrialError) Error() string {
	return fmt.Sprintf("trial %d: %v", e.Trial, e.Err)
}

func (e *TrialError) Unwrap() error { return e.Err }
