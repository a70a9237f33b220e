package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/moby/sys/reexec"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/signalnine/cardbench/internal/shm"
)

const (
	DefaultDeadline     = 5 * time.Minute
	DefaultPollInterval = 100 * time.Millisecond
	DefaultReapInterval = time.Second
)

type Options struct {
	// Deadline bounds the wall-clock time of a single trial.
	Deadline     time.Duration
	PollInterval time.Duration
	// ReapInterval is how often a killed worker is polled until reaped.
	ReapInterval time.Duration
	// WorkerOutput receives the worker's stdout and stderr. Defaults to the
	// controller's stderr so stdout stays reserved for results.
	WorkerOutput   *os.File
	WorkerLogLevel string
	Logger         *zap.Logger
}

func (o *Options) setDefaults() {
	if o.Deadline <= 0 {
		o.Deadline = DefaultDeadline
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ReapInterval <= 0 {
		o.ReapInterval = DefaultReapInterval
	}
	if o.WorkerOutput == nil {
		o.WorkerOutput = os.Stderr
	}
	if o.WorkerLogLevel == "" {
		o.WorkerLogLevel = "info"
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Trial identifies one isolated execution of a registered unit of work.
type Trial struct {
	Work    string
	Payload []byte
	Index   int
	Seed    int64
}

// Executor runs trials one at a time in re-executed worker processes and owns
// the shared result channel they publish to.
type Executor struct {
	ch   *shm.Channel
	opts Options
	log  *zap.Logger
	seq  uint64
}

// Open acquires the shared result channel. The returned error wraps
// shm.ErrChannelUnavailable when the segment cannot be created.
func Open(opts Options) (*Executor, error) {
	opts.setDefaults()
	ch, err := shm.Acquire()
	if err != nil {
		return nil, err
	}
	return &Executor{ch: ch, opts: opts, log: opts.Logger}, nil
}

// Close destroys the shared result channel.
func (e *Executor) Close() error {
	return e.ch.Destroy()
}

// Deadline is the per-trial deadline in effect.
func (e *Executor) Deadline() time.Duration { return e.opts.Deadline }

// RunTrial spawns a worker for t, waits for it and classifies how it ended.
// The worker is reaped on every path. An error is returned only when the
// worker could not be started or waited on.
func (e *Executor) RunTrial(ctx context.Context, t Trial) (Outcome, error) {
	if _, ok := lookup(t.Work); !ok {
		return Outcome{}, fmt.Errorf("unknown work %q", t.Work)
	}
	e.seq++
	spec := workerSpec{
		work:     t.Work,
		payload:  t.Payload,
		index:    t.Index,
		seed:     t.Seed,
		sequence: e.seq,
		channel:  e.ch.ID(),
		logLevel: e.opts.WorkerLogLevel,
	}

	cmd := reexec.Command(workerEntry)
	cmd.Env = append(os.Environ(), spec.environ()...)
	cmd.Stdout = e.opts.WorkerOutput
	cmd.Stderr = e.opts.WorkerOutput
	// Its own process group lets a timeout also take down anything the work
	// spawned, such as an external estimator binary.
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("starting worker for trial %d: %w", t.Index, err)
	}
	// The worker is reaped with wait4 below; Release only drops the handle.
	defer cmd.Process.Release()

	pid := cmd.Process.Pid
	log := e.log.With(zap.String("work", t.Work), zap.Int("trial", t.Index), zap.Int("pid", pid))
	log.Debug("worker started", zap.Int64("seed", t.Seed))

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Warn("trial cancelled, killing worker", zap.Error(ctx.Err()))
			return e.killAndReap(cmd.Process, pid, t.Index, start)
		case <-ticker.C:
		}

		status, exited, err := tryReap(pid)
		if err != nil {
			return Outcome{}, fmt.Errorf("waiting for worker %d: %w", pid, err)
		}
		if exited {
			out := e.classify(status, t.Index, spec.sequence)
			out.Wall = time.Since(start)
			log.Debug("worker finished", zap.Stringer("outcome", out.Kind))
			return out, nil
		}
		if time.Since(start) > e.opts.Deadline {
			log.Warn("trial deadline exceeded, killing worker", zap.Duration("deadline", e.opts.Deadline))
			return e.killAndReap(cmd.Process, pid, t.Index, start)
		}
	}
}

func (e *Executor) classify(status unix.WaitStatus, index int, seq uint64) Outcome {
	switch {
	case status.Signaled():
		return Outcome{Kind: Signaled, Trial: index, Signal: status.Signal()}
	case status.ExitStatus() != 0:
		return Outcome{Kind: Exited, Trial: index, ExitCode: status.ExitStatus()}
	}
	rec := e.ch.Load()
	if rec.Sequence != seq {
		return Outcome{Kind: Exited, Trial: index}
	}
	return Outcome{
		Kind:           Completed,
		Trial:          index,
		Estimate:       rec.Estimate,
		ElapsedSeconds: rec.ElapsedSeconds,
		PeakMemory:     rec.PeakMemory,
	}
}

func (e *Executor) killAndReap(proc *os.Process, pid, index int, start time.Time) (Outcome, error) {
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		e.log.Warn("killing worker process group", zap.Int("pid", pid), zap.Error(err))
	}
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		e.log.Warn("killing worker", zap.Int("pid", pid), zap.Error(err))
	}
	for {
		_, exited, err := tryReap(pid)
		if err != nil {
			return Outcome{}, fmt.Errorf("reaping killed worker %d: %w", pid, err)
		}
		if exited {
			break
		}
		time.Sleep(e.opts.ReapInterval)
	}
	return Outcome{Kind: TimedOut, Trial: index, Wall: time.Since(start)}, nil
}

// tryReap collects pid if it has terminated, without blocking.
func tryReap(pid int) (unix.WaitStatus, bool, error) {
	var status unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &status, unix.WNOHANG, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return status, false, err
		}
		if wpid == 0 {
			return status, false, nil
		}
		// Stopped or continued children have not terminated.
		if !status.Exited() && !status.Signaled() {
			return status, false, nil
		}
		return status, true, nil
	}
}
