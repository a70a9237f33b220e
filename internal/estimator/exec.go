package estimator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/signalnine/cardbench/internal/runner"
)

// Exec runs an estimator binary on the host.
type Exec struct {
	RunCmd       []string
	SummarizeCmd []string
	Env          map[string]string
}

func (e *Exec) Summarize(ctx context.Context, p Params) error {
	if len(e.SummarizeCmd) == 0 {
		return nil
	}
	cmd := e.command(ctx, e.SummarizeCmd, p)
	cmd.Stdout = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", cmd.Args[0], childError(err))
	}
	return nil
}

func (e *Exec) Estimate(ctx context.Context, p Params) (float64, error) {
	cmd := e.command(ctx, e.RunCmd, p)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cmd.Args[0], childError(err))
	}
	return ParseEstimate(out)
}

func (e *Exec) command(ctx context.Context, tmpl []string, p Params) *exec.Cmd {
	argv := Expand(tmpl, p)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = os.Environ()
	for k, v := range e.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = os.Stderr
	return cmd
}

// childError turns the death of an estimator process by a signal into a
// *runner.SignalError, which the trial worker re-raises on itself so the
// controller sees the estimator's own signal.
func childError(err error) error {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return err
	}
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return err
	}
	return &runner.SignalError{Signal: ws.Signal()}
}

// Constant always estimates the same value. It is meant for smoke-testing a
// benchmark setup.
type Constant float64

func (Constant) Summarize(context.Context, Params) error { return nil }

func (c Constant) Estimate(context.Context, Params) (float64, error) { return float64(c), nil }
