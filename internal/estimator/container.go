package estimator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/signalnine/cardbench/internal/docker"
	"github.com/signalnine/cardbench/internal/runner"
)

// Container runs an estimator packaged as an image. The directories holding
// the data graph, query and summary are bind-mounted at their host paths so
// the argv template needs no translation.
type Container struct {
	Image        string
	RunCmd       []string
	SummarizeCmd []string
	Env          map[string]string
	CPULimit     float64
	MemoryLimit  int64
	// Timeout caps a single container run. The trial deadline still applies
	// to the worker that waits on it.
	Timeout time.Duration
}

func (c *Container) Summarize(ctx context.Context, p Params) error {
	if len(c.SummarizeCmd) == 0 {
		return nil
	}
	res, err := c.run(ctx, c.SummarizeCmd, p, false)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("summarize in %s exited with %d: %s", c.Image, res.ExitCode, res.Output)
	}
	return nil
}

func (c *Container) Estimate(ctx context.Context, p Params) (float64, error) {
	res, err := c.run(ctx, c.RunCmd, p, true)
	if err != nil {
		return 0, err
	}
	if res.TimedOut {
		return 0, fmt.Errorf("estimator container %s timed out after %v", c.Image, res.Duration)
	}
	if sig, ok := exitSignal(res.ExitCode); ok {
		return 0, fmt.Errorf("estimator container %s: %w", c.Image, &runner.SignalError{Signal: sig})
	}
	if res.ExitCode != 0 {
		return 0, fmt.Errorf("estimator container %s exited with %d", c.Image, res.ExitCode)
	}
	return ParseEstimate(res.Output)
}

func (c *Container) run(ctx context.Context, tmpl []string, p Params, readOnly bool) (*docker.RunResult, error) {
	p, err := absParams(p)
	if err != nil {
		return nil, err
	}
	mounts := mountsFor(p, readOnly)
	return docker.RunContainer(ctx, &docker.RunOpts{
		Image:       c.Image,
		Command:     Expand(tmpl, p),
		Env:         c.Env,
		Timeout:     c.Timeout,
		Mounts:      mounts,
		CPULimit:    c.CPULimit,
		MemoryLimit: c.MemoryLimit,
		UserID:      fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
	})
}

// exitSignal decodes the 128+N status the container init reports when the
// estimator is killed by signal N, such as 137 for the OOM killer.
func exitSignal(code int) (syscall.Signal, bool) {
	if code <= 128 || code > 128+64 {
		return 0, false
	}
	return syscall.Signal(code - 128), true
}

func absParams(p Params) (Params, error) {
	for _, path := range []*string{&p.Data, &p.Query, &p.Summary} {
		if *path == "" {
			continue
		}
		abs, err := filepath.Abs(*path)
		if err != nil {
			return p, fmt.Errorf("resolving %s: %w", *path, err)
		}
		*path = abs
	}
	return p, nil
}

// mountsFor expects absolute paths.
func mountsFor(p Params, readOnly bool) []docker.Mount {
	seen := map[string]bool{}
	var mounts []docker.Mount
	for _, path := range []string{p.Data, p.Query, p.Summary} {
		if path == "" {
			continue
		}
		dir := filepath.Dir(path)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		mounts = append(mounts, docker.Mount{Source: dir, Target: dir, ReadOnly: readOnly})
	}
	return mounts
}
