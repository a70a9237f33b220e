// Package memprobe reports the resident memory of the calling process and of
// the estimator processes it ran.
package memprobe

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// Probe reports current physical memory usage in bytes.
type Probe interface {
	Resident() (int64, error)
}

// Procfs reads the resident set size of the current process from /proc.
type Procfs struct {
	// Mount defaults to procfs.DefaultMountPoint.
	Mount string
}

func (p Procfs) Resident() (int64, error) {
	mount := p.Mount
	if mount == "" {
		mount = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mount)
	if err != nil {
		return 0, fmt.Errorf("opening procfs at %s: %w", mount, err)
	}
	proc, err := fs.Self()
	if err != nil {
		return 0, fmt.Errorf("reading self process: %w", err)
	}
	stat, err := proc.Stat()
	if err != nil {
		return 0, fmt.Errorf("reading process stat: %w", err)
	}
	return int64(stat.ResidentMemory()), nil
}

// Func adapts a function to Probe.
type Func func() (int64, error)

func (f Func) Resident() (int64, error) { return f() }

// Max reports the largest value among probes. A probe that fails is skipped;
// Max fails only when every probe does.
func Max(probes ...Probe) Probe {
	return Func(func() (int64, error) {
		var (
			best    int64
			lastErr error
			ok      bool
		)
		for _, p := range probes {
			v, err := p.Resident()
			if err != nil {
				lastErr = err
				continue
			}
			ok = true
			if v > best {
				best = v
			}
		}
		if !ok {
			return 0, lastErr
		}
		return best, nil
	})
}

// Default is the probe used by trial workers: the worker's own resident set or
// the peak of any estimator process it waited for, whichever is larger.
var Default Probe = Max(Procfs{}, Children{})
