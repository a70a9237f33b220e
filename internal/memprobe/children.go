//go:build unix

package memprobe

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Children reports the peak resident set of the largest terminated and waited
// for descendant of the calling process. Estimator binaries run by a worker
// are such descendants once their command returns.
type Children struct{}

func (Children) Resident() (int64, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_CHILDREN, &ru); err != nil {
		return 0, fmt.Errorf("getrusage children: %w", err)
	}
	return int64(ru.Maxrss) * maxrssUnit, nil
}
