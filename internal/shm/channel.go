//go:build linux || darwin

// Package shm implements the result channel shared between the benchmark
// controller and its trial workers: a single fixed-layout record in a SysV
// shared memory segment.
//
// The controller acquires the segment once per invocation and passes its id to
// each worker. Workers attach, publish exactly one record and detach before
// exiting. Only one worker is ever alive at a time, so the record is never
// written concurrently and carries no lock.
package shm

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrChannelUnavailable is returned when the shared segment cannot be created
// or attached.
var ErrChannelUnavailable = errors.New("shared result channel unavailable")

// Record is the layout of the shared segment.
type Record struct {
	Estimate       float64
	ElapsedSeconds float64
	PeakMemory     int64
	// Sequence is stored last by the worker and identifies which trial wrote
	// the record. Zero means nothing has been published.
	Sequence uint64
}

// RecordSize is the number of bytes the segment must hold.
const RecordSize = int(unsafe.Sizeof(Record{}))

type Channel struct {
	id        int
	data      []byte
	owner     bool
	destroyed bool
}

// Acquire creates a private segment and attaches it to the calling process.
func Acquire() (*Channel, error) {
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, RecordSize, unix.IPC_CREAT|unix.IPC_EXCL|0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: shmget: %v", ErrChannelUnavailable, err)
	}
	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return nil, fmt.Errorf("%w: shmat: %v", ErrChannelUnavailable, err)
	}
	if len(data) < RecordSize {
		unix.SysvShmDetach(data)
		unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return nil, fmt.Errorf("%w: segment is %d bytes, need %d", ErrChannelUnavailable, len(data), RecordSize)
	}
	c := &Channel{id: id, data: data, owner: true}
	c.Reset()
	return c, nil
}

// Attach maps an existing segment, identified by the id the controller
// obtained from Acquire.
func Attach(id int) (*Channel, error) {
	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: shmat %d: %v", ErrChannelUnavailable, id, err)
	}
	if len(data) < RecordSize {
		unix.SysvShmDetach(data)
		return nil, fmt.Errorf("%w: segment %d is %d bytes, need %d", ErrChannelUnavailable, id, len(data), RecordSize)
	}
	return &Channel{id: id, data: data}, nil
}

// ID is the handle a worker passes to Attach.
func (c *Channel) ID() int { return c.id }

func (c *Channel) record() *Record {
	return (*Record)(unsafe.Pointer(&c.data[0]))
}

// Reset zeroes the record, including the running peak memory.
func (c *Channel) Reset() {
	if c.data == nil {
		return
	}
	r := c.record()
	atomic.StoreUint64(&r.Sequence, 0)
	r.Estimate = 0
	r.ElapsedSeconds = 0
	r.PeakMemory = 0
}

// Publish overwrites the estimate and elapsed time, raises the peak memory to
// probed if it is higher, and finally stores seq.
func (c *Channel) Publish(seq uint64, estimate, elapsedSeconds float64, probed int64) error {
	if c.data == nil {
		return errors.New("publish on released channel")
	}
	r := c.record()
	r.Estimate = estimate
	r.ElapsedSeconds = elapsedSeconds
	r.PeakMemory = max(r.PeakMemory, probed)
	atomic.StoreUint64(&r.Sequence, seq)
	return nil
}

// Load copies the current record. Callers must only read after the worker that
// wrote it has been reaped.
func (c *Channel) Load() Record {
	if c.data == nil {
		return Record{}
	}
	r := c.record()
	return Record{
		Estimate:       r.Estimate,
		ElapsedSeconds: r.ElapsedSeconds,
		PeakMemory:     r.PeakMemory,
		Sequence:       atomic.LoadUint64(&r.Sequence),
	}
}

// Release detaches the segment from this process. Calling it more than once
// is a no-op.
func (c *Channel) Release() error {
	if c.data == nil {
		return nil
	}
	data := c.data
	c.data = nil
	if err := unix.SysvShmDetach(data); err != nil {
		return fmt.Errorf("shmdt %d: %w", c.id, err)
	}
	return nil
}

// Destroy detaches and removes the segment. Only the controller that acquired
// the channel may destroy it.
func (c *Channel) Destroy() error {
	if !c.owner {
		return errors.New("destroy on attached channel")
	}
	if c.destroyed {
		return nil
	}
	relErr := c.Release()
	if _, err := unix.SysvShmCtl(c.id, unix.IPC_RMID, nil); err != nil && !errors.Is(err, unix.EINVAL) {
		return fmt.Errorf("removing segment %d: %w", c.id, err)
	}
	c.destroyed = true
	return relErr
}
