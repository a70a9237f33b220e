package runner

import (
	"runtime"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// reraise terminates the process with sig under its default disposition. The
// Go runtime keeps its own handler for signals such as SIGSEGV and ignores
// them when they are sent by kill, so the disposition is reset with
// rt_sigaction directly instead of through os/signal.
func reraise(sig syscall.Signal) {
	runtime.LockOSThread()
	// SIG_DFL, no flags, empty mask.
	var act [4]uint64
	unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), uintptr(unsafe.Pointer(&act)), 0, 8, 0, 0)
	unix.Tgkill(unix.Getpid(), unix.Gettid(), sig)
}
