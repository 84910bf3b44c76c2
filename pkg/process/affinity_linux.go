//go:build linux

package process

import (
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// PinThread locks the calling goroutine to its OS thread and binds that
// thread to cpu index modulo the CPU count. The returned func restores the
// previous mask and unlocks the thread.
func PinThread(index int) (undo func(), err error) {
	runtime.LockOSThread()
	var prev unix.CPUSet
	if err = unix.SchedGetaffinity(0, &prev); err != nil {
		runtime.UnlockOSThread()
		err = os.NewSyscallError("sched_getaffinity", err)
		return
	}
	var mask unix.CPUSet
	mask.Zero()
	mask.Set(index % runtime.NumCPU())
	if err = unix.SchedSetaffinity(0, &mask); err != nil {
		runtime.UnlockOSThread()
		err = os.NewSyscallError("sched_setaffinity", err)
		return
	}
	undo = func() {
		_ = unix.SchedSetaffinity(0, &prev)
		runtime.UnlockOSThread()
	}
	return
}
