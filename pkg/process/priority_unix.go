//go:build unix

package process

import (
	"os"

	"golang.org/x/sys/unix"
)

// SetPriority renices the current process. Raising priority usually needs
// CAP_SYS_NICE.
func SetPriority(p Priority) error {
	if err := unix.Setpriority(unix.PRIO_PROCESS, os.Getpid(), p.nice()); err != nil {
		return os.NewSyscallError("setpriority", err)
	}
	return nil
}
