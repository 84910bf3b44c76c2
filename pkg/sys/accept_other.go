//go:build unix && !linux

package sys

import (
	"syscall"

	"golang.org/x/sys/unix"
)

const sendFlags = 0

func Accept(fd int) (nfd int, sa unix.Sockaddr, err error) {
	syscall.ForkLock.RLock()
	for {
		nfd, sa, err = unix.Accept(fd)
		if err != unix.EINTR {
			break
		}
	}
	if err == nil {
		unix.CloseOnExec(nfd)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return
	}
	if err = unix.SetNonblock(nfd, true); err != nil {
		_ = unix.Close(nfd)
		nfd = -1
	}
	return
}
