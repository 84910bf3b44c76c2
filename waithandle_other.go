//go:build unix && !linux

package ioqueue

import (
	"os"

	"golang.org/x/sys/unix"
)

// waitHandle holds the pollfd of one connecting descriptor.
type waitHandle struct {
	fds [1]unix.PollFd
}

func newWaitHandle() (*waitHandle, error) {
	return &waitHandle{fds: [1]unix.PollFd{{Fd: -1}}}, nil
}

func (h *waitHandle) attach(fd int) error {
	h.fds[0] = unix.PollFd{Fd: int32(fd), Events: unix.POLLOUT}
	return nil
}

func (h *waitHandle) detach() {
	h.fds[0] = unix.PollFd{Fd: -1}
}

func (h *waitHandle) ready() (bool, error) {
	if h.fds[0].Fd < 0 {
		return false, nil
	}
	for {
		h.fds[0].Revents = 0
		n, err := unix.Poll(h.fds[:], 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, os.NewSyscallError("poll", err)
		}
		return n > 0, nil
	}
}

func (h *waitHandle) close() error {
	h.detach()
	return nil
}
