//go:build linux

package ioqueue

import (
	"os"

	"golang.org/x/sys/unix"
)

// waitHandle is a private epoll instance that watches one connecting
// descriptor for writability.
type waitHandle struct {
	epfd int
	fd   int
}

func newWaitHandle() (*waitHandle, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &waitHandle{epfd: epfd, fd: -1}, nil
}

func (h *waitHandle) attach(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLOUT, Fd: int32(fd)}
	if err := unix.EpollCtl(h.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	h.fd = fd
	return nil
}

// detach is best effort: the descriptor may already be closed, which drops it
// from the epoll set anyway.
func (h *waitHandle) detach() {
	if h.fd < 0 {
		return
	}
	_ = unix.EpollCtl(h.epfd, unix.EPOLL_CTL_DEL, h.fd, &unix.EpollEvent{})
	h.fd = -1
}

func (h *waitHandle) ready() (bool, error) {
	var events [1]unix.EpollEvent
	for {
		n, err := unix.EpollWait(h.epfd, events[:], 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, os.NewSyscallError("epoll_wait", err)
		}
		return n > 0, nil
	}
}

func (h *waitHandle) close() error {
	h.detach()
	if err := unix.Close(h.epfd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}
