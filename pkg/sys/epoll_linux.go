//go:build linux

package sys

import (
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"
)

// EPoll is an epoll instance with an eventfd wired in for wakeups. The eventfd
// never surfaces through Wait.
type EPoll struct {
	fd  int
	wfd int
}

func OpenEPoll() (*EPoll, error) {
	p, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	w, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(p)
		return nil, os.NewSyscallError("eventfd", err)
	}
	l := &EPoll{fd: p, wfd: w}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(w)}
	if err = unix.EpollCtl(p, unix.EPOLL_CTL_ADD, w, &ev); err != nil {
		_ = unix.Close(w)
		_ = unix.Close(p)
		return nil, os.NewSyscallError("epoll_ctl", err)
	}
	return l, nil
}

func (p *EPoll) Fd() int {
	return p.fd
}

// Add registers fd with the given events. The event payload travels in the
// Fd and Pad words of the kernel record.
func (p *EPoll) Add(fd int, events uint32, data uint64) error {
	ev := unix.EpollEvent{Events: events}
	setEventData(&ev, data)
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

func (p *EPoll) Mod(fd int, events uint32, data uint64) error {
	ev := unix.EpollEvent{Events: events}
	setEventData(&ev, data)
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

func (p *EPoll) Del(fd int) error {
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{}); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

// Wait fills events, dropping the wakeup eventfd. A wakeup alone yields n == 0.
// Callers must never register data equal to a bare descriptor number.
func (p *EPoll) Wait(events []unix.EpollEvent, msec int) (n int, err error) {
	got, waitErr := unix.EpollWait(p.fd, events, msec)
	if waitErr != nil {
		err = waitErr
		return
	}
	for i := 0; i < got; i++ {
		if EventData(events[i]) == uint64(uint32(p.wfd)) {
			var buf [8]byte
			_, _ = unix.Read(p.wfd, buf[:])
			continue
		}
		events[n] = events[i]
		n++
	}
	return
}

func (p *EPoll) Wakeup() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(p.wfd, buf[:]); err != nil && err != unix.EAGAIN {
		return os.NewSyscallError("write", err)
	}
	return nil
}

func (p *EPoll) Close() error {
	if err := unix.Close(p.wfd); err != nil {
		_ = unix.Close(p.fd)
		return os.NewSyscallError("close", err)
	}
	if err := unix.Close(p.fd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}

func setEventData(ev *unix.EpollEvent, data uint64) {
	ev.Fd = int32(uint32(data))
	ev.Pad = int32(uint32(data >> 32))
}

func EventData(ev unix.EpollEvent) uint64 {
	return uint64(uint32(ev.Fd)) | uint64(uint32(ev.Pad))<<32
}
