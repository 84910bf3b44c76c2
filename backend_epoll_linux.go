//go:build linux

package ioqueue

import (
	"os"
	"time"

	"github.com/brickingsoft/ioqueue/pkg/sys"
	"golang.org/x/sys/unix"
)

type epollBackend struct {
	poll *sys.EPoll
	pool chan []unix.EpollEvent
}

func openDefaultBackend(maxDescriptors int) (backend, error) {
	return openEPollBackend(maxDescriptors)
}

func openEPollBackend(_ int) (backend, error) {
	p, err := sys.OpenEPoll()
	if err != nil {
		return nil, err
	}
	return &epollBackend{
		poll: p,
		pool: make(chan []unix.EpollEvent, 8),
	}, nil
}

func (b *epollBackend) Name() string {
	return "epoll"
}

func (b *epollBackend) add(fd int, data uint64) error {
	return b.poll.Add(fd, unix.EPOLLONESHOT, data)
}

func (b *epollBackend) arm(fd int, data uint64, interest uint32) error {
	events := uint32(unix.EPOLLONESHOT)
	// RDHUP is level triggered; with write interest only it would fire on every wait.
	if interest&interestRead != 0 {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest&interestWrite != 0 {
		events |= unix.EPOLLOUT
	}
	return b.poll.Mod(fd, events, data)
}

func (b *epollBackend) del(fd int) error {
	return b.poll.Del(fd)
}

func (b *epollBackend) wait(events []event, timeout time.Duration) (n int, err error) {
	var raw []unix.EpollEvent
	select {
	case raw = <-b.pool:
		break
	default:
		break
	}
	if cap(raw) < len(events) {
		raw = make([]unix.EpollEvent, len(events))
	}
	raw = raw[:len(events)]
	defer func() {
		select {
		case b.pool <- raw:
		default:
		}
	}()

	got, waitErr := b.poll.Wait(raw, timeoutMillis(timeout))
	if waitErr != nil {
		if waitErr == unix.EINTR {
			return
		}
		err = os.NewSyscallError("epoll_wait", waitErr)
		return
	}
	for i := 0; i < got; i++ {
		ev := raw[i].Events
		failed := ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0
		events[n] = event{
			data:     sys.EventData(raw[i]),
			readable: failed || ev&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLPRI) != 0,
			writable: failed || ev&unix.EPOLLOUT != 0,
		}
		n++
	}
	return
}

func (b *epollBackend) wakeup() error {
	return b.poll.Wakeup()
}

func (b *epollBackend) close() error {
	return b.poll.Close()
}
