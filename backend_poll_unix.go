//go:build unix

package ioqueue

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brickingsoft/ioqueue/pkg/sys"
	"golang.org/x/sys/unix"
)

type pollEntry struct {
	fd     int
	data   uint64
	events int16
}

// pollBackend emulates one-shot readiness over poll(2). An entry reported by
// one waiter is disarmed before it is handed out, so concurrent waiters never
// see the same readiness twice.
type pollBackend struct {
	mu      sync.Mutex
	entries map[int]*pollEntry
	rfd     int
	wfd     int
	waiting atomic.Int32
}

func openPollBackend(maxDescriptors int) (backend, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, os.NewSyscallError("pipe", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := sys.SetNonblock(fd); err != nil {
			_ = unix.Close(p[0])
			_ = unix.Close(p[1])
			return nil, err
		}
	}
	return &pollBackend{
		entries: make(map[int]*pollEntry, maxDescriptors),
		rfd:     p[0],
		wfd:     p[1],
	}, nil
}

func (b *pollBackend) Name() string {
	return "poll"
}

func (b *pollBackend) add(fd int, data uint64) error {
	b.mu.Lock()
	b.entries[fd] = &pollEntry{fd: fd, data: data}
	b.mu.Unlock()
	return nil
}

func (b *pollBackend) arm(fd int, data uint64, interest uint32) error {
	var events int16
	if interest&interestRead != 0 {
		events |= unix.POLLIN
	}
	if interest&interestWrite != 0 {
		events |= unix.POLLOUT
	}
	b.mu.Lock()
	entry, ok := b.entries[fd]
	if !ok || entry.data != data {
		b.mu.Unlock()
		return os.NewSyscallError("poll", unix.ENOENT)
	}
	entry.events = events
	b.mu.Unlock()
	if b.waiting.Load() > 0 {
		return b.wakeup()
	}
	return nil
}

func (b *pollBackend) del(fd int) error {
	b.mu.Lock()
	delete(b.entries, fd)
	b.mu.Unlock()
	return nil
}

func (b *pollBackend) wait(events []event, timeout time.Duration) (n int, err error) {
	b.waiting.Add(1)
	defer b.waiting.Add(-1)

	b.mu.Lock()
	fds := make([]unix.PollFd, 1, len(b.entries)+1)
	fds[0] = unix.PollFd{Fd: int32(b.rfd), Events: unix.POLLIN}
	for _, entry := range b.entries {
		if entry.events == 0 {
			continue
		}
		fds = append(fds, unix.PollFd{Fd: int32(entry.fd), Events: entry.events})
	}
	b.mu.Unlock()

	got, pollErr := unix.Poll(fds, timeoutMillis(timeout))
	if pollErr != nil {
		if pollErr == unix.EINTR {
			return
		}
		err = os.NewSyscallError("poll", pollErr)
		return
	}
	if got == 0 {
		return
	}
	if fds[0].Revents != 0 {
		b.drain()
	}

	b.mu.Lock()
	for i := 1; i < len(fds) && n < len(events); i++ {
		revents := fds[i].Revents
		if revents == 0 {
			continue
		}
		entry, ok := b.entries[int(fds[i].Fd)]
		if !ok || entry.events == 0 {
			continue
		}
		entry.events = 0
		failed := revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0
		events[n] = event{
			data:     entry.data,
			readable: failed || revents&unix.POLLIN != 0,
			writable: failed || revents&unix.POLLOUT != 0,
		}
		n++
	}
	b.mu.Unlock()
	return
}

func (b *pollBackend) drain() {
	var buf [64]byte
	for {
		if _, err := unix.Read(b.rfd, buf[:]); err != nil {
			return
		}
	}
}

func (b *pollBackend) wakeup() error {
	if _, err := unix.Write(b.wfd, []byte{1}); err != nil && err != unix.EAGAIN {
		return os.NewSyscallError("write", err)
	}
	return nil
}

func (b *pollBackend) close() error {
	_ = unix.Close(b.wfd)
	if err := unix.Close(b.rfd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}
