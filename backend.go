package ioqueue

import (
	"time"

	"github.com/brickingsoft/errors"
)

const (
	interestRead uint32 = 1 << iota
	interestWrite
)

type event struct {
	data     uint64
	readable bool
	writable bool
}

// backend is a readiness source with one-shot semantics: a descriptor that
// reported an event stays silent until it is armed again.
type backend interface {
	Name() string
	add(fd int, data uint64) error
	arm(fd int, data uint64, interest uint32) error
	del(fd int) error
	// wait returns zero events on timeout, wakeup or EINTR.
	wait(events []event, timeout time.Duration) (n int, err error)
	wakeup() error
	close() error
}

func openBackend(kind Backend, maxDescriptors int) (b backend, err error) {
	switch kind {
	case BackendDefault:
		b, err = openDefaultBackend(maxDescriptors)
		break
	case BackendEPoll:
		b, err = openEPollBackend(maxDescriptors)
		break
	case BackendPoll:
		b, err = openPollBackend(maxDescriptors)
		break
	default:
		err = errors.From(ErrInvalidArgument, errors.WithMeta("backend", string(kind)))
		break
	}
	return
}

// timeoutMillis rounds up so that short positive timeouts still sleep.
func timeoutMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		ms++
	}
	if ms > 1<<31-1 {
		ms = 1<<31 - 1
	}
	return int(ms)
}

func keyData(index uint32, gen uint32) uint64 {
	return uint64(gen)<<32 | uint64(index)
}
