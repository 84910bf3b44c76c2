package ioqueue

import (
	"net"
	"os"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/ioqueue/pkg/sys"
	"golang.org/x/sys/unix"
)

// Connect starts connecting the key to addr. It returns nil when the
// connection was established at once and ErrPending when the outcome will be
// reported by a ConnectResult. A key has at most one connect outstanding.
func (k Key) Connect(addr net.Addr) (err error) {
	rec, recErr := k.record()
	if recErr != nil {
		err = newOpError(errMetaOpConnect, recErr)
		return
	}
	if addr == nil {
		err = newOpError(errMetaOpConnect, errors.From(ErrInvalidArgument, errors.WithMeta("addr", "nil")))
		return
	}
	sa, saErr := sys.AddrToSockaddr(addr)
	if saErr != nil {
		err = newOpError(errMetaOpConnect, errors.From(ErrInvalidArgument, errors.WithWrap(saErr)))
		return
	}

	q := k.queue
	q.lock.Lock()
	if rec.connecting {
		q.lock.Unlock()
		err = newOpError(errMetaOpConnect, ErrConnectInProgress)
		return
	}
	if q.connects.full() {
		q.lock.Unlock()
		err = newOpError(errMetaOpConnect, ErrTooManyConnects)
		return
	}
	// connect
	connectErr := sys.Connect(rec.fd, sa)
	if connectErr == nil {
		q.lock.Unlock()
		return
	}
	if connectErr != unix.EINPROGRESS && connectErr != unix.EINTR {
		q.lock.Unlock()
		err = newOpError(errMetaOpConnect, os.NewSyscallError("connect", connectErr))
		return
	}
	// wait
	if addErr := q.connects.add(k, rec); addErr != nil {
		q.lock.Unlock()
		err = newOpError(errMetaOpConnect, addErr)
		return
	}
	pending := q.connects.len()
	q.connectsLen.Store(int32(pending))
	q.lock.Unlock()

	q.logger.WithField("fd", rec.fd).WithField("pending", pending).Debug("ioqueue: connect in progress")
	// a poller blocked without a deadline has to start rescanning the table
	if wakeErr := q.backend.wakeup(); wakeErr != nil {
		q.logger.WithError(wakeErr).Warn("ioqueue: wakeup failed")
	}
	err = ErrPending
	return
}
