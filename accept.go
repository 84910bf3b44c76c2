package ioqueue

import (
	"net"
	"os"

	"github.com/brickingsoft/ioqueue/pkg/sys"
	"golang.org/x/sys/unix"
)

// Accept takes the next connection of a listening key. The returned
// descriptor is non-blocking and close-on-exec. When nothing is waiting,
// ErrPending is returned and the connection arrives in an AcceptResult.
func (k Key) Accept(tok Token) (fd int, local net.Addr, remote net.Addr, err error) {
	fd = -1
	rec, op, beginErr := k.begin(tok, opAccept)
	if beginErr != nil {
		err = newOpError(errMetaOpAccept, beginErr)
		return
	}

	rec.mu.Lock()
	if rec.closing {
		op.reset()
		rec.mu.Unlock()
		err = newOpError(errMetaOpAccept, ErrStaleKey)
		return
	}
	if len(rec.acceptList) == 0 {
		nfd, sa, acceptErr := rec.accept()
		if acceptErr == nil {
			op.reset()
			rec.mu.Unlock()
			fd = nfd
			local = sys.LocalAddr(nfd, rec.sotype)
			remote = sys.SockaddrToAddr(rec.sotype, sa)
			return
		}
		if !sys.IsAgain(acceptErr) {
			op.reset()
			rec.mu.Unlock()
			err = newOpError(errMetaOpAccept, acceptErr)
			return
		}
	}
	// pending
	op.key = rec
	rec.acceptList = append(rec.acceptList, op)
	if armErr := rec.rearm(k.queue.backend); armErr != nil {
		rec.acceptList = rec.acceptList[:len(rec.acceptList)-1]
		op.reset()
		rec.mu.Unlock()
		err = newOpError(errMetaOpAccept, armErr)
		return
	}
	rec.mu.Unlock()
	err = ErrPending
	return
}

// accept treats a connection aborted before it was taken like an empty
// backlog. Caller holds mu.
func (rec *keyRecord) accept() (fd int, sa unix.Sockaddr, err error) {
	fd, sa, err = sys.Accept(rec.fd)
	if err == nil {
		return
	}
	if err == unix.ECONNABORTED {
		err = unix.EAGAIN
		return
	}
	if !sys.IsAgain(err) {
		err = os.NewSyscallError("accept", err)
	}
	return
}
