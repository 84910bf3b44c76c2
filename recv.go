package ioqueue

import (
	"net"
	"os"

	"github.com/brickingsoft/ioqueue/pkg/sys"
	"golang.org/x/sys/unix"
)

// Recv reads into b. When data is already there the byte count is returned
// and no completion follows. Otherwise ErrPending is returned and exactly one
// ReadResult for tok is delivered by a later Poll. b must stay untouched
// until then.
func (k Key) Recv(tok Token, b []byte, flags int) (n int, err error) {
	n, _, err = k.receive(tok, opRecv, b, flags, errMetaOpRecv)
	return
}

// RecvFrom is Recv that also reports the sender address.
func (k Key) RecvFrom(tok Token, b []byte, flags int) (n int, from net.Addr, err error) {
	n, from, err = k.receive(tok, opRecvFrom, b, flags, errMetaOpRecvFrom)
	return
}

func (k Key) receive(tok Token, kind int32, b []byte, flags int, metaOp string) (n int, from net.Addr, err error) {
	rec, op, beginErr := k.begin(tok, kind)
	if beginErr != nil {
		err = newOpError(metaOp, beginErr)
		return
	}
	async := flags&AlwaysAsync != 0
	flags &^= AlwaysAsync

	rec.mu.Lock()
	if rec.closing {
		op.reset()
		rec.mu.Unlock()
		err = newOpError(metaOp, ErrStaleKey)
		return
	}
	// try now unless earlier reads are still queued
	if !async && len(rec.readList) == 0 && len(rec.acceptList) == 0 {
		var sa unix.Sockaddr
		n, sa, err = rec.read(kind, b, flags)
		if !sys.IsAgain(err) {
			op.reset()
			rec.mu.Unlock()
			if err != nil {
				n = 0
				err = newOpError(metaOp, err)
				return
			}
			from = sys.SockaddrToAddr(rec.sotype, sa)
			return
		}
		n, err = 0, nil
	}
	// pending
	op.key, op.buf, op.flags = rec, b, flags
	rec.readList = append(rec.readList, op)
	if armErr := rec.rearm(k.queue.backend); armErr != nil {
		rec.readList = rec.readList[:len(rec.readList)-1]
		op.reset()
		rec.mu.Unlock()
		err = newOpError(metaOp, armErr)
		return
	}
	rec.mu.Unlock()
	err = ErrPending
	return
}

// read performs one receive. Would-block errnos come back bare. Caller holds mu.
func (rec *keyRecord) read(kind int32, b []byte, flags int) (n int, sa unix.Sockaddr, err error) {
	if kind == opRecvFrom || (flags != 0 && rec.sotype != -1) {
		n, sa, err = sys.Recvfrom(rec.fd, b, flags)
		if err != nil && !sys.IsAgain(err) {
			err = os.NewSyscallError("recvfrom", err)
		}
		return
	}
	n, err = sys.Read(rec.fd, b)
	if err != nil && !sys.IsAgain(err) {
		err = os.NewSyscallError("read", err)
	}
	return
}
