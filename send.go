package ioqueue

import (
	"net"
	"os"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/ioqueue/pkg/sys"
	"golang.org/x/sys/unix"
)

// Send writes b. An immediate write may be partial and reports the count
// written. A pending send on a stream completes only after all of b went out.
func (k Key) Send(tok Token, b []byte, flags int) (n int, err error) {
	n, err = k.send(tok, opSend, b, flags, nil, errMetaOpSend)
	return
}

// SendTo sends b to the given address.
func (k Key) SendTo(tok Token, b []byte, flags int, to net.Addr) (n int, err error) {
	if to == nil {
		err = newOpError(errMetaOpSendTo, errors.From(ErrInvalidArgument, errors.WithMeta("addr", "nil")))
		return
	}
	sa, saErr := sys.AddrToSockaddr(to)
	if saErr != nil {
		err = newOpError(errMetaOpSendTo, errors.From(ErrInvalidArgument, errors.WithWrap(saErr)))
		return
	}
	n, err = k.send(tok, opSendTo, b, flags, sa, errMetaOpSendTo)
	return
}

func (k Key) send(tok Token, kind int32, b []byte, flags int, to unix.Sockaddr, metaOp string) (n int, err error) {
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
	if !async && len(rec.writeList) == 0 {
		n, err = rec.write(b, flags, to)
		if !sys.IsAgain(err) {
			op.reset()
			rec.mu.Unlock()
			if err != nil {
				n = 0
				err = newOpError(metaOp, err)
			}
			return
		}
		n, err = 0, nil
	}
	// pending
	op.key, op.buf, op.flags, op.to = rec, b, flags, to
	rec.writeList = append(rec.writeList, op)
	if armErr := rec.rearm(k.queue.backend); armErr != nil {
		rec.writeList = rec.writeList[:len(rec.writeList)-1]
		op.reset()
		rec.mu.Unlock()
		err = newOpError(metaOp, armErr)
		return
	}
	rec.mu.Unlock()
	err = ErrPending
	return
}

// write performs one send. Caller holds mu.
func (rec *keyRecord) write(b []byte, flags int, to unix.Sockaddr) (n int, err error) {
	if rec.sotype == -1 {
		n, err = sys.Write(rec.fd, b)
		if err != nil && !sys.IsAgain(err) {
			err = os.NewSyscallError("write", err)
		}
		return
	}
	n, err = sys.Send(rec.fd, b, flags, to)
	if err != nil && !sys.IsAgain(err) {
		err = os.NewSyscallError("sendmsg", err)
	}
	return
}
