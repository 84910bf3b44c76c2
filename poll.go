package ioqueue

import (
	"time"

	"github.com/brickingsoft/ioqueue/pkg/slab"
	"github.com/brickingsoft/ioqueue/pkg/sys"
)

type ready struct {
	op *opRecord
	c  Completion
}

// Poll waits up to timeout for completions and delivers them to the handlers
// of their keys. Infinite blocks until something completes. It returns the
// number of completions delivered, zero on timeout.
//
// A connect found finished in the connect table is delivered alone and Poll
// returns 1 at once. Otherwise one call delivers at most MaxEvents posted
// completions plus the completions of at most MaxEvents ready descriptors,
// where each descriptor completes at most one operation per direction.
func (q *Queue) Poll(timeout time.Duration) (n int, err error) {
	if q.closed.Load() {
		err = newOpError(errMetaOpPoll, ErrClosed)
		return
	}
	if n = q.pollConnect(); n > 0 {
		return
	}

	eventsPtr := q.events.Get().(*[]event)
	defer q.events.Put(eventsPtr)
	events := *eventsPtr

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if n = q.drainPosted(); n > 0 {
			return
		}
		// wait
		wait := timeout
		if timeout > 0 {
			if wait = time.Until(deadline); wait < 0 {
				wait = 0
			}
		}
		if q.connectsLen.Load() > 0 && (wait < 0 || wait > q.options.ConnectScanInterval) {
			wait = q.options.ConnectScanInterval
		}
		got, waitErr := q.backend.wait(events, wait)
		if waitErr != nil {
			if q.closed.Load() {
				err = newOpError(errMetaOpPoll, ErrClosed)
				return
			}
			q.logger.WithError(waitErr).Error("ioqueue: backend wait failed")
			err = newOpError(errMetaOpPoll, waitErr)
			return
		}
		for i := 0; i < got; i++ {
			n += q.handleEvent(events[i])
		}
		n += q.drainPosted()
		if n > 0 {
			return
		}
		if n = q.pollConnect(); n > 0 {
			return
		}
		if timeout == 0 || (timeout > 0 && !time.Now().Before(deadline)) {
			return
		}
	}
}

func (q *Queue) pollConnect() int {
	if q.connectsLen.Load() == 0 {
		return 0
	}
	q.lock.Lock()
	result, rec, ok := q.connects.scan()
	q.connectsLen.Store(int32(q.connects.len()))
	q.lock.Unlock()
	if !ok {
		return 0
	}
	q.dispatch(rec, result)
	return 1
}

// handleEvent completes what a ready descriptor allows: one accept or read,
// and one write. The key is re-armed for whatever is still queued.
func (q *Queue) handleEvent(ev event) (n int) {
	h := slab.Handle{Index: uint32(ev.data), Gen: uint32(ev.data >> 32)}
	rec, ok := q.keys.Get(h)
	if !ok {
		return
	}
	key := Key{queue: q, handle: h}
	var done [2]ready
	count := 0

	rec.mu.Lock()
	if rec.closing || rec.handle != h {
		rec.mu.Unlock()
		return
	}
	rec.armed = 0
	if ev.readable {
		if len(rec.acceptList) > 0 {
			op := rec.acceptList[0]
			nfd, sa, err := rec.accept()
			if !sys.IsAgain(err) {
				rec.acceptList = rec.acceptList[1:]
				result := AcceptResult{Key: key, Token: op.token(q), Fd: -1, Err: err}
				if err == nil {
					result.Fd = nfd
					result.Local = sys.LocalAddr(nfd, rec.sotype)
					result.Remote = sys.SockaddrToAddr(rec.sotype, sa)
				}
				op.reset()
				done[count] = ready{op: op, c: result}
				count++
			}
		} else if len(rec.readList) > 0 {
			op := rec.readList[0]
			kind := op.state.Load()
			nr, sa, err := rec.read(kind, op.buf, op.flags)
			if !sys.IsAgain(err) {
				rec.readList = rec.readList[1:]
				result := ReadResult{Key: key, Token: op.token(q), N: nr, Err: err}
				if err != nil {
					result.N = 0
				} else if kind == opRecvFrom {
					result.From = sys.SockaddrToAddr(rec.sotype, sa)
				}
				op.reset()
				done[count] = ready{op: op, c: result}
				count++
			}
		}
	}
	if ev.writable && len(rec.writeList) > 0 {
		op := rec.writeList[0]
		nw, err := rec.write(op.buf[op.done:], op.flags, op.to)
		if !sys.IsAgain(err) {
			if err == nil {
				op.done += nw
			}
			if err != nil || !rec.stream() || op.done >= len(op.buf) {
				rec.writeList = rec.writeList[1:]
				result := WriteResult{Key: key, Token: op.token(q), N: op.done, Err: err}
				op.reset()
				done[count] = ready{op: op, c: result}
				count++
			}
		}
	}
	if armErr := rec.rearm(q.backend); armErr != nil {
		q.logger.WithError(armErr).WithField("fd", rec.fd).Warn("ioqueue: re-arm failed")
		q.failQueued(rec, armErr)
	}
	rec.mu.Unlock()

	for i := 0; i < count; i++ {
		q.dispatch(rec, done[i].c)
		n++
	}
	return
}

// failQueued turns every queued operation of rec into a posted completion
// carrying err, since no readiness will ever arrive for them. Caller holds
// rec.mu.
func (q *Queue) failQueued(rec *keyRecord, err error) {
	var failed []postedCompletion
	for _, list := range []*[]*opRecord{&rec.acceptList, &rec.readList, &rec.writeList} {
		for _, op := range *list {
			op.posted = true
			rec.posted++
			failed = append(failed, postedCompletion{rec: rec, op: op, kind: op.state.Load(), n: op.done, err: err})
		}
		*list = nil
	}
	if len(failed) == 0 {
		return
	}
	q.lock.Lock()
	for _, p := range failed {
		q.posted.Add(p)
	}
	q.postedLen.Store(int32(q.posted.Length()))
	q.lock.Unlock()
}

func (q *Queue) dispatch(rec *keyRecord, c Completion) {
	if rec.handler == nil {
		return
	}
	rec.handler.Handle(c)
}
