package ioqueue

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/brickingsoft/ioqueue/pkg/slab"
	"github.com/brickingsoft/ioqueue/pkg/sys"
	"golang.org/x/sys/unix"
)

// Key is a handle to a registered descriptor. Using it after Unregister
// fails with ErrStaleKey. The zero Key is never valid.
type Key struct {
	queue  *Queue
	handle slab.Handle
}

type keyRecord struct {
	mu      sync.Mutex
	fd      int
	sotype  int
	handle  slab.Handle
	handler Handler

	userData atomic.Pointer[any]

	// guarded by the queue lock
	connecting bool

	// guarded by mu
	closing    bool
	readList   []*opRecord
	writeList  []*opRecord
	acceptList []*opRecord
	armed      uint32
	posted     int
}

func (rec *keyRecord) busy() bool {
	return len(rec.readList) > 0 || len(rec.writeList) > 0 || len(rec.acceptList) > 0 || rec.posted > 0
}

func (rec *keyRecord) interest() (interest uint32) {
	if len(rec.readList) > 0 || len(rec.acceptList) > 0 {
		interest |= interestRead
	}
	if len(rec.writeList) > 0 {
		interest |= interestWrite
	}
	return
}

func (rec *keyRecord) stream() bool {
	return rec.sotype != unix.SOCK_DGRAM
}

// rearm asks the backend for whatever the pending lists still need. Caller
// holds mu.
func (rec *keyRecord) rearm(b backend) error {
	interest := rec.interest()
	if interest == 0 || interest&^rec.armed == 0 {
		return nil
	}
	if err := b.arm(rec.fd, keyData(rec.handle.Index, rec.handle.Gen), interest); err != nil {
		return err
	}
	rec.armed = interest
	return nil
}

// unlink drops op from whichever list holds it. Caller holds mu.
func (rec *keyRecord) unlink(op *opRecord) bool {
	for _, list := range []*[]*opRecord{&rec.readList, &rec.writeList, &rec.acceptList} {
		for i, o := range *list {
			if o != op {
				continue
			}
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

func (k Key) Queue() *Queue {
	return k.queue
}

func (k Key) Valid() bool {
	if k.queue == nil {
		return false
	}
	_, ok := k.queue.keys.Get(k.handle)
	return ok
}

func (k Key) begin(tok Token, kind int32) (rec *keyRecord, op *opRecord, err error) {
	if rec, op, err = k.resolve(tok); err != nil {
		return
	}
	if !op.state.CompareAndSwap(opIdle, kind) {
		err = ErrTokenBusy
		return
	}
	return
}

func (k Key) record() (*keyRecord, error) {
	if k.queue == nil {
		return nil, ErrStaleKey
	}
	return k.queue.resolveKey(k)
}

// Fd returns the registered descriptor, or -1 for a stale key.
func (k Key) Fd() int {
	rec, err := k.record()
	if err != nil {
		return -1
	}
	return rec.fd
}

func (k Key) UserData() any {
	rec, err := k.record()
	if err != nil {
		return nil
	}
	if p := rec.userData.Load(); p != nil {
		return *p
	}
	return nil
}

// SetUserData replaces the user data. Concurrent writers race, the last one wins.
func (k Key) SetUserData(v any) error {
	rec, err := k.record()
	if err != nil {
		return err
	}
	rec.userData.Store(&v)
	return nil
}

// LocalAddr and RemoteAddr report the socket addresses of the key.
func (k Key) LocalAddr() net.Addr {
	rec, err := k.record()
	if err != nil {
		return nil
	}
	return sys.LocalAddr(rec.fd, rec.sotype)
}

func (k Key) RemoteAddr() net.Addr {
	rec, err := k.record()
	if err != nil {
		return nil
	}
	return sys.RemoteAddr(rec.fd, rec.sotype)
}

// Unregister is shorthand for k.Queue().Unregister(k).
func (k Key) Unregister() error {
	if k.queue == nil {
		return newOpError(errMetaOpUnregister, ErrStaleKey)
	}
	return k.queue.Unregister(k)
}

// IsPending reports whether tok still has an operation outstanding on k,
// including a posted completion that Poll has not delivered yet.
func (k Key) IsPending(tok Token) bool {
	rec, op, err := k.resolve(tok)
	if err != nil {
		return false
	}
	rec.mu.Lock()
	pending := op.state.Load() != opIdle && op.key == rec
	rec.mu.Unlock()
	return pending
}

// ClearKey forgets a connect in progress so the key can connect again. No
// completion is reported for the dropped connect.
func (k Key) ClearKey() error {
	rec, err := k.record()
	if err != nil {
		return err
	}
	q := k.queue
	q.lock.Lock()
	if rec.connecting {
		q.connects.remove(rec)
		q.connectsLen.Store(int32(q.connects.len()))
	}
	q.lock.Unlock()
	return nil
}

func (k Key) resolve(tok Token) (rec *keyRecord, op *opRecord, err error) {
	if rec, err = k.record(); err != nil {
		return
	}
	if tok.queue != k.queue {
		err = ErrInvalidArgument
		return
	}
	op, err = tok.record()
	return
}
