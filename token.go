package ioqueue

import (
	"sync/atomic"

	"github.com/brickingsoft/ioqueue/pkg/slab"
	"golang.org/x/sys/unix"
)

const (
	opIdle int32 = iota
	opRecv
	opRecvFrom
	opSend
	opSendTo
	opAccept
)

// Token correlates one submitted operation with its completion. A token holds
// at most one operation at a time and is reusable once that operation has
// completed, either synchronously or through Poll.
type Token struct {
	queue  *Queue
	handle slab.Handle
}

type opRecord struct {
	handle slab.Handle
	state  atomic.Int32
	// fields below are guarded by the owning key's mu while state is not idle
	key    *keyRecord
	buf    []byte
	flags  int
	to     unix.Sockaddr
	done   int
	posted bool

	userData atomic.Pointer[any]
}

func (op *opRecord) token(q *Queue) Token {
	return Token{queue: q, handle: op.handle}
}

// reset returns the record to idle. Caller holds the owning key's mu.
func (op *opRecord) reset() {
	op.key = nil
	op.buf = nil
	op.flags = 0
	op.to = nil
	op.done = 0
	op.posted = false
	op.state.Store(opIdle)
}

// NewToken allocates a token from the queue's token arena.
func (q *Queue) NewToken(userData any) (tok Token, err error) {
	op := &opRecord{}
	op.userData.Store(&userData)
	q.tokensMu.Lock()
	h, insertErr := q.tokens.Insert(op)
	q.tokensMu.Unlock()
	if insertErr != nil {
		err = ErrTooManyTokens
		return
	}
	op.handle = h
	tok = Token{queue: q, handle: h}
	return
}

func (t Token) record() (*opRecord, error) {
	if t.queue == nil {
		return nil, ErrStaleToken
	}
	op, ok := t.queue.tokens.Get(t.handle)
	if !ok {
		return nil, ErrStaleToken
	}
	return op, nil
}

func (t Token) UserData() any {
	op, err := t.record()
	if err != nil {
		return nil
	}
	if p := op.userData.Load(); p != nil {
		return *p
	}
	return nil
}

func (t Token) SetUserData(v any) error {
	op, err := t.record()
	if err != nil {
		return err
	}
	op.userData.Store(&v)
	return nil
}

// Busy reports whether an operation is in flight on the token.
func (t Token) Busy() bool {
	op, err := t.record()
	if err != nil {
		return false
	}
	return op.state.Load() != opIdle
}

// Release returns the token to the arena. It fails with ErrTokenBusy while an
// operation is in flight.
func (t Token) Release() error {
	op, err := t.record()
	if err != nil {
		return err
	}
	if op.state.Load() != opIdle {
		return ErrTokenBusy
	}
	q := t.queue
	q.tokensMu.Lock()
	_, err = q.tokens.Remove(t.handle)
	q.tokensMu.Unlock()
	if err != nil {
		return ErrStaleToken
	}
	return nil
}
