package main

import (
	"context"
	"encoding/binary"
	"hash"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brickingsoft/ioqueue"
	"golang.org/x/crypto/sha3"
	"golang.org/x/time/rate"
)

// payload fills b with the bytes found at offset off of a generated stream.
func payload(b []byte, off int) {
	var word [8]byte
	for i := range b {
		pos := off + i
		if pos%8 == 0 || i == 0 {
			binary.LittleEndian.PutUint64(word[:], uint64(pos/8)*0x9e3779b97f4a7c15)
		}
		b[i] = word[pos%8]
	}
}

// digestOf hashes the first n bytes of the generated stream.
func digestOf(n int, chunk int) []byte {
	h := sha3.New256()
	buf := make([]byte, chunk)
	for off := 0; off < n; off += chunk {
		size := chunk
		if n-off < size {
			size = n - off
		}
		payload(buf[:size], off)
		h.Write(buf[:size])
	}
	return h.Sum(nil)
}

// sink keeps one receive outstanding on a key and hashes what arrives.
type sink struct {
	key   ioqueue.Key
	tok   ioqueue.Token
	buf   []byte
	limit int64
	done  func(s *sink)

	doneOnce sync.Once
	mu       sync.Mutex
	hash     hash.Hash
	received atomic.Int64
	err      error
}

func newSink(size int, limit int64, done func(s *sink)) *sink {
	return &sink{buf: make([]byte, size), limit: limit, done: done, hash: sha3.New256()}
}

func (s *sink) consume(n int) bool {
	s.mu.Lock()
	s.hash.Write(s.buf[:n])
	s.mu.Unlock()
	total := s.received.Add(int64(n))
	if s.limit > 0 && total >= s.limit {
		s.doneOnce.Do(func() { s.done(s) })
		return false
	}
	return true
}

func (s *sink) finish(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.doneOnce.Do(func() { s.done(s) })
}

func (s *sink) Sum() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hash.Sum(nil)
}

func (s *sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// next submits receives until one goes pending.
func (s *sink) next() {
	for {
		n, err := s.key.Recv(s.tok, s.buf, 0)
		if ioqueue.IsPending(err) {
			return
		}
		if err != nil {
			s.finish(err)
			return
		}
		if n == 0 {
			s.finish(nil)
			return
		}
		if !s.consume(n) {
			return
		}
	}
}

func (s *sink) Handle(c ioqueue.Completion) {
	r, ok := c.(ioqueue.ReadResult)
	if !ok {
		return
	}
	if r.Err != nil {
		if !ioqueue.IsCancelled(r.Err) {
			s.finish(r.Err)
		}
		return
	}
	if r.N == 0 {
		s.finish(nil)
		return
	}
	if s.consume(r.N) {
		s.next()
	}
}

// source writes a generated stream through one token, waiting for each
// pending send before the next.
type source struct {
	key     ioqueue.Key
	tok     ioqueue.Token
	to      net.Addr
	total   int
	chunk   int
	limiter *rate.Limiter

	written   chan ioqueue.WriteResult
	connected chan error
}

func newSource(total int, chunk int, limiter *rate.Limiter) *source {
	return &source{
		total:     total,
		chunk:     chunk,
		limiter:   limiter,
		written:   make(chan ioqueue.WriteResult, 1),
		connected: make(chan error, 1),
	}
}

func (s *source) Handle(c ioqueue.Completion) {
	switch r := c.(type) {
	case ioqueue.WriteResult:
		s.written <- r
		break
	case ioqueue.ConnectResult:
		s.connected <- r.Err
		break
	}
}

func (s *source) connect(ctx context.Context, addr net.Addr) error {
	err := s.key.Connect(addr)
	// the connect table is bounded, wait for a slot
	for ioqueue.IsTooManyConnects(err) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
		err = s.key.Connect(addr)
	}
	if !ioqueue.IsPending(err) {
		return err
	}
	select {
	case err = <-s.connected:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *source) run(ctx context.Context) error {
	buf := make([]byte, s.chunk)
	for off := 0; off < s.total; {
		size := s.chunk
		if s.total-off < size {
			size = s.total - off
		}
		payload(buf[:size], off)
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		var (
			n   int
			err error
		)
		if s.to != nil {
			n, err = s.key.SendTo(s.tok, buf[:size], 0, s.to)
		} else {
			n, err = s.key.Send(s.tok, buf[:size], 0)
		}
		if ioqueue.IsPending(err) {
			select {
			case r := <-s.written:
				n, err = r.N, r.Err
				break
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			return err
		}
		off += n
	}
	return nil
}
