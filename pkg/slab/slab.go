package slab

import (
	"sync/atomic"

	"github.com/brickingsoft/errors"
)

var (
	ErrFull  = errors.Define("slab is full")
	ErrStale = errors.Define("stale handle")
)

// Handle addresses one slot. Gen is odd while the slot is live, so the zero
// Handle never resolves.
type Handle struct {
	Index uint32
	Gen   uint32
}

func (h Handle) Valid() bool {
	return h.Gen&1 == 1
}

type entry[T any] struct {
	gen   atomic.Uint32
	value atomic.Pointer[T]
}

// Slab is a fixed-capacity arena. Entries never move, so Get is lock-free;
// Insert and Remove must be serialized by the caller.
type Slab[T any] struct {
	entries []entry[T]
	free    []uint32
}

func New[T any](capacity int) *Slab[T] {
	if capacity < 1 {
		capacity = 1
	}
	s := &Slab[T]{
		entries: make([]entry[T], capacity),
		free:    make([]uint32, capacity),
	}
	for i := 0; i < capacity; i++ {
		s.free[i] = uint32(capacity - 1 - i)
	}
	return s
}

func (s *Slab[T]) Insert(value T) (h Handle, err error) {
	n := len(s.free)
	if n == 0 {
		err = ErrFull
		return
	}
	idx := s.free[n-1]
	s.free = s.free[:n-1]
	e := &s.entries[idx]
	e.value.Store(&value)
	gen := e.gen.Add(1)
	h = Handle{Index: idx, Gen: gen}
	return
}

func (s *Slab[T]) Get(h Handle) (v T, ok bool) {
	if !h.Valid() || int(h.Index) >= len(s.entries) {
		return
	}
	e := &s.entries[h.Index]
	if e.gen.Load() != h.Gen {
		return
	}
	p := e.value.Load()
	// the slot may have been recycled between the two loads
	if p == nil || e.gen.Load() != h.Gen {
		return
	}
	v, ok = *p, true
	return
}

func (s *Slab[T]) Remove(h Handle) (v T, err error) {
	if !h.Valid() || int(h.Index) >= len(s.entries) {
		err = ErrStale
		return
	}
	e := &s.entries[h.Index]
	if !e.gen.CompareAndSwap(h.Gen, h.Gen+1) {
		err = ErrStale
		return
	}
	if p := e.value.Swap(nil); p != nil {
		v = *p
	}
	s.free = append(s.free, h.Index)
	return
}

// Range visits live entries in index order until fn returns false.
func (s *Slab[T]) Range(fn func(h Handle, v T) bool) {
	for i := range s.entries {
		e := &s.entries[i]
		gen := e.gen.Load()
		if gen&1 == 0 {
			continue
		}
		p := e.value.Load()
		if p == nil {
			continue
		}
		if !fn(Handle{Index: uint32(i), Gen: gen}, *p) {
			return
		}
	}
}

func (s *Slab[T]) Len() int {
	return len(s.entries) - len(s.free)
}
