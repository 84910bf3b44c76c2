package ioqueue

import (
	"github.com/brickingsoft/ioqueue/pkg/sys"
	"github.com/sirupsen/logrus"
)

type connectEntry struct {
	key    Key
	rec    *keyRecord
	handle *waitHandle
}

// connectTable pairs connecting keys with wait handles. Handles released by
// finished or cancelled connects go back to a fixed-capacity stack. The queue
// lock guards everything here.
type connectTable struct {
	entries []connectEntry
	size    int
	pool    []*waitHandle
	logger  logrus.FieldLogger
}

func newConnectTable(size int, poolSize int, logger logrus.FieldLogger) *connectTable {
	return &connectTable{
		entries: make([]connectEntry, 0, size),
		size:    size,
		pool:    make([]*waitHandle, 0, poolSize),
		logger:  logger,
	}
}

func (t *connectTable) full() bool {
	return len(t.entries) >= t.size
}

func (t *connectTable) len() int {
	return len(t.entries)
}

func (t *connectTable) acquire() (h *waitHandle, err error) {
	if n := len(t.pool); n > 0 {
		h = t.pool[n-1]
		t.pool[n-1] = nil
		t.pool = t.pool[:n-1]
		return
	}
	h, err = newWaitHandle()
	return
}

func (t *connectTable) release(h *waitHandle) {
	h.detach()
	if len(t.pool) < cap(t.pool) {
		t.pool = append(t.pool, h)
		return
	}
	if err := h.close(); err != nil {
		t.logger.WithError(err).Warn("ioqueue: close wait handle failed")
	}
}

func (t *connectTable) add(key Key, rec *keyRecord) error {
	h, err := t.acquire()
	if err != nil {
		return err
	}
	if err = h.attach(rec.fd); err != nil {
		t.release(h)
		return err
	}
	t.entries = append(t.entries, connectEntry{key: key, rec: rec, handle: h})
	rec.connecting = true
	return nil
}

func (t *connectTable) removeAt(i int) {
	last := len(t.entries) - 1
	t.entries[i] = t.entries[last]
	t.entries[last] = connectEntry{}
	t.entries = t.entries[:last]
}

// remove drops the entry of rec without reporting it.
func (t *connectTable) remove(rec *keyRecord) bool {
	for i := range t.entries {
		if t.entries[i].rec != rec {
			continue
		}
		e := t.entries[i]
		t.removeAt(i)
		e.rec.connecting = false
		t.release(e.handle)
		return true
	}
	return false
}

// scan checks every entry without blocking and takes out the first one whose
// descriptor became writable, along with the outcome of its connect.
func (t *connectTable) scan() (result ConnectResult, rec *keyRecord, ok bool) {
	for i := range t.entries {
		e := t.entries[i]
		ready, err := e.handle.ready()
		if err != nil {
			t.logger.WithError(err).WithField("fd", e.rec.fd).Warn("ioqueue: connect wait failed")
			ready = true
		}
		if !ready {
			continue
		}
		t.removeAt(i)
		e.rec.connecting = false
		t.release(e.handle)
		if err == nil {
			err = sys.SocketError(e.rec.fd)
		}
		result = ConnectResult{Key: e.key, Err: err}
		rec, ok = e.rec, true
		return
	}
	return
}

func (t *connectTable) close() {
	for i := range t.entries {
		t.entries[i].rec.connecting = false
		_ = t.entries[i].handle.close()
	}
	t.entries = t.entries[:0]
	for _, h := range t.pool {
		if err := h.close(); err != nil {
			t.logger.WithError(err).Warn("ioqueue: close wait handle failed")
		}
	}
	t.pool = t.pool[:0]
}
