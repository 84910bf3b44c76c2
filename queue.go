package ioqueue

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/ioqueue/pkg/kernel"
	"github.com/brickingsoft/ioqueue/pkg/slab"
	"github.com/brickingsoft/ioqueue/pkg/sys"
	"github.com/eapache/queue"
	"github.com/google/btree"
	"github.com/sirupsen/logrus"
)

type fdEntry struct {
	fd  int
	key Key
}

func fdLess(a, b fdEntry) bool {
	return a.fd < b.fd
}

// Queue dispatches completions of operations submitted on its keys. Any
// number of goroutines may call Poll at once; handlers run on the goroutine
// whose Poll drained the completion.
type Queue struct {
	options Options
	backend backend
	logger  logrus.FieldLogger

	// lock guards keys, fds, connects and posted.
	lock           sync.Locker
	lockAutoDelete bool
	registered     atomic.Bool
	closed         atomic.Bool

	keys     *slab.Slab[*keyRecord]
	fds      *btree.BTreeG[fdEntry]
	connects *connectTable
	posted   *queue.Queue

	// connectsLen and postedLen let Poll skip the lock when there is nothing to do.
	connectsLen atomic.Int32
	postedLen   atomic.Int32

	tokensMu sync.Mutex
	tokens   *slab.Slab[*opRecord]

	events sync.Pool
}

// New creates a queue able to hold maxDescriptors keys at once.
func New(maxDescriptors int, options ...Option) (q *Queue, err error) {
	if maxDescriptors < 1 {
		err = newOpError(errMetaOpCreate, ErrInvalidArgument)
		return
	}
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}
	opts.complete(maxDescriptors)

	b, openErr := openBackend(opts.Backend, maxDescriptors)
	if openErr != nil {
		err = newOpError(errMetaOpCreate, errors.From(ErrCreate, errors.WithWrap(openErr)))
		return
	}

	q = &Queue{
		options:        opts,
		backend:        b,
		logger:         opts.Logger,
		lock:           opts.Lock,
		lockAutoDelete: opts.LockAutoDelete,
		keys:           slab.New[*keyRecord](maxDescriptors),
		fds:            btree.NewG[fdEntry](8, fdLess),
		connects:       newConnectTable(opts.ConnectTableSize, opts.WaitHandlePoolSize, opts.Logger),
		posted:         queue.New(),
		tokens:         slab.New[*opRecord](opts.Tokens),
	}
	maxEvents := opts.MaxEvents
	q.events.New = func() any {
		events := make([]event, maxEvents)
		return &events
	}

	fields := logrus.Fields{
		"backend":        b.Name(),
		"maxDescriptors": maxDescriptors,
		"maxEvents":      opts.MaxEvents,
		"connectTable":   opts.ConnectTableSize,
	}
	if version, versionErr := kernel.Get(); versionErr == nil {
		fields["kernel"] = version.String()
	}
	q.logger.WithFields(fields).Debug("ioqueue: created")
	return
}

// Name reports the readiness backend in use.
func (q *Queue) Name() string {
	return q.backend.Name()
}

// SetLock replaces the queue lock. It is only legal before the first key is
// registered. The previous lock is closed when it was installed with
// autoDelete and implements io.Closer.
func (q *Queue) SetLock(lock sync.Locker, autoDelete bool) error {
	if lock == nil {
		return ErrInvalidArgument
	}
	if q.closed.Load() {
		return ErrClosed
	}
	if q.registered.Load() {
		return ErrLockInUse
	}
	prev, prevAutoDelete := q.lock, q.lockAutoDelete
	q.lock, q.lockAutoDelete = lock, autoDelete
	if prevAutoDelete {
		if closer, ok := prev.(io.Closer); ok {
			_ = closer.Close()
		}
	}
	return nil
}

// Close releases the backend, the wait handles and, when owned, the lock.
// Every key must be unregistered first.
func (q *Queue) Close() (err error) {
	q.lock.Lock()
	if q.closed.Load() {
		q.lock.Unlock()
		err = ErrClosed
		return
	}
	if alive := q.keys.Len(); alive > 0 {
		fds := make([]int, 0, alive)
		q.keys.Range(func(_ slab.Handle, rec *keyRecord) bool {
			fds = append(fds, rec.fd)
			return len(fds) < 8
		})
		q.lock.Unlock()
		q.logger.WithField("alive", alive).WithField("fds", fds).Warn("ioqueue: close with registered keys")
		err = newOpError(errMetaOpClose, ErrKeysAlive)
		return
	}
	q.closed.Store(true)
	q.connects.close()
	q.connectsLen.Store(0)
	closeErr := q.backend.close()
	q.lock.Unlock()

	if q.lockAutoDelete {
		if closer, ok := q.lock.(io.Closer); ok {
			if lockErr := closer.Close(); lockErr != nil && closeErr == nil {
				closeErr = lockErr
			}
		}
	}
	if closeErr != nil {
		err = newOpError(errMetaOpClose, closeErr)
		return
	}
	q.logger.Debug("ioqueue: closed")
	return
}

// Register binds fd to the queue. The descriptor is switched to non-blocking
// mode and stays owned by the caller, who must close it after Unregister.
func (q *Queue) Register(fd int, userData any, handler Handler) (key Key, err error) {
	if fd < 0 {
		err = newOpError(errMetaOpRegister, ErrInvalidArgument)
		return
	}
	if q.closed.Load() {
		err = newOpError(errMetaOpRegister, ErrClosed)
		return
	}
	if err = sys.SetNonblock(fd); err != nil {
		err = newOpError(errMetaOpRegister, err)
		return
	}
	rec := &keyRecord{
		fd:      fd,
		sotype:  sys.SocketType(fd),
		handler: handler,
	}
	rec.userData.Store(&userData)

	q.lock.Lock()
	if q.fds.Has(fdEntry{fd: fd}) {
		q.lock.Unlock()
		err = newOpError(errMetaOpRegister, ErrDuplicateFd)
		return
	}
	h, insertErr := q.keys.Insert(rec)
	if insertErr != nil {
		q.lock.Unlock()
		err = newOpError(errMetaOpRegister, ErrTooManyKeys)
		return
	}
	rec.handle = h
	if addErr := q.backend.add(fd, keyData(h.Index, h.Gen)); addErr != nil {
		_, _ = q.keys.Remove(h)
		q.lock.Unlock()
		err = newOpError(errMetaOpRegister, addErr)
		return
	}
	key = Key{queue: q, handle: h}
	q.fds.ReplaceOrInsert(fdEntry{fd: fd, key: key})
	q.registered.Store(true)
	q.lock.Unlock()

	q.logger.WithField("fd", fd).Debug("ioqueue: registered")
	return
}

// Unregister detaches the key. Pending receive, send or accept operations
// must be finished or posted first, otherwise ErrOperationsPending is
// returned and the key stays registered. A connect in progress is dropped
// without notification.
func (q *Queue) Unregister(key Key) (err error) {
	rec, resolveErr := q.resolveKey(key)
	if resolveErr != nil {
		err = newOpError(errMetaOpUnregister, resolveErr)
		return
	}
	rec.mu.Lock()
	if rec.closing {
		rec.mu.Unlock()
		err = newOpError(errMetaOpUnregister, ErrStaleKey)
		return
	}
	if rec.busy() {
		rec.mu.Unlock()
		err = newOpError(errMetaOpUnregister, ErrOperationsPending)
		return
	}
	rec.closing = true
	rec.mu.Unlock()

	q.lock.Lock()
	if rec.connecting {
		q.connects.remove(rec)
		q.connectsLen.Store(int32(q.connects.len()))
	}
	_, _ = q.keys.Remove(rec.handle)
	q.fds.Delete(fdEntry{fd: rec.fd})
	delErr := q.backend.del(rec.fd)
	q.lock.Unlock()

	if delErr != nil {
		// the descriptor may have been closed already, which removes it from the backend.
		q.logger.WithError(delErr).WithField("fd", rec.fd).Debug("ioqueue: detach descriptor failed")
	}
	q.logger.WithField("fd", rec.fd).Debug("ioqueue: unregistered")
	return
}

func (q *Queue) resolveKey(key Key) (*keyRecord, error) {
	if key.queue != q {
		return nil, ErrInvalidArgument
	}
	rec, ok := q.keys.Get(key.handle)
	if !ok {
		return nil, ErrStaleKey
	}
	return rec, nil
}
