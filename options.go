package ioqueue

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// AlwaysAsync forces the pending path even when the operation could
	// complete immediately. It is stripped before the flags reach the OS.
	// The bit fits a 32-bit int; on Linux it shadows MSG_CMSG_CLOEXEC, which
	// only affects ancillary data the queue never receives.
	AlwaysAsync = 1 << 30

	// Infinite makes Poll block until something completes.
	Infinite time.Duration = -1
)

const (
	defaultMaxEvents           = 16
	defaultConnectTableSize    = 64
	defaultWaitHandlePoolSize  = 16
	defaultConnectScanInterval = 10 * time.Millisecond
	defaultTokensPerKey        = 4
)

type Backend string

const (
	BackendDefault Backend = ""
	BackendEPoll   Backend = "epoll"
	BackendPoll    Backend = "poll"
)

type Options struct {
	// Lock guards the key set, the connect table and posted completions.
	// Nil means a fresh sync.Mutex.
	Lock           sync.Locker
	LockAutoDelete bool
	Backend        Backend
	// MaxEvents bounds both the backend events and the posted completions
	// drained by one Poll call.
	MaxEvents           int
	ConnectTableSize    int
	WaitHandlePoolSize  int
	ConnectScanInterval time.Duration
	// Tokens is the capacity of the token arena. Zero means four per descriptor.
	Tokens int
	Logger logrus.FieldLogger
}

type Option func(*Options)

// WithLock
// replace the default lock, autoDelete closes it with the queue when it is an io.Closer.
func WithLock(lock sync.Locker, autoDelete bool) Option {
	return func(o *Options) {
		o.Lock = lock
		o.LockAutoDelete = autoDelete
	}
}

// WithBackend
// pick the readiness backend, epoll is the default on linux.
func WithBackend(backend Backend) Option {
	return func(o *Options) {
		o.Backend = backend
	}
}

func WithMaxEvents(n int) Option {
	return func(o *Options) {
		o.MaxEvents = n
	}
}

// WithConnectTableSize
// bound the number of connects waiting at the same time.
func WithConnectTableSize(n int) Option {
	return func(o *Options) {
		o.ConnectTableSize = n
	}
}

func WithWaitHandlePoolSize(n int) Option {
	return func(o *Options) {
		o.WaitHandlePoolSize = n
	}
}

// WithConnectScanInterval
// the longest Poll sleeps on the backend while connects are outstanding.
func WithConnectScanInterval(d time.Duration) Option {
	return func(o *Options) {
		o.ConnectScanInterval = d
	}
}

func WithTokens(n int) Option {
	return func(o *Options) {
		o.Tokens = n
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func (o *Options) complete(maxDescriptors int) {
	if o.Lock == nil {
		o.Lock = new(sync.Mutex)
		o.LockAutoDelete = false
	}
	if o.MaxEvents < 1 {
		o.MaxEvents = defaultMaxEvents
	}
	if o.ConnectTableSize < 1 {
		o.ConnectTableSize = defaultConnectTableSize
	}
	if o.WaitHandlePoolSize < 0 {
		o.WaitHandlePoolSize = 0
	} else if o.WaitHandlePoolSize == 0 {
		o.WaitHandlePoolSize = defaultWaitHandlePoolSize
	}
	if o.WaitHandlePoolSize > o.ConnectTableSize {
		o.WaitHandlePoolSize = o.ConnectTableSize
	}
	if o.ConnectScanInterval < 1 {
		o.ConnectScanInterval = defaultConnectScanInterval
	}
	if o.Tokens < 1 {
		o.Tokens = maxDescriptors * defaultTokensPerKey
	}
	if o.Logger == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.WarnLevel)
		o.Logger = logger
	}
}

// NullLock is a lock that does nothing, for queues polled from one goroutine only.
type NullLock struct{}

func (NullLock) Lock()   {}
func (NullLock) Unlock() {}
