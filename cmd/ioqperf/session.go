package main

import (
	"context"
	"sync"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/ioqueue"
	"github.com/brickingsoft/ioqueue/pkg/process"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

type binding struct {
	key    ioqueue.Key
	tokens []ioqueue.Token
	fd     int
}

// session owns a queue, its pollers and everything registered on it.
type session struct {
	queue   *ioqueue.Queue
	logger  logrus.FieldLogger
	pollers int
	pin     bool
	cancel  context.CancelFunc
	done    chan error

	mu       sync.Mutex
	bindings []binding
}

func openSession(cfg *Config, maxDescriptors int) (s *session, err error) {
	logger, logErr := cfg.Logger()
	if logErr != nil {
		err = logErr
		return
	}
	priority, prioErr := process.ParsePriority(cfg.Queue.Priority)
	if prioErr != nil {
		err = prioErr
		return
	}
	if priority != process.Norm {
		if setErr := process.SetPriority(priority); setErr != nil {
			logger.WithError(setErr).WithField("priority", priority.String()).Warn("ioqperf: priority unchanged")
		}
	}
	q, qErr := ioqueue.New(maxDescriptors, cfg.QueueOptions(logger)...)
	if qErr != nil {
		err = qErr
		return
	}
	s = &session{
		queue:   q,
		logger:  logger,
		pollers: cfg.Queue.Pollers,
		pin:     cfg.Queue.PinPollers,
		done:    make(chan error, 1),
	}
	return
}

func (s *session) start(ctx context.Context) (err error) {
	runner, runnerErr := ioqueue.NewRunner(s.queue, s.pollers)
	if runnerErr != nil {
		err = runnerErr
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	if s.pin {
		runner.OnWorkerStart(func(worker int) (func(), error) {
			undo, err := process.PinThread(worker)
			if err != nil {
				s.logger.WithError(err).WithField("worker", worker).Warn("ioqperf: poller not pinned")
				return nil, nil
			}
			return undo, nil
		})
	}
	go func() {
		s.done <- runner.Run(ctx)
	}()
	return
}

// track remembers fd and its key so close can tear them down.
func (s *session) track(key ioqueue.Key, fd int, tokens ...ioqueue.Token) {
	s.mu.Lock()
	s.bindings = append(s.bindings, binding{key: key, tokens: tokens, fd: fd})
	s.mu.Unlock()
}

func (s *session) register(fd int, handler ioqueue.Handler, tokens int) (key ioqueue.Key, toks []ioqueue.Token, err error) {
	if key, err = s.queue.Register(fd, nil, handler); err != nil {
		return
	}
	for i := 0; i < tokens; i++ {
		tok, tokErr := s.queue.NewToken(nil)
		if tokErr != nil {
			err = tokErr
			return
		}
		toks = append(toks, tok)
	}
	s.track(key, fd, toks...)
	return
}

// close stops the pollers, cancels whatever is still pending and releases
// every key, descriptor and the queue.
func (s *session) close() (err error) {
	if s.cancel != nil {
		s.cancel()
		if runErr := <-s.done; runErr != nil {
			err = runErr
		}
	}
	s.mu.Lock()
	bindings := s.bindings
	s.bindings = nil
	s.mu.Unlock()
	for _, b := range bindings {
		for _, tok := range b.tokens {
			if b.key.IsPending(tok) {
				_ = b.key.PostCompletion(tok, 0, ioqueue.ErrCancelled)
			}
		}
	}
	for deadline := time.Now().Add(time.Second); time.Now().Before(deadline); {
		if n, _ := s.queue.Poll(0); n == 0 {
			break
		}
	}
	for _, b := range bindings {
		if unregErr := b.key.Unregister(); unregErr != nil && !ioqueue.IsStale(unregErr) {
			s.logger.WithError(unregErr).WithField("fd", b.fd).Warn("unregister failed")
		}
		_ = unix.Close(b.fd)
	}
	if closeErr := s.queue.Close(); closeErr != nil && err == nil {
		err = errors.New("close queue failed", errors.WithWrap(closeErr))
	}
	return
}
