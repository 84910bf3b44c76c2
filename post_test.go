package ioqueue_test

import (
	"sync"
	"testing"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/ioqueue"
	"golang.org/x/sys/unix"
)

func TestPostCompletion(t *testing.T) {
	eachBackend(t, func(t *testing.T, options ...ioqueue.Option) {
		q := newQueue(t, options...)
		defer closeQueue(t, q)
		a, b := socketPair(t, unix.SOCK_STREAM)
		defer closeFd(a, b)

		var (
			calls  int
			gotN   int
			gotErr error
		)
		key, err := q.Register(a, nil, &ioqueue.Callbacks{
			OnReadComplete: func(key ioqueue.Key, tok ioqueue.Token, n int, err error) {
				calls++
				gotN, gotErr = n, err
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		defer key.Unregister()

		tok, _ := q.NewToken(nil)
		if _, err = key.Recv(tok, make([]byte, 8), 0); !ioqueue.IsPending(err) {
			t.Fatal("expected pending, got", err)
		}
		if err = key.PostCompletion(tok, -125, ioqueue.ErrCancelled); err != nil {
			t.Fatal(err)
		}
		if err = key.PostCompletion(tok, -125, ioqueue.ErrCancelled); !errors.Is(err, ioqueue.ErrNotPending) {
			t.Error("expected not pending, got", err)
		}
		// data arriving now must not complete the cancelled receive
		if _, err = unix.Write(b, []byte("late")); err != nil {
			t.Fatal(err)
		}
		n, err := q.Poll(time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 || calls != 1 {
			t.Fatal("expected one completion, got", n, calls)
		}
		if gotN != -125 || !ioqueue.IsCancelled(gotErr) {
			t.Error("unexpected posted status:", gotN, gotErr)
		}
		if n, _ = q.Poll(30 * time.Millisecond); n != 0 || calls != 1 {
			t.Error("posted completion delivered twice")
		}
		if tok.Busy() {
			t.Error("token busy after delivery")
		}
		if err = key.PostCompletion(tok, 0, nil); !errors.Is(err, ioqueue.ErrNotPending) {
			t.Error("expected not pending, got", err)
		}
	})
}

func TestPostCompletionWakesPoller(t *testing.T) {
	eachBackend(t, func(t *testing.T, options ...ioqueue.Option) {
		q := newQueue(t, options...)
		defer closeQueue(t, q)
		a, b := socketPair(t, unix.SOCK_STREAM)
		defer closeFd(a, b)

		rec := &recorder{}
		key, err := q.Register(a, nil, rec)
		if err != nil {
			t.Fatal(err)
		}
		defer key.Unregister()
		tok, _ := q.NewToken(nil)
		if _, err = key.Send(tok, []byte("x"), ioqueue.AlwaysAsync); !ioqueue.IsPending(err) {
			// the write side is ready at once, so Send completes through Poll
			t.Fatal("expected pending, got", err)
		}
		pollUntil(t, q, time.Second, func() bool { return rec.len() == 1 })

		if _, err = key.Recv(tok, make([]byte, 4), 0); !ioqueue.IsPending(err) {
			t.Fatal("expected pending, got", err)
		}
		var (
			wg     sync.WaitGroup
			polled int
			perr   error
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			polled, perr = q.Poll(ioqueue.Infinite)
		}()
		time.Sleep(20 * time.Millisecond)
		if err = key.PostCompletion(tok, 0, ioqueue.ErrCancelled); err != nil {
			t.Fatal(err)
		}
		wg.Wait()
		if perr != nil || polled != 1 {
			t.Error("blocked poller not woken:", polled, perr)
		}
		result, ok := rec.get(1).(ioqueue.ReadResult)
		if !ok || !ioqueue.IsCancelled(result.Err) {
			t.Error("unexpected completion:", rec.get(1))
		}
	})
}

func TestUnregisterWithPendingOperations(t *testing.T) {
	q := newQueue(t)
	defer closeQueue(t, q)
	a, b := socketPair(t, unix.SOCK_STREAM)
	defer closeFd(a, b)

	rec := &recorder{}
	key, err := q.Register(a, nil, rec)
	if err != nil {
		t.Fatal(err)
	}
	tok, _ := q.NewToken(nil)
	if _, err = key.Recv(tok, make([]byte, 8), 0); !ioqueue.IsPending(err) {
		t.Fatal("expected pending, got", err)
	}
	if err = key.Unregister(); !errors.Is(err, ioqueue.ErrOperationsPending) {
		t.Fatal("expected operations pending, got", err)
	}
	if err = key.PostCompletion(tok, 0, ioqueue.ErrCancelled); err != nil {
		t.Fatal(err)
	}
	// still owed to the application
	if err = key.Unregister(); !errors.Is(err, ioqueue.ErrOperationsPending) {
		t.Fatal("expected operations pending, got", err)
	}
	if n, _ := q.Poll(time.Second); n != 1 {
		t.Fatal("expected posted completion, got", n)
	}
	if err = key.Unregister(); err != nil {
		t.Fatal(err)
	}
}

func TestUnregisterFromCallback(t *testing.T) {
	q := newQueue(t)
	defer closeQueue(t, q)
	a, b := socketPair(t, unix.SOCK_STREAM)
	defer closeFd(a, b)

	var unregErr error
	done := false
	key, err := q.Register(a, nil, ioqueue.HandlerFunc(func(c ioqueue.Completion) {
		r := c.(ioqueue.ReadResult)
		unregErr = r.Key.Unregister()
		done = true
	}))
	if err != nil {
		t.Fatal(err)
	}
	tok, _ := q.NewToken(nil)
	if _, err = key.Recv(tok, make([]byte, 8), 0); !ioqueue.IsPending(err) {
		t.Fatal("expected pending, got", err)
	}
	if _, err = unix.Write(b, []byte("bye")); err != nil {
		t.Fatal(err)
	}
	pollUntil(t, q, time.Second, func() bool { return done })
	if unregErr != nil {
		t.Error("unregister inside callback:", unregErr)
	}
	if key.Valid() {
		t.Error("key still valid")
	}
}
