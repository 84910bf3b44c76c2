package ioqueue_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/ioqueue"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// reader keeps one receive outstanding on its key and counts the bytes.
type reader struct {
	key   ioqueue.Key
	tok   ioqueue.Token
	buf   []byte
	total atomic.Int64
	err   atomic.Pointer[error]
}

func (r *reader) fail(err error) {
	r.err.CompareAndSwap(nil, &err)
}

func (r *reader) next() {
	for {
		n, err := r.key.Recv(r.tok, r.buf, 0)
		if ioqueue.IsPending(err) {
			return
		}
		if err != nil {
			r.fail(err)
			return
		}
		if n == 0 {
			return
		}
		r.total.Add(int64(n))
	}
}

func (r *reader) Handle(c ioqueue.Completion) {
	result, ok := c.(ioqueue.ReadResult)
	if !ok {
		return
	}
	if result.Err != nil {
		r.fail(result.Err)
		return
	}
	if result.N == 0 {
		return
	}
	r.total.Add(int64(result.N))
	r.next()
}

func TestStress(t *testing.T) {
	eachBackend(t, func(t *testing.T, options ...ioqueue.Option) {
		const (
			pairs    = 16
			messages = 200
			size     = 512
			pollers  = 4
			churn    = 64
		)
		q, err := ioqueue.New(pairs*2+8, options...)
		if err != nil {
			t.Fatal(err)
		}
		defer closeQueue(t, q)

		readers := make([]*reader, pairs)
		writers := make([]int, pairs)
		for i := range readers {
			a, b := socketPair(t, unix.SOCK_STREAM)
			defer closeFd(a, b)
			r := &reader{buf: make([]byte, 1024)}
			if r.key, err = q.Register(a, i, r); err != nil {
				t.Fatal(err)
			}
			if r.tok, err = q.NewToken(nil); err != nil {
				t.Fatal(err)
			}
			readers[i] = r
			writers[i] = b
		}
		for _, r := range readers {
			r.next()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		var finished atomic.Bool
		polling, _ := errgroup.WithContext(ctx)
		for i := 0; i < pollers; i++ {
			polling.Go(func() error {
				for !finished.Load() && ctx.Err() == nil {
					if _, perr := q.Poll(20 * time.Millisecond); perr != nil {
						return perr
					}
				}
				return nil
			})
		}

		traffic, _ := errgroup.WithContext(ctx)
		for _, fd := range writers {
			traffic.Go(func() error {
				msg := make([]byte, size)
				for m := 0; m < messages; m++ {
					for off := 0; off < size; {
						n, werr := unix.Write(fd, msg[off:])
						if werr == unix.EINTR {
							continue
						}
						if werr != nil {
							return werr
						}
						off += n
					}
				}
				return nil
			})
		}
		// keys registered and dropped next to the busy ones
		traffic.Go(func() error {
			for i := 0; i < churn; i++ {
				fds, serr := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
				if serr != nil {
					return serr
				}
				key, rerr := q.Register(fds[0], nil, nil)
				if rerr != nil {
					closeFd(fds[0], fds[1])
					return rerr
				}
				if uerr := key.Unregister(); uerr != nil {
					closeFd(fds[0], fds[1])
					return uerr
				}
				closeFd(fds[0], fds[1])
			}
			return nil
		})
		if err = traffic.Wait(); err != nil {
			t.Fatal(err)
		}

		want := int64(messages * size)
		for ctx.Err() == nil {
			done := true
			for _, r := range readers {
				if r.total.Load() < want {
					done = false
					break
				}
			}
			if done {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		finished.Store(true)
		if err = polling.Wait(); err != nil {
			t.Fatal(err)
		}

		for i, r := range readers {
			if p := r.err.Load(); p != nil {
				t.Error("reader", i, "failed:", *p)
			}
			if got := r.total.Load(); got != want {
				t.Error("reader", i, "got", got, "bytes, want", want)
			}
			_ = r.key.PostCompletion(r.tok, 0, ioqueue.ErrCancelled)
		}
		pollUntil(t, q, time.Second, func() bool {
			for _, r := range readers {
				if r.tok.Busy() {
					return false
				}
			}
			return true
		})
		for _, r := range readers {
			if err = r.key.Unregister(); err != nil {
				t.Error(err)
			}
		}
	})
}

func TestRunner(t *testing.T) {
	q := newQueue(t)
	defer closeQueue(t, q)
	a, b := socketPair(t, unix.SOCK_STREAM)
	defer closeFd(a, b)

	got := make(chan ioqueue.ReadResult, 1)
	key, err := q.Register(a, nil, ioqueue.HandlerFunc(func(c ioqueue.Completion) {
		if r, ok := c.(ioqueue.ReadResult); ok {
			got <- r
		}
	}))
	if err != nil {
		t.Fatal(err)
	}
	defer key.Unregister()
	tok, _ := q.NewToken(nil)
	buf := make([]byte, 16)
	if _, err = key.Recv(tok, buf, 0); !ioqueue.IsPending(err) {
		t.Fatal("expected pending, got", err)
	}

	runner, err := ioqueue.NewRunner(q, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- runner.Run(ctx)
	}()

	if _, err = unix.Write(b, []byte("runner")); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-got:
		if string(buf[:r.N]) != "runner" {
			t.Error("unexpected data:", string(buf[:r.N]))
		}
	case <-time.After(2 * time.Second):
		t.Error("no completion from runner")
	}
	cancel()
	if err = <-errCh; err != nil {
		t.Error("runner:", err)
	}
}

func TestRunnerWorkerInit(t *testing.T) {
	q := newQueue(t)
	defer closeQueue(t, q)

	var started, undone atomic.Int32
	runner, err := ioqueue.NewRunner(q, 3)
	if err != nil {
		t.Fatal(err)
	}
	runner.OnWorkerStart(func(worker int) (func(), error) {
		started.Add(1)
		return func() { undone.Add(1) }, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err = runner.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if started.Load() != 3 || undone.Load() != 3 {
		t.Errorf("init ran %d times, undo %d times", started.Load(), undone.Load())
	}

	failing, err := ioqueue.NewRunner(q, 2)
	if err != nil {
		t.Fatal(err)
	}
	failing.OnWorkerStart(func(worker int) (func(), error) {
		if worker == 1 {
			return nil, ioqueue.ErrInvalidArgument
		}
		return nil, nil
	})
	if err = failing.Run(context.Background()); !errors.Is(err, ioqueue.ErrInvalidArgument) {
		t.Error("init failure not reported:", err)
	}
}
