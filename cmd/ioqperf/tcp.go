package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/ioqueue"
	"github.com/brickingsoft/ioqueue/pkg/sys"
	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

type tcpCmd struct {
	cfg *Config
}

func (*tcpCmd) Name() string     { return "tcp" }
func (*tcpCmd) Synopsis() string { return "stream transfer over loopback connections" }
func (*tcpCmd) Usage() string {
	return "tcp [-conns n] [-bytes n] [-chunk n]\n\tconnects, accepts and streams through the queue, checking every digest.\n"
}

func (c *tcpCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.cfg.TCP.Connections, "conns", c.cfg.TCP.Connections, "concurrent connections")
	f.IntVar(&c.cfg.TCP.Bytes, "bytes", c.cfg.TCP.Bytes, "bytes per connection")
	f.IntVar(&c.cfg.TCP.Chunk, "chunk", c.cfg.TCP.Chunk, "bytes per send")
	f.StringVar(&c.cfg.Queue.Backend, "backend", c.cfg.Queue.Backend, "readiness backend: epoll or poll")
}

func (c *tcpCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := runTCP(ctx, c.cfg); err != nil {
		fmt.Println("tcp:", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// acceptor keeps an accept outstanding and hands every connection to a new sink.
type acceptor struct {
	s     *session
	key   ioqueue.Key
	tok   ioqueue.Token
	chunk int
	limit int64
	done  func(*sink)

	mu    sync.Mutex
	sinks []*sink
	err   error
}

func (a *acceptor) serve(fd int) {
	rx := newSink(a.chunk, a.limit, a.done)
	key, toks, err := a.s.register(fd, rx, 1)
	if err != nil {
		_ = unix.Close(fd)
		a.fail(err)
		return
	}
	rx.key, rx.tok = key, toks[0]
	a.mu.Lock()
	a.sinks = append(a.sinks, rx)
	a.mu.Unlock()
	rx.next()
}

func (a *acceptor) fail(err error) {
	a.mu.Lock()
	if a.err == nil {
		a.err = err
	}
	a.mu.Unlock()
}

func (a *acceptor) next() {
	for {
		fd, _, _, err := a.key.Accept(a.tok)
		if ioqueue.IsPending(err) {
			return
		}
		if err != nil {
			a.fail(err)
			return
		}
		a.serve(fd)
	}
}

func (a *acceptor) Handle(c ioqueue.Completion) {
	r, ok := c.(ioqueue.AcceptResult)
	if !ok {
		return
	}
	if r.Err != nil {
		if !ioqueue.IsCancelled(r.Err) {
			a.fail(r.Err)
		}
		return
	}
	a.serve(r.Fd)
	a.next()
}

func runTCP(ctx context.Context, cfg *Config) (err error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	conns := cfg.TCP.Connections
	s, err := openSession(cfg, conns*2+1)
	if err != nil {
		return
	}
	defer func() {
		if closeErr := s.close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	// listen
	lfd, laddr, err := sys.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return
	}
	finished := make(chan *sink, conns)
	acc := &acceptor{
		s:     s,
		chunk: cfg.TCP.Chunk,
		limit: int64(cfg.TCP.Bytes),
		done: func(rx *sink) {
			finished <- rx
		},
	}
	key, toks, err := s.register(lfd, acc, 1)
	if err != nil {
		_ = unix.Close(lfd)
		return
	}
	acc.key, acc.tok = key, toks[0]

	if err = s.start(ctx); err != nil {
		return
	}
	begin := time.Now()
	acc.next()

	// dial
	clients, clientsCtx := errgroup.WithContext(ctx)
	for i := 0; i < conns; i++ {
		clients.Go(func() error {
			fd, sockErr := sys.NewSocket(unix.AF_INET, unix.SOCK_STREAM, 0)
			if sockErr != nil {
				return sockErr
			}
			tx := newSource(cfg.TCP.Bytes, cfg.TCP.Chunk, nil)
			ckey, ctoks, regErr := s.register(fd, tx, 1)
			if regErr != nil {
				_ = unix.Close(fd)
				return regErr
			}
			tx.key, tx.tok = ckey, ctoks[0]
			if connErr := tx.connect(clientsCtx, laddr); connErr != nil {
				return connErr
			}
			return tx.run(clientsCtx)
		})
	}
	if err = clients.Wait(); err != nil {
		return
	}

	expected := digestOf(cfg.TCP.Bytes, cfg.TCP.Chunk)
	for i := 0; i < conns; i++ {
		select {
		case rx := <-finished:
			if rxErr := rx.Err(); rxErr != nil {
				err = rxErr
				return
			}
			if rx.received.Load() != int64(cfg.TCP.Bytes) || !bytes.Equal(rx.Sum(), expected) {
				err = errors.From(errDigestMismatch, errors.WithMeta("received", strconv.FormatInt(rx.received.Load(), 10)))
				return
			}
			break
		case <-ctx.Done():
			err = errors.New("transfer incomplete", errors.WithMeta("finished", strconv.Itoa(i)), errors.WithWrap(ctx.Err()))
			return
		}
	}
	elapsed := time.Since(begin)
	acc.mu.Lock()
	accErr := acc.err
	acc.mu.Unlock()
	if accErr != nil {
		err = accErr
		return
	}
	total := int64(conns) * int64(cfg.TCP.Bytes)
	fmt.Printf("backend=%s conns=%d bytes=%d elapsed=%s MiB/s=%.1f digest_match=true\n",
		s.queue.Name(), conns, total, elapsed, float64(total)/(1<<20)/elapsed.Seconds())
	return
}
