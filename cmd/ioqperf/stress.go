package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

type stressCmd struct {
	cfg *Config
}

func (*stressCmd) Name() string     { return "stress" }
func (*stressCmd) Synopsis() string { return "many keys under concurrent traffic and churn" }
func (*stressCmd) Usage() string {
	return "stress [-keys n] [-messages n] [-size bytes] [-churn n]\n\tfloods socket pairs while keys are registered and dropped next to them.\n"
}

func (c *stressCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.cfg.Stress.Keys, "keys", c.cfg.Stress.Keys, "socket pairs under traffic")
	f.IntVar(&c.cfg.Stress.Messages, "messages", c.cfg.Stress.Messages, "messages per pair")
	f.IntVar(&c.cfg.Stress.Size, "size", c.cfg.Stress.Size, "message size")
	f.IntVar(&c.cfg.Stress.Churn, "churn", c.cfg.Stress.Churn, "register and unregister cycles")
	f.IntVar(&c.cfg.Queue.Pollers, "pollers", c.cfg.Queue.Pollers, "concurrent poll loops")
	f.StringVar(&c.cfg.Queue.Backend, "backend", c.cfg.Queue.Backend, "readiness backend: epoll or poll")
}

func (c *stressCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := runStress(ctx, c.cfg); err != nil {
		fmt.Println("stress:", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func runStress(ctx context.Context, cfg *Config) (err error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	keys := cfg.Stress.Keys
	s, err := openSession(cfg, keys+1)
	if err != nil {
		return
	}
	defer func() {
		if closeErr := s.close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	limit := int64(cfg.Stress.Messages * cfg.Stress.Size)
	finished := make(chan *sink, keys)
	writers := make([]int, 0, keys)
	defer func() {
		for _, fd := range writers {
			_ = unix.Close(fd)
		}
	}()
	sinks := make([]*sink, 0, keys)
	for i := 0; i < keys; i++ {
		fds, pairErr := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
		if pairErr != nil {
			err = pairErr
			return
		}
		writers = append(writers, fds[1])
		rx := newSink(cfg.Stress.Size*2, limit, func(rx *sink) {
			finished <- rx
		})
		key, toks, regErr := s.register(fds[0], rx, 1)
		if regErr != nil {
			_ = unix.Close(fds[0])
			err = regErr
			return
		}
		rx.key, rx.tok = key, toks[0]
		sinks = append(sinks, rx)
	}

	if err = s.start(ctx); err != nil {
		return
	}
	begin := time.Now()
	for _, rx := range sinks {
		rx.next()
	}

	traffic, trafficCtx := errgroup.WithContext(ctx)
	for _, fd := range writers {
		traffic.Go(func() error {
			buf := make([]byte, cfg.Stress.Size)
			for m := 0; m < cfg.Stress.Messages; m++ {
				if trafficCtx.Err() != nil {
					return trafficCtx.Err()
				}
				payload(buf, m*cfg.Stress.Size)
				for off := 0; off < len(buf); {
					n, werr := unix.Write(fd, buf[off:])
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
	traffic.Go(func() error {
		for i := 0; i < cfg.Stress.Churn; i++ {
			fds, pairErr := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
			if pairErr != nil {
				return pairErr
			}
			key, regErr := s.queue.Register(fds[0], i, nil)
			if regErr == nil {
				regErr = key.Unregister()
			}
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			if regErr != nil {
				return regErr
			}
		}
		return nil
	})
	if err = traffic.Wait(); err != nil {
		return
	}

	for i := 0; i < keys; i++ {
		select {
		case rx := <-finished:
			if rxErr := rx.Err(); rxErr != nil {
				err = rxErr
				return
			}
			break
		case <-ctx.Done():
			err = errors.New("stress incomplete", errors.WithMeta("finished", strconv.Itoa(i)), errors.WithWrap(ctx.Err()))
			return
		}
	}
	elapsed := time.Since(begin)
	expected := digestOf(int(limit), cfg.Stress.Size)
	for _, rx := range sinks {
		if !bytes.Equal(rx.Sum(), expected) {
			err = errDigestMismatch
			return
		}
	}
	fmt.Printf("backend=%s keys=%d messages=%d churn=%d elapsed=%s\n",
		s.queue.Name(), keys, keys*cfg.Stress.Messages, cfg.Stress.Churn, elapsed)
	return
}
