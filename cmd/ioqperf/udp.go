package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/ioqueue/pkg/sys"
	"github.com/google/subcommands"
	"golang.org/x/time/rate"
)

type udpCmd struct {
	cfg *Config
}

func (*udpCmd) Name() string     { return "udp" }
func (*udpCmd) Synopsis() string { return "paced datagram round trip over loopback" }
func (*udpCmd) Usage() string {
	return "udp [-packets n] [-size bytes] [-rate pps]\n\tsends datagrams between two registered sockets and checks the digest.\n"
}

func (c *udpCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.cfg.UDP.Packets, "packets", c.cfg.UDP.Packets, "datagrams to send")
	f.IntVar(&c.cfg.UDP.Size, "size", c.cfg.UDP.Size, "datagram size")
	f.Float64Var(&c.cfg.UDP.Rate, "rate", c.cfg.UDP.Rate, "datagrams per second, 0 for unpaced")
	f.StringVar(&c.cfg.Queue.Backend, "backend", c.cfg.Queue.Backend, "readiness backend: epoll or poll")
}

func (c *udpCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := runUDP(ctx, c.cfg); err != nil {
		fmt.Println("udp:", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func runUDP(ctx context.Context, cfg *Config) (err error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	s, err := openSession(cfg, 2)
	if err != nil {
		return
	}
	defer func() {
		if closeErr := s.close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	total := cfg.UDP.Packets * cfg.UDP.Size
	finished := make(chan struct{})
	// receiver
	rfd, raddr, err := sys.Listen("udp", "127.0.0.1:0")
	if err != nil {
		return
	}
	rx := newSink(cfg.UDP.Size, int64(total), func(*sink) {
		close(finished)
	})
	if rx.key, err = s.queue.Register(rfd, "rx", rx); err != nil {
		return
	}
	if rx.tok, err = s.queue.NewToken(nil); err != nil {
		return
	}
	s.track(rx.key, rfd, rx.tok)
	// sender
	sfd, _, err := sys.Listen("udp", "127.0.0.1:0")
	if err != nil {
		return
	}
	var limiter *rate.Limiter
	if cfg.UDP.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.UDP.Rate), 1)
	}
	tx := newSource(total, cfg.UDP.Size, limiter)
	tx.to = raddr
	if tx.key, err = s.queue.Register(sfd, "tx", tx); err != nil {
		return
	}
	if tx.tok, err = s.queue.NewToken(nil); err != nil {
		return
	}
	s.track(tx.key, sfd, tx.tok)

	if err = s.start(ctx); err != nil {
		return
	}
	begin := time.Now()
	rx.next()
	if err = tx.run(ctx); err != nil {
		return
	}
	select {
	case <-finished:
		break
	case <-ctx.Done():
		err = errors.New("receive incomplete",
			errors.WithMeta("received", strconv.FormatInt(rx.received.Load(), 10)),
			errors.WithMeta("expected", strconv.Itoa(total)),
			errors.WithWrap(ctx.Err()),
		)
		return
	}
	elapsed := time.Since(begin)
	if err = rx.Err(); err != nil {
		return
	}
	match := bytes.Equal(rx.Sum(), digestOf(total, cfg.UDP.Size))
	s.logger.WithField("packets", cfg.UDP.Packets).WithField("elapsed", elapsed).Debug("udp done")
	fmt.Printf("backend=%s packets=%d bytes=%d elapsed=%s pps=%.0f digest_match=%t\n",
		s.queue.Name(), cfg.UDP.Packets, total, elapsed, float64(cfg.UDP.Packets)/elapsed.Seconds(), match)
	if !match {
		err = errDigestMismatch
	}
	return
}
