package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/brickingsoft/ioqueue/pkg/kernel"
	"github.com/brickingsoft/ioqueue/pkg/sys"
	"github.com/google/subcommands"
)

type infoCmd struct {
	cfg *Config
}

func (*infoCmd) Name() string     { return "info" }
func (*infoCmd) Synopsis() string { return "print backend and kernel details" }
func (*infoCmd) Usage() string {
	return "info\n\tprints the readiness backend, kernel release and listen backlog.\n"
}

func (c *infoCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.cfg.Queue.Backend, "backend", c.cfg.Queue.Backend, "readiness backend: epoll or poll")
}

func (c *infoCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := openSession(c.cfg, 1)
	if err != nil {
		fmt.Println("open queue:", err)
		return subcommands.ExitFailure
	}
	fmt.Println("backend:", s.queue.Name())
	if version, versionErr := kernel.Get(); versionErr == nil {
		fmt.Println("kernel:", version.String())
	} else {
		fmt.Println("kernel: unknown")
	}
	fmt.Println("somaxconn:", sys.MaxListenerBacklog())
	if err = s.close(); err != nil {
		fmt.Println("close:", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
