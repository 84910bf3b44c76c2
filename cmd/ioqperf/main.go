// Command ioqperf drives an ioqueue end to end over loopback sockets.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	cfg := DefaultConfig()
	subcommands.Register(&infoCmd{cfg: &cfg}, "")
	subcommands.Register(&udpCmd{cfg: &cfg}, "bench")
	subcommands.Register(&tcpCmd{cfg: &cfg}, "bench")
	subcommands.Register(&stressCmd{cfg: &cfg}, "bench")

	flag.Parse()
	loaded, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(int(subcommands.ExitUsageError))
	}
	cfg = loaded
	os.Exit(int(subcommands.Execute(context.Background())))
}
