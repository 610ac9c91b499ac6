package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rectcircle/loratun/internal/loratun/link"
	"github.com/rectcircle/loratun/internal/radiosim"
	"github.com/rectcircle/loratun/internal/variable"
	"github.com/rectcircle/loratun/tools"
)

var (
	subcommandKeyPair = "pair"
	subcommandKeyEcho = "echo"
	subcommandKeyHelp = "help"
)

func newFlagSet(subcommand, desc string) *flag.FlagSet {
	flagset := flag.NewFlagSet(subcommand, flag.ExitOnError)
	flagset.Usage = func() {
		fmt.Fprintf(flagset.Output(), "%s\nUsage of `%s %s`:\n", desc, os.Args[0], subcommand)
		flagset.PrintDefaults()
	}
	return flagset
}

func parsePairArgs(args []string) (opts radiosim.Options, verbose bool) {
	flagset := newFlagSet(subcommandKeyPair, "Create two pseudo-terminals joined like a pair of radios")
	flagset.Float64Var(&opts.Loss, "loss", 0, "probability a chunk of bytes is lost")
	flagset.Float64Var(&opts.Corrupt, "corrupt", 0, "probability one bit of a chunk is flipped")
	flagset.Int64Var(&opts.Seed, "seed", 0, "random seed, 0 picks one from the clock")
	flagset.BoolVar(&verbose, "debug", false, "debug logging")
	flagset.Parse(args[1:])
	if err := opts.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	return
}

func parseEchoArgs(args []string) (port string, baud int, verbose bool) {
	flagset := newFlagSet(subcommandKeyEcho, "Send every byte read from a port back to it")
	flagset.StringVar(&port, "port", link.PortPTY, "serial device path, pty or tcp://host:port")
	flagset.IntVar(&baud, "baud", variable.DefaultBaud, "serial baud rate")
	flagset.BoolVar(&verbose, "debug", false, "debug logging")
	flagset.Parse(args[1:])
	return
}

func helpAndExit(isErr bool) {
	stdOutOrErr := os.Stdout
	if isErr {
		stdOutOrErr = os.Stderr
	}
	fmt.Fprintf(stdOutOrErr, "A LoRa radio simulator for testing loratun\nUsage of %s pair | echo\n  -help\n         output this help\n", os.Args[0])
	if isErr {
		os.Exit(2)
	}
}

func main() {
	if len(os.Args) < 2 {
		helpAndExit(true)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case subcommandKeyPair:
		opts, verbose := parsePairArgs(os.Args[1:])
		tools.SetupLogging(verbose)
		pair, err := radiosim.OpenPair(opts, time.Now().UnixNano())
		tools.LogAndExitIfErr(err)
		fmt.Printf("%s <-> %s\n", pair.A.PeerName(), pair.B.PeerName())
		tools.LogAndExitIfErr(pair.Run(ctx))
	case subcommandKeyEcho:
		port, baud, verbose := parseEchoArgs(os.Args[1:])
		tools.SetupLogging(verbose)
		l, err := link.Open(port, baud)
		tools.LogAndExitIfErr(err)
		if p, ok := l.(*link.PTYLink); ok {
			fmt.Println(p.PeerName())
		}
		err = radiosim.Echo(ctx, l)
		l.Close()
		tools.LogAndExitIfErr(err)
	case subcommandKeyHelp:
		helpAndExit(false)
	default:
		helpAndExit(true)
	}
}
