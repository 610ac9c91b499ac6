package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/rectcircle/loratun/internal/loratun"
	"github.com/rectcircle/loratun/internal/loratun/link"
	"github.com/rectcircle/loratun/internal/loratun/protocol"
	"github.com/rectcircle/loratun/internal/loratun/stats"
	"github.com/rectcircle/loratun/internal/loratun/vni"
	"github.com/rectcircle/loratun/internal/variable"
	"github.com/rectcircle/loratun/tools"
	"github.com/sirupsen/logrus"
)

var (
	subcommandKeyRun    = "run"
	subcommandKeyPorts  = "ports"
	subcommandKeyConfig = "config"
	subcommandKeyHelp   = "help"
)

func newFlagSet(subcommand, desc string) *flag.FlagSet {
	flagset := flag.NewFlagSet(subcommand, flag.ExitOnError)
	flagset.Usage = func() {
		fmt.Fprintf(flagset.Output(), "%s\nUsage of `%s %s`:\n", desc, os.Args[0], subcommand)
		flagset.PrintDefaults()
	}
	return flagset
}

// parseRunArgs - flags layered over the optional config file, defaults applied
func parseRunArgs(args []string) (*loratun.Config, error) {
	var (
		flags      loratun.Config
		configPath string
	)
	flagset := newFlagSet(subcommandKeyRun, "Bridge a LoRa serial radio to a virtual network interface")
	flagset.StringVar(&configPath, "config", "", "YAML config file, flags given on the command line override it")
	flagset.StringVar(&flags.Port, "port", "", "serial device path, COM name, pty or tcp://host:port")
	flagset.IntVar(&flags.Baud, "baud", variable.DefaultBaud, "serial baud rate")
	flagset.StringVar(&flags.IP, "ip", "", "local IPv4 address")
	flagset.StringVar(&flags.Peer, "peer", "", "remote IPv4 address")
	flagset.IntVar(&flags.MTU, "mtu", 0, fmt.Sprintf("interface MTU (default %s %d, %s %d, %s %d)",
		protocol.FramingSLIP, protocol.DefaultMTU(protocol.FramingSLIP),
		protocol.FramingFragment, protocol.DefaultMTU(protocol.FramingFragment),
		protocol.FramingLength, protocol.DefaultMTU(protocol.FramingLength)))
	flagset.IntVar(&flags.FrameSize, "frame-size", 0, "largest radio frame of the fragment framing (default mtu)")
	flagset.StringVar(&flags.Framing, "framing", protocol.FramingSLIP, "slip, fragment or length")
	flagset.StringVar(&flags.VNI, "vni", vni.BackendAuto, "virtual interface backend: auto, tun, utun, wintun or tap")
	flagset.StringVar(&flags.IfName, "ifname", "", "interface name (default "+variable.DefaultLinuxIfName+" on linux, "+variable.DefaultWindowsIfName+" on windows)")
	flagset.StringVar(&flags.TAPGUID, "tap-guid", "", "TAP adapter GUID, discovered when empty")
	flagset.BoolVar(&flags.NoConfigure, "no-configure", false, "do not assign the address and route")
	flagset.StringVar(&flags.Metrics, "metrics", "", "listen address of the Prometheus /metrics endpoint")
	flagset.BoolVar(&flags.Debug, "debug", false, "debug logging")
	flagset.BoolVar(&flags.Trace, "trace", false, "log every packet crossing the bridge")
	flagset.Parse(args)

	cfg := &flags
	if configPath != "" {
		fileCfg, err := loratun.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		var given []string
		flagset.Visit(func(f *flag.Flag) {
			if f.Name != "config" {
				given = append(given, f.Name)
			}
		})
		if err := fileCfg.Override(&flags, given...); err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *loratun.Config) int {
	tools.SetupLogging(cfg.Debug || cfg.Trace)
	variable.EnableTraceLog = cfg.Trace

	pterm.Info.Println(fmt.Sprintf("loratun %s <-> %s over %s, %s framing, mtu %d",
		cfg.IP, cfg.Peer, cfg.Port, cfg.Framing, cfg.MTU))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics != "" {
		addr, err := stats.Serve(ctx, cfg.Metrics, stats.Global)
		if err != nil {
			pterm.Error.Println(err.Error())
			return 1
		}
		pterm.Info.Println("metrics at " + metricsURL(addr))
	}
	stats.StartReporter(ctx, stats.Global, variable.StatsInterval)

	o := loratun.New(cfg, stats.Global)
	if err := o.Open(ctx); err != nil {
		pterm.Error.Println(err.Error())
		if errors.Is(err, loratun.ErrNotPrivileged) {
			pterm.Info.Println("run loratun as root or administrator")
		}
		return 1
	}
	if err := o.Run(ctx); err != nil {
		pterm.Error.Println(err.Error())
		return 1
	}
	logrus.Info("shutdown complete")
	return 0
}

// metricsURL - scrape URL of the metrics listener, an unspecified host shows as localhost
func metricsURL(addr net.Addr) string {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return "http://" + addr.String() + "/metrics"
	}
	host := "localhost"
	if len(tcpAddr.IP) > 0 && !tcpAddr.IP.IsUnspecified() {
		host = tcpAddr.IP.String()
	}
	return "http://" + tools.ToAddressString(host, uint16(tcpAddr.Port)) + "/metrics"
}

func listPorts() {
	ports, err := link.Ports()
	tools.LogAndExitIfErr(err)
	if len(ports) == 0 {
		pterm.Warning.Println("no serial ports found")
		return
	}
	data := pterm.TableData{{"PORT"}}
	for _, p := range ports {
		data = append(data, []string{p})
	}
	tools.LogAndExitIfErr(pterm.DefaultTable.WithHasHeader().WithData(data).Render())
}

func writeConfig(args []string) {
	var output string
	flagset := newFlagSet(subcommandKeyConfig, "Print an example config file, or create it at -o when missing")
	flagset.StringVar(&output, "o", "", "path of the config file to create")
	flagset.Parse(args)
	if output == "" {
		os.Stdout.Write(loratun.ExampleConfig())
		return
	}
	_, err := tools.ReadOrCreateFile(output, loratun.ExampleConfig)
	tools.LogAndExitIfErr(err)
	pterm.Success.Println("config at " + output)
}

func helpAndExit(isErr bool) {
	stdOutOrErr := os.Stdout
	if isErr {
		stdOutOrErr = os.Stderr
	}
	fmt.Fprintf(stdOutOrErr, "Bridge IPv4 between two hosts over LoRa serial radios\nUsage of %s [run] [flags] | ports | config\n  -help\n         output this help\n", os.Args[0])
	if isErr {
		os.Exit(2)
	}
}

func main() {
	if len(os.Args) < 2 {
		helpAndExit(true)
	}
	subcommand, args := subcommandKeyRun, os.Args[1:]
	if !strings.HasPrefix(args[0], "-") {
		subcommand, args = args[0], args[1:]
	}
	switch subcommand {
	case subcommandKeyRun:
		cfg, err := parseRunArgs(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(2)
		}
		os.Exit(run(cfg))
	case subcommandKeyPorts:
		listPorts()
	case subcommandKeyConfig:
		writeConfig(args)
	case subcommandKeyHelp:
		helpAndExit(false)
	default:
		helpAndExit(true)
	}
}
