package vni

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/rectcircle/loratun/tools"
	"github.com/sirupsen/logrus"
)

// command - one external configuration step
type command struct {
	args []string
	// ignore - output fragment that marks an acceptable failure
	ignore string
	// optional - failure is only a warning
	optional bool
}

func (c command) String() string { return strings.Join(c.args, " ") }

// Configure - assign the point-to-point address, MTU and peer route to ifname
func Configure(ctx context.Context, ifname string, cfg *Config) error {
	cmds, err := configureCommands(runtime.GOOS, ifname, cfg)
	if err != nil {
		return err
	}
	return runCommands(ctx, cmds)
}

func runCommands(ctx context.Context, cmds []command) error {
	for _, c := range cmds {
		out, err := tools.RunCommand(ctx, c.args[0], c.args[1:]...)
		if err == nil {
			continue
		}
		if c.ignore != "" && strings.Contains(out, c.ignore) {
			logrus.WithField("cmd", c.String()).Debug("already configured")
			continue
		}
		if c.optional {
			logrus.WithError(err).WithField("cmd", c.String()).Warn("interface configuration step failed, configure it manually if needed")
			continue
		}
		return fmt.Errorf("configure interface: %s: %w", c, err)
	}
	return nil
}

func configureCommands(goos, ifname string, cfg *Config) ([]command, error) {
	local, peer, mtu := cfg.LocalIP.String(), cfg.PeerIP.String(), strconv.Itoa(cfg.MTU)
	switch goos {
	case "linux":
		return []command{
			{args: []string{"ip", "addr", "add", local + "/32", "peer", peer, "dev", ifname}, ignore: "File exists"},
			{args: []string{"ip", "link", "set", "dev", ifname, "mtu", mtu, "up"}},
			{args: []string{"ip", "route", "add", peer, "dev", ifname}, ignore: "File exists"},
		}, nil
	case "darwin":
		return []command{
			{args: []string{"ifconfig", ifname, "inet", local, peer, "netmask", "255.255.255.255", "mtu", mtu, "up"}},
			{args: []string{"route", "-n", "add", "-host", peer, "-iface", ifname}, ignore: "File exists"},
		}, nil
	case "windows":
		return []command{
			{args: []string{"powershell", "-NoProfile", "-NonInteractive", "-Command", fmt.Sprintf(
				"New-NetIPAddress -InterfaceAlias '%s' -IPAddress %s -PrefixLength 32 -ErrorAction Stop", ifname, local)},
				optional: true},
			{args: []string{"powershell", "-NoProfile", "-NonInteractive", "-Command", fmt.Sprintf(
				"New-NetRoute -InterfaceAlias '%s' -DestinationPrefix %s/32 -ErrorAction Stop", ifname, peer)},
				optional: true},
			{args: []string{"netsh", "interface", "ipv4", "set", "subinterface", ifname, "mtu=" + mtu, "store=active"},
				optional: true},
		}, nil
	}
	return nil, fmt.Errorf("interface configuration on %s: %w", goos, ErrUnsupported)
}
