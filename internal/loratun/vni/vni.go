// Package vni provides the virtual network interface the bridge reads IP
// packets from and writes them to. Each platform has its own backend:
//
//	tun     Linux /dev/net/tun
//	utun    macOS utun control socket
//	wintun  Windows Wintun driver
//	tap     Windows TAP-Windows6 adapter in TUN mode
//
// Every device handed out by Open only carries IPv4 packets.
package vni

import (
	"errors"
	"fmt"
	"net"
	"runtime"

	"github.com/rectcircle/loratun/internal/loratun/stats"
)

// Backend names
const (
	BackendAuto   = "auto"
	BackendTUN    = "tun"
	BackendUTUN   = "utun"
	BackendWintun = "wintun"
	BackendTAP    = "tap"
)

var (
	// ErrUnsupported - backend does not exist on this platform
	ErrUnsupported = errors.New("virtual interface backend not supported on this platform")
	// ErrClosed - device was closed
	ErrClosed = errors.New("virtual interface closed")
)

// Device - packet-level virtual network interface
type Device interface {
	// Name - interface name as the OS knows it
	Name() string
	// ReadPacket - next packet, or (nil, nil) when none arrived within a bounded time
	ReadPacket() ([]byte, error)
	// WritePacket - inject one packet into the host stack
	WritePacket(packet []byte) error
	Close() error
}

// Config - what the backend needs to create and address the interface
type Config struct {
	// Backend - one of the Backend* names
	Backend string
	// Name - requested interface name, backend default when empty
	Name string
	// TAPGUID - TAP adapter instance id, discovered when empty
	TAPGUID string
	// LocalIP - address of this end
	LocalIP net.IP
	// PeerIP - address of the other end of the point-to-point link
	PeerIP net.IP
	// MTU - interface MTU
	MTU int
}

// Validate - addresses must be IPv4, MTU positive
func (c *Config) Validate() error {
	if c.LocalIP.To4() == nil {
		return fmt.Errorf("local ip %v is not IPv4", c.LocalIP)
	}
	if c.PeerIP.To4() == nil {
		return fmt.Errorf("peer ip %v is not IPv4", c.PeerIP)
	}
	if c.LocalIP.Equal(c.PeerIP) {
		return fmt.Errorf("local and peer ip are both %v", c.LocalIP)
	}
	if c.MTU <= 0 {
		return fmt.Errorf("invalid mtu %d", c.MTU)
	}
	return nil
}

// DefaultBackend - backend picked for auto on this platform
func DefaultBackend() string {
	switch runtime.GOOS {
	case "linux":
		return BackendTUN
	case "darwin":
		return BackendUTUN
	case "windows":
		return BackendWintun
	}
	return ""
}

// Open - create the interface selected by cfg.Backend, wrapped by IPv4Only counting on s
func Open(cfg *Config, s *stats.Stats) (Device, error) {
	backend := cfg.Backend
	if backend == "" || backend == BackendAuto {
		backend = DefaultBackend()
	}
	var (
		dev Device
		err error
	)
	switch backend {
	case BackendTUN:
		dev, err = openTUN(cfg)
	case BackendUTUN:
		dev, err = openUTUN(cfg)
	case BackendWintun:
		dev, err = openWintun(cfg)
	case BackendTAP:
		dev, err = openTAP(cfg)
	default:
		return nil, fmt.Errorf("unknown backend %q: %w", cfg.Backend, ErrUnsupported)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s interface: %w", backend, err)
	}
	return IPv4Only(dev, s), nil
}

// IsIPv4 - first nibble of packet is 4
func IsIPv4(packet []byte) bool {
	return len(packet) > 0 && packet[0]>>4 == 4
}

// IPv4Only - drop every packet that is not IPv4, in both directions.
// Dropped reads surface as "no packet"; dropped writes succeed silently.
func IPv4Only(dev Device, s *stats.Stats) Device {
	if f, ok := dev.(*ipv4Filter); ok {
		return f
	}
	return &ipv4Filter{Device: dev, stats: s}
}

type ipv4Filter struct {
	Device
	stats *stats.Stats
}

func (f *ipv4Filter) ReadPacket() ([]byte, error) {
	packet, err := f.Device.ReadPacket()
	if err != nil || packet == nil {
		return packet, err
	}
	if !IsIPv4(packet) {
		f.stats.Drop(stats.ReasonNotIPv4)
		return nil, nil
	}
	return packet, nil
}

func (f *ipv4Filter) WritePacket(packet []byte) error {
	if !IsIPv4(packet) {
		f.stats.Drop(stats.ReasonNotIPv4)
		return nil
	}
	return f.Device.WritePacket(packet)
}
