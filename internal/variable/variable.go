package variable

import "time"

var (
	// EnableTraceLog - log a one-line summary of every packet crossing the bridge
	EnableTraceLog = false

	// DefaultBaud - serial baud rate when none is configured
	DefaultBaud = 115200
	// DefaultSLIPMTU - interface MTU used with SLIP framing
	DefaultSLIPMTU = 576
	// DefaultFragmentMTU - interface MTU used with fragment framing
	DefaultFragmentMTU = 120
	// DefaultLengthMTU - interface MTU used with length-prefixed framing
	DefaultLengthMTU = 120
	// DefaultLinuxIfName - TUN name template on linux, %d is filled by the kernel
	DefaultLinuxIfName = "lora%d"
	// DefaultWindowsIfName - adapter name on windows
	DefaultWindowsIfName = "LoRaTun"
	// DefaultTunnelType - wintun tunnel type shown in the adapter description
	DefaultTunnelType = "LoRa"

	// SerialReadTimeout - bound of a single read on the serial transport
	SerialReadTimeout = 100 * time.Millisecond
	// SerialReadChunk - max bytes taken from the serial transport per read
	SerialReadChunk = 256
	// DeviceReadTimeout - bound of a single read on the virtual interface
	DeviceReadTimeout = 100 * time.Millisecond
	// DeviceReadBuffer - read buffer for one packet from the virtual interface
	DeviceReadBuffer = 4096
	// IdleInterval - pause when the virtual interface had nothing to read
	IdleInterval = time.Millisecond
	// WriteBackoff - pause before retrying a failed transient write or read
	WriteBackoff = 100 * time.Millisecond
	// ReassemblyTimeout - an incomplete fragment group older than this is discarded
	ReassemblyTimeout = 10 * time.Second
	// WintunRingCapacity - wintun session ring buffer size
	WintunRingCapacity = uint32(0x400000)
	// StatsInterval - period of the traffic log reporter
	StatsInterval = 10 * time.Second
	// CommandTimeout - bound of an external configuration command
	CommandTimeout = 10 * time.Second
)
