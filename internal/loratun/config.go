package loratun

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/rectcircle/loratun/internal/loratun/protocol"
	"github.com/rectcircle/loratun/internal/loratun/vni"
	"github.com/rectcircle/loratun/internal/variable"
	"gopkg.in/yaml.v3"
)

// Config - everything needed to bring the bridge up. Keys mirror the command line flags.
type Config struct {
	Port        string `yaml:"port"`
	Baud        int    `yaml:"baud"`
	IP          string `yaml:"ip"`
	Peer        string `yaml:"peer"`
	MTU         int    `yaml:"mtu"`
	FrameSize   int    `yaml:"frame_size"`
	Framing     string `yaml:"framing"`
	VNI         string `yaml:"vni"`
	IfName      string `yaml:"ifname"`
	TAPGUID     string `yaml:"tap_guid"`
	NoConfigure bool   `yaml:"no_configure"`
	Metrics     string `yaml:"metrics"`
	Debug       bool   `yaml:"debug"`
	Trace       bool   `yaml:"trace"`
}

// LoadConfig - decode the YAML file at path. Unknown keys are an error.
func LoadConfig(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(content)
}

// ParseConfig - decode YAML content, an empty document is an empty config
func ParseConfig(content []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// configKeys - copy one key from src to dst
var configKeys = map[string]func(dst, src *Config){
	"port":         func(dst, src *Config) { dst.Port = src.Port },
	"baud":         func(dst, src *Config) { dst.Baud = src.Baud },
	"ip":           func(dst, src *Config) { dst.IP = src.IP },
	"peer":         func(dst, src *Config) { dst.Peer = src.Peer },
	"mtu":          func(dst, src *Config) { dst.MTU = src.MTU },
	"frame_size":   func(dst, src *Config) { dst.FrameSize = src.FrameSize },
	"framing":      func(dst, src *Config) { dst.Framing = src.Framing },
	"vni":          func(dst, src *Config) { dst.VNI = src.VNI },
	"ifname":       func(dst, src *Config) { dst.IfName = src.IfName },
	"tap_guid":     func(dst, src *Config) { dst.TAPGUID = src.TAPGUID },
	"no_configure": func(dst, src *Config) { dst.NoConfigure = src.NoConfigure },
	"metrics":      func(dst, src *Config) { dst.Metrics = src.Metrics },
	"debug":        func(dst, src *Config) { dst.Debug = src.Debug },
	"trace":        func(dst, src *Config) { dst.Trace = src.Trace },
}

// Override - take the value of every listed key from o. Flag names are
// accepted too: frame-size is the same key as frame_size.
func (c *Config) Override(o *Config, keys ...string) error {
	for _, key := range keys {
		set, ok := configKeys[strings.ReplaceAll(key, "-", "_")]
		if !ok {
			return fmt.Errorf("unknown config key %q", key)
		}
		set(c, o)
	}
	return nil
}

// ApplyDefaults - fill every zero value that has a default. The MTU default
// depends on the framing, the frame size defaults to the MTU.
func (c *Config) ApplyDefaults() {
	if c.Baud == 0 {
		c.Baud = variable.DefaultBaud
	}
	if c.Framing == "" {
		c.Framing = protocol.FramingSLIP
	}
	if c.VNI == "" {
		c.VNI = vni.BackendAuto
	}
	if c.MTU == 0 {
		c.MTU = protocol.DefaultMTU(c.Framing)
	}
	if c.FrameSize == 0 {
		c.FrameSize = c.MTU
	}
}

// Validate - required keys present, addresses IPv4, framing and backend known
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.IP == "" {
		errs = append(errs, errors.New("ip is required"))
	}
	if c.Peer == "" {
		errs = append(errs, errors.New("peer is required"))
	}
	if c.Baud < 0 {
		errs = append(errs, fmt.Errorf("invalid baud rate %d", c.Baud))
	}
	if _, err := c.NewFramer(); err != nil {
		errs = append(errs, err)
	}
	switch c.VNI {
	case vni.BackendAuto, vni.BackendTUN, vni.BackendUTUN, vni.BackendWintun, vni.BackendTAP:
	default:
		errs = append(errs, fmt.Errorf("unknown vni backend %q", c.VNI))
	}
	if c.IP != "" && c.Peer != "" {
		if err := c.VNIConfig().Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Metrics != "" {
		if _, _, err := net.SplitHostPort(c.Metrics); err != nil {
			errs = append(errs, fmt.Errorf("metrics address: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// NewFramer - framer selected by the framing key
func (c *Config) NewFramer() (protocol.Framer, error) {
	return protocol.NewFramer(c.Framing, c.MTU, c.FrameSize)
}

// VNIConfig - backend parameters of the virtual interface
func (c *Config) VNIConfig() *vni.Config {
	return &vni.Config{
		Backend: c.VNI,
		Name:    c.IfName,
		TAPGUID: c.TAPGUID,
		LocalIP: net.ParseIP(c.IP),
		PeerIP:  net.ParseIP(c.Peer),
		MTU:     c.MTU,
	}
}

// ExampleConfig - commented config file written by `loratun config`
func ExampleConfig() []byte {
	return []byte(fmt.Sprintf(`# loratun configuration, command line flags override these keys

# serial device path, COM name, "pty" or tcp://host:port
port: /dev/ttyUSB0
baud: %d

# point-to-point addresses of this end and the other end
ip: 10.0.0.1
peer: 10.0.0.2

# slip, fragment or length. Both ends must agree.
framing: %s
# interface MTU, 0 picks the framing default
mtu: 0
# largest radio frame of the fragment framing, 0 means the MTU
frame_size: 0

# auto, tun, utun, wintun or tap
vni: %s
ifname: ""
tap_guid: ""
no_configure: false

# listen address of the Prometheus /metrics endpoint, empty disables it
metrics: ""
debug: false
trace: false
`, variable.DefaultBaud, protocol.FramingSLIP, vni.BackendAuto))
}
