// Package loratun brings up the serial link and the virtual interface and
// runs the bridge between them until shutdown or a fatal link error.
package loratun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rectcircle/loratun/internal/loratun/link"
	"github.com/rectcircle/loratun/internal/loratun/protocol"
	"github.com/rectcircle/loratun/internal/loratun/stats"
	"github.com/rectcircle/loratun/internal/loratun/vni"
	"github.com/sirupsen/logrus"
)

// State - lifecycle of an Orchestrator
type State int

const (
	StateUninitialized State = iota
	StateTransportsOpen
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateTransportsOpen:
		return "transports-open"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrInvalidState - operation not allowed in the current state
	ErrInvalidState = errors.New("invalid state transition")
	// ErrNotPrivileged - the virtual interface needs root or administrator rights
	ErrNotPrivileged = errors.New("insufficient privilege to create the virtual interface")
)

// Orchestrator - owns the link and the device for the lifetime of the process
type Orchestrator struct {
	Config *Config
	Stats  *stats.Stats

	openLink   func(port string, baud int) (link.Link, error)
	openDevice func(cfg *vni.Config, s *stats.Stats) (vni.Device, error)
	configure  func(ctx context.Context, ifname string, cfg *vni.Config) error
	euid       func() int

	mu     sync.Mutex
	state  State
	link   link.Link
	device vni.Device
	framer protocol.Framer
}

// New - orchestrator for cfg counting on s. cfg must have its defaults applied.
func New(cfg *Config, s *stats.Stats) *Orchestrator {
	return &Orchestrator{
		Config:     cfg,
		Stats:      s,
		openLink:   link.Open,
		openDevice: vni.Open,
		configure:  vni.Configure,
		euid:       os.Geteuid,
	}
}

// State - current lifecycle state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Open - open the link, then the virtual interface, then configure its
// address. Whatever was opened is closed again when a later step fails.
func (o *Orchestrator) Open(ctx context.Context) (err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateUninitialized {
		return fmt.Errorf("open in state %s: %w", o.state, ErrInvalidState)
	}
	if err := o.Config.Validate(); err != nil {
		return err
	}
	framer, err := o.Config.NewFramer()
	if err != nil {
		return err
	}

	l, err := o.openLink(o.Config.Port, o.Config.Baud)
	if err != nil {
		return fmt.Errorf("open link %s: %w", o.Config.Port, err)
	}
	defer func() {
		if err != nil {
			l.Close()
		}
	}()

	vcfg := o.Config.VNIConfig()
	dev, err := o.openDevice(vcfg, o.Stats)
	if err != nil {
		return o.privilegeError(err)
	}
	defer func() {
		if err != nil {
			dev.Close()
		}
	}()

	if o.Config.NoConfigure {
		logrus.WithField("ifname", dev.Name()).Info("skipping interface configuration")
	} else if err = o.configure(ctx, dev.Name(), vcfg); err != nil {
		return o.privilegeError(err)
	}

	o.link, o.device, o.framer = l, dev, framer
	o.state = StateTransportsOpen
	logrus.WithFields(logrus.Fields{
		"link":    l.Name(),
		"ifname":  dev.Name(),
		"framing": framer.Name(),
		"mtu":     o.Config.MTU,
		"ip":      o.Config.IP,
		"peer":    o.Config.Peer,
	}).Info("transports open")
	return nil
}

// privilegeError - mark permission failures of a non-root process
func (o *Orchestrator) privilegeError(err error) error {
	if errors.Is(err, os.ErrPermission) && o.euid() > 0 {
		return fmt.Errorf("%w: %w", ErrNotPrivileged, err)
	}
	return err
}

// Run - pump packets until ctx is cancelled or the link goes away, then
// close both transports. A cancelled ctx returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateTransportsOpen {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("run in state %s: %w", state, ErrInvalidState)
	}
	o.state = StateRunning
	bridge := protocol.NewBridge(o.link, o.device, o.framer, o.Stats)
	o.mu.Unlock()

	logrus.Info("bridge running")
	err := bridge.Serve(ctx)
	closeErr := o.Close()
	// the peer tearing down at the same time is part of the shutdown
	if err != nil && ctx.Err() == nil {
		return errors.Join(fmt.Errorf("bridge stopped: %w", err), closeErr)
	}
	logrus.Info("bridge stopped")
	return closeErr
}

// Close - close the link and the device. Safe to call more than once.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateTerminated {
		return nil
	}
	o.state = StateTerminated
	var errs []error
	if o.link != nil {
		if err := o.link.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close link: %w", err))
		}
	}
	if o.device != nil {
		if err := o.device.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close device: %w", err))
		}
	}
	return errors.Join(errs...)
}
