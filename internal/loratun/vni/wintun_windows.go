package vni

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rectcircle/loratun/internal/variable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
	"golang.zx2c4.com/wintun"
)

type wintunDevice struct {
	name    string
	adapter *wintun.Adapter
	session wintun.Session
	readEv  windows.Handle
	mu      sync.Mutex
	closed  bool
}

func openWintun(cfg *Config) (Device, error) {
	name := cfg.Name
	if name == "" {
		name = variable.DefaultWindowsIfName
	}
	adapter, err := wintun.CreateAdapter(name, variable.DefaultTunnelType, nil)
	if err != nil {
		return nil, fmt.Errorf("create wintun adapter %s (is wintun.dll next to the binary?): %w", name, err)
	}
	session, err := adapter.StartSession(variable.WintunRingCapacity)
	if err != nil {
		adapter.Close()
		return nil, fmt.Errorf("start wintun session: %w", err)
	}
	logrus.WithFields(logrus.Fields{"ifname": name, "luid": adapter.LUID()}).Info("wintun adapter created")
	return &wintunDevice{
		name:    name,
		adapter: adapter,
		session: session,
		readEv:  session.ReadWaitEvent(),
	}, nil
}

func (d *wintunDevice) Name() string { return d.name }

func (d *wintunDevice) ReadPacket() ([]byte, error) {
	for attempt := 0; attempt < 2; attempt++ {
		packet, err := d.session.ReceivePacket()
		switch {
		case err == nil:
			out := make([]byte, len(packet))
			copy(out, packet)
			d.session.ReleaseReceivePacket(packet)
			return out, nil
		case errors.Is(err, windows.ERROR_NO_MORE_ITEMS):
			if attempt == 0 {
				windows.WaitForSingleObject(d.readEv, uint32(variable.DeviceReadTimeout.Milliseconds()))
			}
		case errors.Is(err, windows.ERROR_HANDLE_EOF):
			return nil, ErrClosed
		default:
			return nil, err
		}
	}
	return nil, nil
}

func (d *wintunDevice) WritePacket(packet []byte) error {
	buf, err := d.session.AllocateSendPacket(len(packet))
	if err != nil {
		if errors.Is(err, windows.ERROR_HANDLE_EOF) {
			return ErrClosed
		}
		return err
	}
	copy(buf, packet)
	d.session.SendPacket(buf)
	return nil
}

func (d *wintunDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.session.End()
	return d.adapter.Close()
}
