package vni

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rectcircle/loratun/internal/variable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
)

// TAP-Windows6 control codes, CTL_CODE(FILE_DEVICE_UNKNOWN, n, METHOD_BUFFERED, FILE_ANY_ACCESS)
const (
	tapIoctlSetMediaStatus = 0x00220018
	tapIoctlConfigTUN      = 0x00220028
)

type tapDevice struct {
	name   string
	handle windows.Handle
	closed atomic.Bool

	// read side, owned by the outbound pump
	rov         windows.Overlapped
	rbuf        []byte
	readPending bool

	// write side, owned by the inbound pump
	wmu sync.Mutex
	wov windows.Overlapped
}

func openTAP(cfg *Config) (Device, error) {
	name, guid := cfg.Name, cfg.TAPGUID
	if guid == "" {
		ctx, cancel := context.WithTimeout(context.Background(), variable.CommandTimeout)
		defer cancel()
		var err error
		name, guid, err = DiscoverTAP(ctx)
		if err != nil {
			return nil, err
		}
		logrus.WithFields(logrus.Fields{"ifname": name, "guid": guid}).Info("tap adapter discovered")
	}

	if name == "" {
		name = variable.DefaultWindowsIfName
	}

	handle, err := openTAPHandle(guid)
	if err != nil {
		return nil, err
	}
	d := &tapDevice{
		name:   name,
		handle: handle,
		rbuf:   make([]byte, variable.DeviceReadBuffer),
	}
	if d.rov.HEvent, err = windows.CreateEvent(nil, 1, 0, nil); err != nil {
		windows.CloseHandle(handle)
		return nil, fmt.Errorf("create read event: %w", err)
	}
	if d.wov.HEvent, err = windows.CreateEvent(nil, 1, 0, nil); err != nil {
		windows.CloseHandle(d.rov.HEvent)
		windows.CloseHandle(handle)
		return nil, fmt.Errorf("create write event: %w", err)
	}

	connected := make([]byte, 4)
	binary.LittleEndian.PutUint32(connected, 1)
	if err := d.ioctl(tapIoctlSetMediaStatus, connected); err != nil {
		logrus.WithError(err).Warn("TAP set media status failed, continuing")
	}
	if err := d.ioctl(tapIoctlConfigTUN, configTUNRequest(cfg)); err != nil {
		logrus.WithError(err).Warn("TAP tun mode failed, the adapter may exchange ethernet frames")
	}
	return d, nil
}

func openTAPHandle(guid string) (windows.Handle, error) {
	var lastErr error
	for _, path := range tapPaths(guid) {
		p, err := windows.UTF16PtrFromString(path)
		if err != nil {
			return windows.InvalidHandle, err
		}
		h, err := windows.CreateFile(p,
			windows.GENERIC_READ|windows.GENERIC_WRITE,
			0, nil, windows.OPEN_EXISTING,
			windows.FILE_ATTRIBUTE_SYSTEM|windows.FILE_FLAG_OVERLAPPED, 0)
		if err == nil {
			logrus.WithField("path", path).Info("tap device opened")
			return h, nil
		}
		logrus.WithError(err).WithField("path", path).Debug("open tap device")
		lastErr = err
	}
	return windows.InvalidHandle, fmt.Errorf("tap device %s not found (check GUID and privileges): %w", guid, lastErr)
}

func (d *tapDevice) ioctl(code uint32, in []byte) error {
	var ov windows.Overlapped
	ev, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return err
	}
	defer windows.CloseHandle(ev)
	ov.HEvent = ev
	out := make([]byte, len(in))
	var n uint32
	err = windows.DeviceIoControl(d.handle, code, &in[0], uint32(len(in)), &out[0], uint32(len(out)), &n, &ov)
	if errors.Is(err, windows.ERROR_IO_PENDING) {
		err = windows.GetOverlappedResult(d.handle, &ov, &n, true)
	}
	return err
}

func (d *tapDevice) Name() string { return d.name }

// ReadPacket - a read still pending when the wait expires stays pending for the next call
func (d *tapDevice) ReadPacket() ([]byte, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	var n uint32
	if !d.readPending {
		windows.ResetEvent(d.rov.HEvent)
		err := windows.ReadFile(d.handle, d.rbuf, &n, &d.rov)
		switch {
		case err == nil:
			return d.copyRead(n), nil
		case errors.Is(err, windows.ERROR_IO_PENDING):
			d.readPending = true
		default:
			return nil, err
		}
	}
	event, err := windows.WaitForSingleObject(d.rov.HEvent, uint32(variable.DeviceReadTimeout.Milliseconds()))
	if event == windows.WAIT_FAILED {
		return nil, err
	}
	if event != windows.WAIT_OBJECT_0 {
		return nil, nil
	}
	d.readPending = false
	if err := windows.GetOverlappedResult(d.handle, &d.rov, &n, false); err != nil {
		return nil, err
	}
	return d.copyRead(n), nil
}

func (d *tapDevice) copyRead(n uint32) []byte {
	if n == 0 {
		return nil
	}
	packet := make([]byte, n)
	copy(packet, d.rbuf[:n])
	return packet
}

func (d *tapDevice) WritePacket(packet []byte) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.wmu.Lock()
	defer d.wmu.Unlock()
	windows.ResetEvent(d.wov.HEvent)
	var n uint32
	err := windows.WriteFile(d.handle, packet, &n, &d.wov)
	if errors.Is(err, windows.ERROR_IO_PENDING) {
		err = windows.GetOverlappedResult(d.handle, &d.wov, &n, true)
	}
	return err
}

func (d *tapDevice) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	windows.CancelIoEx(d.handle, nil)
	err := windows.CloseHandle(d.handle)
	windows.CloseHandle(d.rov.HEvent)
	d.wmu.Lock()
	windows.CloseHandle(d.wov.HEvent)
	d.wmu.Unlock()
	return err
}
