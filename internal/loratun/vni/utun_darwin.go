package vni

import (
	"fmt"
	"os"

	"github.com/rectcircle/loratun/internal/variable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	utunControlName = "com.apple.net.utun_control"
	sysprotoControl = 2 // SYSPROTO_CONTROL
	utunOptIfName   = 2 // UTUN_OPT_IFNAME
)

type utunDevice struct {
	name   string
	file   *os.File
	reader *packetReader
}

func openUTUN(cfg *Config) (Device, error) {
	unit, err := utunUnit(cfg.Name)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_SYSTEM, unix.SOCK_DGRAM, sysprotoControl)
	if err != nil {
		return nil, fmt.Errorf("utun control socket: %w", err)
	}
	info := &unix.CtlInfo{}
	fillName(info.Name[:], utunControlName)
	if err := unix.IoctlCtlInfo(fd, info); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("CTLIOCGINFO: %w", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrCtl{ID: info.Id, Unit: unit}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("connect utun control (unit %d): %w", unit, err)
	}
	name, err := unix.GetsockoptString(fd, sysprotoControl, utunOptIfName)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("UTUN_OPT_IFNAME: %w", err)
	}
	// non-blocking so the runtime poller handles read deadlines
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set nonblock: %w", err)
	}
	file := os.NewFile(uintptr(fd), name)
	logrus.WithField("ifname", name).Info("utun interface created")
	return &utunDevice{
		name:   name,
		file:   file,
		reader: newPacketReader(fileReader(file, variable.DeviceReadBuffer+utunHeaderSize, variable.DeviceReadTimeout), variable.DeviceReadTimeout),
	}, nil
}

func fillName[T ~byte | ~int8](dst []T, s string) {
	for i := 0; i < len(s) && i < len(dst); i++ {
		dst[i] = T(s[i])
	}
}

func (d *utunDevice) Name() string { return d.name }

func (d *utunDevice) ReadPacket() ([]byte, error) {
	data, err := d.reader.ReadPacket()
	if err != nil || data == nil {
		return nil, err
	}
	return utunUnwrap(data), nil
}

func (d *utunDevice) WritePacket(packet []byte) error {
	_, err := d.file.Write(utunWrap(packet))
	return err
}

func (d *utunDevice) Close() error {
	d.reader.stop()
	return d.file.Close()
}
