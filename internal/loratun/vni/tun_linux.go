package vni

import (
	"github.com/rectcircle/loratun/internal/variable"
	"github.com/sirupsen/logrus"
	"github.com/songgao/water"
)

type tunDevice struct {
	ifce   *water.Interface
	reader *packetReader
}

func openTUN(cfg *Config) (Device, error) {
	name := cfg.Name
	if name == "" {
		name = variable.DefaultLinuxIfName
	}
	wcfg := water.Config{DeviceType: water.TUN}
	wcfg.Name = name
	ifce, err := water.New(wcfg)
	if err != nil {
		return nil, err
	}
	logrus.WithField("ifname", ifce.Name()).Info("tun interface created")
	return &tunDevice{
		ifce:   ifce,
		reader: newPacketReader(fileReader(ifce.ReadWriteCloser, variable.DeviceReadBuffer, variable.DeviceReadTimeout), variable.DeviceReadTimeout),
	}, nil
}

func (d *tunDevice) Name() string { return d.ifce.Name() }

func (d *tunDevice) ReadPacket() ([]byte, error) { return d.reader.ReadPacket() }

func (d *tunDevice) WritePacket(packet []byte) error {
	_, err := d.ifce.Write(packet)
	return err
}

func (d *tunDevice) Close() error {
	d.reader.stop()
	return d.ifce.Close()
}
