package link

import (
	"fmt"

	"github.com/rectcircle/loratun/internal/variable"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// SerialLink - physical or USB serial port, 8N1
type SerialLink struct {
	serial.Port
	name string
}

// OpenSerial - open name at baud with a bounded read timeout and empty buffers
func OpenSerial(name string, baud int) (*SerialLink, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	if err := port.SetReadTimeout(variable.SerialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	// stale bytes from a previous session would only desync the decoder
	if err := port.ResetInputBuffer(); err != nil {
		logrus.WithError(err).WithField("port", name).Warn("reset input buffer")
	}
	if err := port.ResetOutputBuffer(); err != nil {
		logrus.WithError(err).WithField("port", name).Warn("reset output buffer")
	}
	logrus.WithFields(logrus.Fields{"port": name, "baud": baud}).Info("serial port opened")
	return &SerialLink{Port: port, name: name}, nil
}

// Name - Name
func (l *SerialLink) Name() string { return l.name }

// Ports - serial ports present on this host
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
