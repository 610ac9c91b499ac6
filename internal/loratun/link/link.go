// Package link opens the byte stream to the LoRa radio: a serial port, a
// pseudo-terminal for local testing, or a TCP socket to a serial server.
//
// Read on every Link returns within a bounded time. (0, nil) means nothing
// arrived before the timeout and the caller should check for shutdown and
// read again.
package link

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"

	"go.bug.st/serial"
)

// Link - bidirectional byte stream to the radio
type Link interface {
	io.ReadWriteCloser
	// Name - port name for logs
	Name() string
}

// PortPTY - --port value that opens a pseudo-terminal instead of a device
const PortPTY = "pty"

// tcpScheme - --port prefix of a raw TCP serial server
const tcpScheme = "tcp://"

// ErrDisconnected - the radio went away; the bridge stops
var ErrDisconnected = errors.New("serial link disconnected")

// Open - open port at baud. port is a device path, a COM name, "pty" or tcp://host:port.
func Open(port string, baud int) (Link, error) {
	var (
		l   Link
		err error
	)
	switch {
	case port == "":
		return nil, errors.New("no serial port given")
	case port == PortPTY:
		l, err = asLink(OpenPTY())
	case strings.HasPrefix(port, tcpScheme):
		l, err = asLink(DialTCP(strings.TrimPrefix(port, tcpScheme)))
	case baud <= 0:
		return nil, fmt.Errorf("invalid baud rate %d", baud)
	default:
		l, err = asLink(OpenSerial(port, baud))
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// asLink - keep a nil concrete pointer from becoming a non-nil Link
func asLink[T Link](l T, err error) (Link, error) {
	if err != nil {
		return nil, err
	}
	return l, nil
}

// IsDisconnect - err means the link is gone for good, as opposed to a transient failure
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDisconnected) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortClosed, serial.PortNotFound:
			return true
		}
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EIO, syscall.ENXIO, syscall.ENODEV, syscall.ECONNRESET, syscall.EPIPE, syscall.EBADF:
			return true
		}
	}
	return false
}
