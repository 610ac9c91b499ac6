package link

import (
	"errors"
)

// PTYLink - pseudo-terminals do not exist on Windows
type PTYLink struct{}

// OpenPTY - always fails on Windows, use a COM port or tcp://
func OpenPTY() (*PTYLink, error) {
	return nil, errors.New("pty links are not supported on windows")
}

func (*PTYLink) Name() string                { return PortPTY }
func (*PTYLink) PeerName() string            { return "" }
func (*PTYLink) Read(p []byte) (int, error)  { return 0, ErrDisconnected }
func (*PTYLink) Write(p []byte) (int, error) { return 0, ErrDisconnected }
func (*PTYLink) Close() error                { return nil }
