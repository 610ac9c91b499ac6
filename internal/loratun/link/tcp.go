package link

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rectcircle/loratun/internal/variable"
	"github.com/sirupsen/logrus"
)

// TCPLink - raw byte stream to a serial server (ser2net, a radio bridge box)
type TCPLink struct {
	conn net.Conn
}

// DialTCP - connect to addr (host:port)
func DialTCP(addr string) (*TCPLink, error) {
	conn, err := net.DialTimeout("tcp", addr, variable.CommandTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial serial server %s: %w", addr, err)
	}
	logrus.WithField("addr", addr).Info("tcp link connected")
	return NewTCPLink(conn), nil
}

// NewTCPLink - wrap an established connection
func NewTCPLink(conn net.Conn) *TCPLink {
	return &TCPLink{conn: conn}
}

// Name - Name
func (l *TCPLink) Name() string { return tcpScheme + l.conn.RemoteAddr().String() }

// Read - (0, nil) when the read deadline passes without data
func (l *TCPLink) Read(p []byte) (int, error) {
	if err := l.conn.SetReadDeadline(time.Now().Add(variable.SerialReadTimeout)); err != nil {
		return 0, err
	}
	n, err := l.conn.Read(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return n, nil
	}
	return n, err
}

func (l *TCPLink) Write(p []byte) (int, error) { return l.conn.Write(p) }

func (l *TCPLink) Close() error { return l.conn.Close() }
