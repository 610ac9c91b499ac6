//go:build !windows

package link

import (
	"fmt"
	"os"

	"github.com/creack/pty"
	"github.com/rectcircle/loratun/internal/variable"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// PTYLink - master side of a pseudo-terminal. A peer process (radiosim, a
// second loratun, minicom) opens PeerName as if it were the radio.
type PTYLink struct {
	master *os.File
	peer   *os.File
	reader *timeoutReader
}

// OpenPTY - allocate a pseudo-terminal pair in raw mode
func OpenPTY() (*PTYLink, error) {
	master, peer, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("open pty: %w", err)
	}
	// no echo, no line discipline: both sides carry binary frames
	for _, f := range []*os.File{master, peer} {
		if _, err := term.MakeRaw(int(f.Fd())); err != nil {
			master.Close()
			peer.Close()
			return nil, fmt.Errorf("set pty raw mode: %w", err)
		}
	}
	l := &PTYLink{
		master: master,
		peer:   peer,
		reader: newTimeoutReader(master, variable.SerialReadTimeout, variable.SerialReadChunk),
	}
	logrus.WithField("peer", peer.Name()).Info("pty link ready, attach the other end to the peer path")
	return l, nil
}

// Name - Name
func (l *PTYLink) Name() string { return l.master.Name() }

// PeerName - path of the terminal side
func (l *PTYLink) PeerName() string { return l.peer.Name() }

func (l *PTYLink) Read(p []byte) (int, error) { return l.reader.Read(p) }

func (l *PTYLink) Write(p []byte) (int, error) { return l.master.Write(p) }

// Close - close both sides. The reader goroutine exits on the resulting error.
func (l *PTYLink) Close() error {
	l.reader.stop()
	err := l.master.Close()
	if perr := l.peer.Close(); err == nil {
		err = perr
	}
	return err
}
