package link

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestIsDisconnect(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("read: %w", io.EOF), true},
		{"closed file", os.ErrClosed, true},
		{"closed conn", net.ErrClosed, true},
		{"closed pipe", io.ErrClosedPipe, true},
		{"disconnected", ErrDisconnected, true},
		{"eio", &os.PathError{Op: "read", Path: "/dev/ttyUSB0", Err: syscall.EIO}, true},
		{"enxio", syscall.ENXIO, true},
		{"enodev", syscall.ENODEV, true},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, true},
		{"port busy", &serial.PortError{}, false},
		{"eagain", syscall.EAGAIN, false},
		{"other", errors.New("framing error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDisconnect(tt.err))
		})
	}
}

func TestOpen_Invalid(t *testing.T) {
	t.Run("empty port", func(t *testing.T) {
		l, err := Open("", 115200)
		assert.Error(t, err)
		assert.Nil(t, l)
	})
	t.Run("bad baud", func(t *testing.T) {
		l, err := Open("/dev/ttyUSB0", 0)
		assert.Error(t, err)
		assert.Nil(t, l)
	})
	t.Run("tcp refused", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		ln.Close()
		l, err := Open("tcp://"+addr, 0)
		assert.Error(t, err)
		assert.Nil(t, l)
	})
}

func TestTCPLink(t *testing.T) {
	a, b := net.Pipe()
	l := NewTCPLink(a)
	defer b.Close()

	t.Run("read times out with no data", func(t *testing.T) {
		start := time.Now()
		n, err := l.Read(make([]byte, 16))
		assert.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("round trip", func(t *testing.T) {
		go b.Write([]byte("ping"))
		buf := make([]byte, 16)
		var n int
		for n == 0 {
			var err error
			n, err = l.Read(buf)
			require.NoError(t, err)
		}
		assert.Equal(t, "ping", string(buf[:n]))

		go l.Write([]byte("pong"))
		n, err := io.ReadFull(b, buf[:4])
		require.NoError(t, err)
		assert.Equal(t, "pong", string(buf[:n]))
	})

	t.Run("close is a disconnect", func(t *testing.T) {
		require.NoError(t, l.Close())
		_, err := l.Read(make([]byte, 1))
		assert.True(t, IsDisconnect(err), "err = %v", err)
	})
}

func TestTimeoutReader(t *testing.T) {
	r, w := io.Pipe()
	tr := newTimeoutReader(r, 20*time.Millisecond, 4)

	n, err := tr.Read(make([]byte, 8))
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	go w.Write([]byte("abcdef"))
	var got []byte
	buf := make([]byte, 3)
	for len(got) < 6 {
		n, err := tr.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, "abcdef", string(got))

	w.CloseWithError(io.EOF)
	for {
		_, err = tr.Read(buf)
		if err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, io.EOF)
	_, err = tr.Read(buf)
	assert.ErrorIs(t, err, io.EOF, "a disconnect stays")
	tr.stop()
	tr.stop()
}

// flakyReader - fails the first read, then yields data
type flakyReader struct {
	calls atomic.Int32
}

func (r *flakyReader) Read(p []byte) (int, error) {
	if r.calls.Add(1) == 1 {
		return 0, errors.New("framing error")
	}
	time.Sleep(time.Millisecond)
	return copy(p, "ok"), nil
}

func TestTimeoutReader_TransientError(t *testing.T) {
	src := &flakyReader{}
	tr := newTimeoutReader(src, 20*time.Millisecond, 4)
	defer tr.stop()

	var err error
	require.Eventually(t, func() bool {
		_, err = tr.Read(make([]byte, 4))
		return err != nil
	}, time.Second, time.Millisecond)
	assert.EqualError(t, err, "framing error")
	assert.False(t, IsDisconnect(err))

	buf := make([]byte, 4)
	var n int
	require.Eventually(t, func() bool {
		n, err = tr.Read(buf)
		return n > 0 || err != nil
	}, time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(buf[:n]))
	assert.Greater(t, src.calls.Load(), int32(1))
}
