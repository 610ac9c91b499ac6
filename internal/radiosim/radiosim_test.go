package radiosim

import (
	"context"
	"io"
	"math/bits"
	"net"
	"os"
	"testing"
	"time"

	"github.com/rectcircle/loratun/internal/loratun/link"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cable - the simulator end as a Link, and the raw end a radio user talks to
func cable() (link.Link, net.Conn) {
	side, user := net.Pipe()
	return link.NewTCPLink(side), user
}

func readN(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, n)
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	return buf
}

func startShuttle(t *testing.T, opts Options) (userA, userB net.Conn, air *Air, stop func() error) {
	sideA, userA := cable()
	sideB, userB := cable()
	air = NewAir(opts, 42)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Shuttle(ctx, sideA, sideB, air) }()
	stop = func() error {
		cancel()
		return <-done
	}
	return userA, userB, air, stop
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"clean", Options{}, false},
		{"lossy", Options{Loss: 0.3, Corrupt: 0.01}, false},
		{"always", Options{Loss: 1, Corrupt: 1}, false},
		{"negative loss", Options{Loss: -0.1}, true},
		{"corrupt above one", Options{Corrupt: 1.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAir_Transmit(t *testing.T) {
	chunk := []byte{0xC0, 0x45, 0x00, 0x01, 0xC0}

	clean := NewAir(Options{}, 1)
	out := clean.transmit(chunk)
	assert.Equal(t, chunk, out)
	out[0] = 0
	assert.Equal(t, byte(0xC0), chunk[0], "transmit must not alias the read buffer")

	lossy := NewAir(Options{Loss: 1}, 1)
	assert.Nil(t, lossy.transmit(chunk))
	assert.Equal(t, int64(1), lossy.Lost.Load())

	noisy := NewAir(Options{Corrupt: 1}, 1)
	for i := 0; i < 20; i++ {
		got := noisy.transmit(chunk)
		flipped := 0
		for j := range got {
			flipped += bits.OnesCount8(got[j] ^ chunk[j])
		}
		assert.Equal(t, 1, flipped)
	}
	assert.Equal(t, int64(20), noisy.Corrupted.Load())
}

func TestShuttle(t *testing.T) {
	userA, userB, air, stop := startShuttle(t, Options{})

	_, err := userA.Write([]byte("ping over lora"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ping over lora"), readN(t, userB, 14))

	_, err = userB.Write([]byte("pong"))
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), readN(t, userA, 4))

	assert.NoError(t, stop())
	assert.Equal(t, int64(18), air.Forwarded.Load())
}

func TestShuttle_Loss(t *testing.T) {
	userA, userB, air, stop := startShuttle(t, Options{Loss: 1})
	defer stop()

	_, err := userA.Write([]byte("lost"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return air.Lost.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, userB.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, err = userB.Read(make([]byte, 4))
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestShuttle_SideGone(t *testing.T) {
	sideA, userA := cable()
	sideB, _ := cable()
	done := make(chan error, 1)
	go func() { done <- Shuttle(context.Background(), sideA, sideB, NewAir(Options{}, 1)) }()
	userA.Close()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, link.IsDisconnect(err), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("shuttle kept running after one side went away")
	}
}

func TestEcho(t *testing.T) {
	side, user := cable()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Echo(ctx, side) }()

	want := []byte{0xA5, 0x01, 0x00, 0x00, 0x01, 0x00}
	_, err := user.Write(want)
	require.NoError(t, err)
	assert.Equal(t, want, readN(t, user, len(want)))

	cancel()
	assert.NoError(t, <-done)
}
