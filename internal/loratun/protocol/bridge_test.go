package protocol

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rectcircle/loratun/internal/loratun/link"
	"github.com/rectcircle/loratun/internal/loratun/stats"
	"github.com/rectcircle/loratun/internal/loratun/vni"
	"github.com/rectcircle/loratun/internal/variable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// simulation of one direction of a serial cable
//
//	W --->  ------------  ---> R
//	       | SerialPipe |
//	        ------------
type SerialPipe struct {
	closed    chan struct{}
	closeOnce sync.Once
	buffer    chan []byte
	pending   []byte
}

func NewSerialPipe() *SerialPipe {
	return &SerialPipe{
		closed: make(chan struct{}),
		buffer: make(chan []byte, 1024),
	}
}

// Read - like a serial port with a read timeout: (0, nil) when idle
func (s *SerialPipe) Read(p []byte) (n int, err error) {
	if len(s.pending) == 0 {
		select {
		case b := <-s.buffer:
			s.pending = b
		case <-s.closed:
			return 0, io.EOF
		case <-time.After(10 * time.Millisecond):
			return 0, nil
		}
	}
	n = copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *SerialPipe) Write(p []byte) (n int, err error) {
	select {
	case <-s.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	buffer := make([]byte, len(p))
	copy(buffer, p)
	s.buffer <- buffer
	return len(p), nil
}

func (s *SerialPipe) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// SimulatedLink - one end of a cable made of two SerialPipes
type SimulatedLink struct {
	name string
	R    *SerialPipe
	W    *SerialPipe
}

func NewSimulatedLink() (a, b *SimulatedLink) {
	ab, ba := NewSerialPipe(), NewSerialPipe()
	return &SimulatedLink{"sim-a", ba, ab}, &SimulatedLink{"sim-b", ab, ba}
}

func (l *SimulatedLink) Name() string                      { return l.name }
func (l *SimulatedLink) Read(p []byte) (n int, err error)  { return l.R.Read(p) }
func (l *SimulatedLink) Write(p []byte) (n int, err error) { return l.W.Write(p) }
func (l *SimulatedLink) Close() error {
	l.R.Close()
	return l.W.Close()
}

// MemDevice - virtual interface backed by channels
type MemDevice struct {
	name string
	// Send - packets the host stack emits, read by the outbound pump
	Send chan []byte
	// Recv - packets the inbound pump delivered
	Recv chan []byte
}

func NewMemDevice(name string) *MemDevice {
	return &MemDevice{name: name, Send: make(chan []byte, 64), Recv: make(chan []byte, 64)}
}

func (d *MemDevice) Name() string { return d.name }

func (d *MemDevice) ReadPacket() ([]byte, error) {
	select {
	case p := <-d.Send:
		return p, nil
	case <-time.After(5 * time.Millisecond):
		return nil, nil
	}
}

func (d *MemDevice) WritePacket(p []byte) error {
	d.Recv <- p
	return nil
}

func (d *MemDevice) Close() error { return nil }

func receive(t *testing.T, d *MemDevice) []byte {
	t.Helper()
	select {
	case p := <-d.Recv:
		return p
	case <-time.After(5 * time.Second):
		t.Fatalf("%s: no packet delivered", d.name)
		return nil
	}
}

func startBridges(t *testing.T, framer Framer) (devA, devB *MemDevice, statsA, statsB *stats.Stats, stop func()) {
	linkA, linkB := NewSimulatedLink()
	devA, devB = NewMemDevice("a0"), NewMemDevice("b0")
	statsA, statsB = &stats.Stats{}, &stats.Stats{}
	bridgeA := NewBridge(linkA, vni.IPv4Only(devA, statsA), framer, statsA)
	bridgeB := NewBridge(linkB, vni.IPv4Only(devB, statsB), framer, statsB)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, b := range []*Bridge{bridgeA, bridgeB} {
		wg.Add(1)
		go func(b *Bridge) {
			defer wg.Done()
			assert.NoError(t, b.Serve(ctx))
		}(b)
	}
	stop = func() {
		cancel()
		wg.Wait()
	}
	return
}

func TestBridge_Serve(t *testing.T) {
	EnableTraceLog := variable.EnableTraceLog
	variable.EnableTraceLog = true
	defer func() { variable.EnableTraceLog = EnableTraceLog }()

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	for _, name := range []string{FramingSLIP, FramingFragment, FramingLength} {
		t.Run(name, func(t *testing.T) {
			framer, err := NewFramer(name, DefaultMTU(name), DefaultMTU(name))
			require.NoError(t, err)
			devA, devB, statsA, statsB, stop := startBridges(t, framer)
			defer stop()

			for i := 0; i < 10; i++ {
				toB := udpPacket(t, r, r.Intn(DefaultMTU(name)-2-28))
				toA := udpPacket(t, r, r.Intn(DefaultMTU(name)-2-28))
				devA.Send <- toB
				devB.Send <- toA
				assert.Equal(t, toB, receive(t, devB))
				assert.Equal(t, toA, receive(t, devA))
			}
			// counters move right after the packet is handed over
			assert.Eventually(t, func() bool {
				return statsA.PacketsOut.Load() == 10 && statsB.PacketsIn.Load() == 10
			}, time.Second, time.Millisecond)
			assert.Equal(t, statsA.BytesOut.Load(), statsB.BytesIn.Load())
		})
	}
}

func TestBridge_IPv4Policy(t *testing.T) {
	framer, err := NewFramer(FramingSLIP, 576, 576)
	require.NoError(t, err)
	devA, devB, statsA, _, stop := startBridges(t, framer)
	defer stop()

	r := rand.New(rand.NewSource(5))
	devA.Send <- []byte{0x60, 0x00, 0x00, 0x00, 0x00, 0x08, 0x11, 0x40}
	ok := udpPacket(t, r, 10)
	devA.Send <- ok
	assert.Equal(t, ok, receive(t, devB))
	assert.Equal(t, int64(1), statsA.Drops(stats.ReasonNotIPv4))
	assert.Eventually(t, func() bool { return statsA.PacketsOut.Load() == 1 }, time.Second, time.Millisecond)
}

func TestBridge_InboundDropsNonIPv4(t *testing.T) {
	framer, err := NewFramer(FramingLength, 120, 120)
	require.NoError(t, err)
	s := &stats.Stats{}
	linkA, linkB := NewSimulatedLink()
	dev := NewMemDevice("a0")
	b := NewBridge(linkA, dev, framer, s)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Inbound(ctx) }()

	r := rand.New(rand.NewSource(9))
	good := udpPacket(t, r, 20)
	for _, p := range [][]byte{{0x60, 0x01, 0x02}, good} {
		units, err := framer.Encode(p)
		require.NoError(t, err)
		for _, u := range units {
			_, err := linkB.Write(u)
			require.NoError(t, err)
		}
	}
	assert.Equal(t, good, receive(t, dev))
	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, int64(1), s.Drops(stats.ReasonNotIPv4))
}

func TestBridge_CapacityDrop(t *testing.T) {
	framer, err := NewFramer(FramingLength, 120, 120)
	require.NoError(t, err)
	devA, devB, statsA, _, stop := startBridges(t, framer)
	defer stop()

	r := rand.New(rand.NewSource(6))
	devA.Send <- udpPacket(t, r, 200)
	small := udpPacket(t, r, 20)
	devA.Send <- small
	assert.Equal(t, small, receive(t, devB))
	assert.Equal(t, int64(1), statsA.Drops(stats.ReasonCapacity))
}

// flakyLink - fails the first n writes with a transient error
type flakyLink struct {
	*SimulatedLink
	failures atomic.Int32
}

func (l *flakyLink) Write(p []byte) (int, error) {
	if l.failures.Add(-1) >= 0 {
		return 0, errors.New("resource temporarily unavailable")
	}
	return l.SimulatedLink.Write(p)
}

func TestBridge_WriteRetry(t *testing.T) {
	backoff := variable.WriteBackoff
	variable.WriteBackoff = time.Millisecond
	defer func() { variable.WriteBackoff = backoff }()

	framer, err := NewFramer(FramingFragment, 120, 120)
	require.NoError(t, err)
	linkA, linkB := NewSimulatedLink()
	flaky := &flakyLink{SimulatedLink: linkA}
	flaky.failures.Store(2)
	devA, devB := NewMemDevice("a0"), NewMemDevice("b0")
	statsA := &stats.Stats{}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, b := range []*Bridge{NewBridge(flaky, devA, framer, statsA), NewBridge(linkB, devB, framer, nil)} {
		wg.Add(1)
		go func(b *Bridge) {
			defer wg.Done()
			b.Serve(ctx)
		}(b)
	}
	defer wg.Wait()
	defer cancel()

	r := rand.New(rand.NewSource(8))
	packet := udpPacket(t, r, 250)
	devA.Send <- packet
	assert.Equal(t, packet, receive(t, devB))
	assert.Equal(t, int64(2), statsA.WriteErrors.Load())
}

func TestBridge_LinkDisconnect(t *testing.T) {
	framer, err := NewFramer(FramingSLIP, 576, 576)
	require.NoError(t, err)

	t.Run("inbound read", func(t *testing.T) {
		linkA, _ := NewSimulatedLink()
		b := NewBridge(linkA, NewMemDevice("a0"), framer, nil)
		done := make(chan error, 1)
		go func() { done <- b.Serve(context.Background()) }()
		linkA.R.Close()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, link.ErrDisconnected)
			assert.ErrorIs(t, err, io.EOF)
		case <-time.After(5 * time.Second):
			t.Fatal("bridge kept running after the link went away")
		}
	})

	t.Run("outbound write", func(t *testing.T) {
		linkA, _ := NewSimulatedLink()
		dev := NewMemDevice("a0")
		b := NewBridge(linkA, dev, framer, nil)
		linkA.W.Close()
		r := rand.New(rand.NewSource(4))
		dev.Send <- udpPacket(t, r, 10)
		err := b.Outbound(context.Background())
		assert.ErrorIs(t, err, link.ErrDisconnected)
	})
}

func TestBridge_Cancel(t *testing.T) {
	framer, err := NewFramer(FramingSLIP, 576, 576)
	require.NoError(t, err)
	linkA, _ := NewSimulatedLink()
	b := NewBridge(linkA, NewMemDevice("a0"), framer, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, b.Serve(ctx))
}

func TestSummarize(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	assert.Equal(t, "10.0.0.1 -> 10.0.0.2 UDP len=38", summarize(udpPacket(t, r, 10)))
	assert.Contains(t, summarize([]byte{0x45, 0x00}), "2 bytes")
}
