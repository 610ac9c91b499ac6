package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rectcircle/loratun/internal/loratun/link"
	"github.com/rectcircle/loratun/internal/loratun/stats"
	"github.com/rectcircle/loratun/internal/loratun/vni"
	"github.com/rectcircle/loratun/internal/variable"
	"github.com/rectcircle/loratun/tools"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Bridge - moves packets between the virtual interface and the serial link
type Bridge struct {
	Link   link.Link
	Device vni.Device
	Framer Framer
	Stats  *stats.Stats
	// warn - limits transient failure logs, a dead cable would otherwise flood them
	warn *rate.Limiter
}

// NewBridge - Create a Bridge to serve
func NewBridge(l link.Link, dev vni.Device, framer Framer, s *stats.Stats) *Bridge {
	return &Bridge{
		Link:   l,
		Device: dev,
		Framer: framer,
		Stats:  s,
		warn:   rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Serve - run both pumps until ctx is done or one of them fails.
// Returns the first fatal error, nil on cancellation.
func (b *Bridge) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Outbound(ctx) })
	g.Go(func() error { return b.Inbound(ctx) })
	return g.Wait()
}

// Outbound - interface to serial
func (b *Bridge) Outbound(ctx context.Context) error {
	for ctx.Err() == nil {
		packet, err := b.Device.ReadPacket()
		if err != nil {
			if errors.Is(err, vni.ErrClosed) {
				return fmt.Errorf("read %s: %w", b.Device.Name(), err)
			}
			b.Stats.AddReadError()
			b.warnf(err, "read from %s", b.Device.Name())
			sleep(ctx, variable.WriteBackoff)
			continue
		}
		if packet == nil {
			sleep(ctx, variable.IdleInterval)
			continue
		}
		if !vni.IsIPv4(packet) {
			b.Stats.Drop(stats.ReasonNotIPv4)
			continue
		}
		units, err := b.Framer.Encode(packet)
		if err != nil {
			b.Stats.Drop(stats.ReasonCapacity)
			tools.TraceF("drop %s: %v", summarize(packet), err)
			continue
		}
		wire := 0
		for _, unit := range units {
			if err := b.writeUnit(ctx, unit); err != nil {
				return err
			}
			wire += len(unit)
		}
		if ctx.Err() != nil {
			break
		}
		b.Stats.AddPacketOut(wire)
		tools.TraceF("%s >> %s (%d units, %d bytes)", b.Device.Name(), summarize(packet), len(units), wire)
	}
	return nil
}

// writeUnit - write all of unit, retrying transient failures until ctx is done
func (b *Bridge) writeUnit(ctx context.Context, unit []byte) error {
	for len(unit) > 0 && ctx.Err() == nil {
		n, err := b.Link.Write(unit)
		unit = unit[n:]
		if err == nil {
			continue
		}
		if link.IsDisconnect(err) {
			return fmt.Errorf("write %s: %w: %w", b.Link.Name(), link.ErrDisconnected, err)
		}
		b.Stats.AddWriteError()
		b.warnf(err, "write to %s, retrying", b.Link.Name())
		sleep(ctx, variable.WriteBackoff)
	}
	return nil
}

// Inbound - serial to interface
func (b *Bridge) Inbound(ctx context.Context) error {
	decoder := b.Framer.NewDecoder(b.Stats)
	buffer := make([]byte, variable.SerialReadChunk)
	for ctx.Err() == nil {
		n, err := b.Link.Read(buffer)
		if n > 0 {
			b.Stats.AddBytesIn(n)
			for _, packet := range decoder.Write(buffer[:n]) {
				b.deliver(packet)
			}
		}
		if err != nil {
			if link.IsDisconnect(err) {
				return fmt.Errorf("read %s: %w: %w", b.Link.Name(), link.ErrDisconnected, err)
			}
			b.Stats.AddReadError()
			b.warnf(err, "read from %s", b.Link.Name())
			sleep(ctx, variable.WriteBackoff)
		}
	}
	return nil
}

func (b *Bridge) deliver(packet []byte) {
	if !vni.IsIPv4(packet) {
		b.Stats.Drop(stats.ReasonNotIPv4)
		return
	}
	if err := b.Device.WritePacket(packet); err != nil {
		b.Stats.AddWriteError()
		b.warnf(err, "write to %s", b.Device.Name())
		return
	}
	b.Stats.AddPacketIn()
	tools.TraceF("%s << %s", b.Device.Name(), summarize(packet))
}

func (b *Bridge) warnf(err error, format string, args ...interface{}) {
	if b.warn == nil || b.warn.Allow() {
		logrus.WithError(err).Warnf(format, args...)
	}
}

// summarize - "src -> dst proto len" for trace logs
func summarize(packet []byte) string {
	var ip layers.IPv4
	if err := ip.DecodeFromBytes(packet, gopacket.NilDecodeFeedback); err != nil {
		return fmt.Sprintf("%d bytes (%v)", len(packet), err)
	}
	return fmt.Sprintf("%s -> %s %s len=%d", ip.SrcIP, ip.DstIP, ip.Protocol, len(packet))
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
