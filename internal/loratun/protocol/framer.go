package protocol

import (
	"bytes"
	"fmt"

	"github.com/rectcircle/loratun/internal/loratun/stats"
	"github.com/rectcircle/loratun/internal/variable"
)

// Framing names accepted by NewFramer
const (
	FramingSLIP     = "slip"
	FramingFragment = "fragment"
	FramingLength   = "length"
)

// Framer - one wire format for IP packets on the serial link. Both ends of a link must use the same one.
type Framer interface {
	// Name - framing name, one of the Framing* constants
	Name() string
	// Encode - wire units for packet, to be written in order
	Encode(packet []byte) ([][]byte, error)
	// NewDecoder - fresh stream decoder; drops are counted on s (may be nil)
	NewDecoder(s *stats.Stats) Decoder
}

// Decoder - resumable stream decoder, fed arbitrary chunks of the byte stream.
// A Decoder belongs to a single goroutine.
type Decoder interface {
	// Write - consume chunk, return every packet it completed in arrival order
	Write(chunk []byte) [][]byte
	// Buffered - bytes held for an incomplete unit
	Buffered() int
}

// DefaultMTU - interface MTU used with framing when none is configured
func DefaultMTU(framing string) int {
	switch framing {
	case FramingFragment:
		return variable.DefaultFragmentMTU
	case FramingLength:
		return variable.DefaultLengthMTU
	default:
		return variable.DefaultSLIPMTU
	}
}

// NewFramer - framing by name. mtu bounds length-prefixed payloads, frameSize bounds one fragment frame.
func NewFramer(framing string, mtu, frameSize int) (Framer, error) {
	switch framing {
	case FramingSLIP:
		return slipFramer{}, nil
	case FramingFragment:
		if frameSize <= FrameOverhead {
			return nil, fmt.Errorf("frame size %d leaves no room for payload (overhead %d)", frameSize, FrameOverhead)
		}
		return fragmentFramer{capacity: frameSize - FrameOverhead}, nil
	case FramingLength:
		if mtu <= LengthHeaderSize {
			return nil, fmt.Errorf("mtu %d leaves no room for payload", mtu)
		}
		return lengthFramer{maxPayload: mtu - LengthHeaderSize}, nil
	}
	return nil, fmt.Errorf("unknown framing %q (want %s, %s or %s)", framing, FramingSLIP, FramingFragment, FramingLength)
}

// ---------------------------------------------------------------------------
// SLIP
// ---------------------------------------------------------------------------

type slipFramer struct{}

func (slipFramer) Name() string { return FramingSLIP }

func (slipFramer) Encode(packet []byte) ([][]byte, error) {
	if len(packet) == 0 {
		return nil, ErrEmptyPayload
	}
	return [][]byte{SLIPEncode(packet)}, nil
}

func (slipFramer) NewDecoder(s *stats.Stats) Decoder {
	return &slipStreamDecoder{stats: s}
}

type slipStreamDecoder struct {
	dec   SLIPDecoder
	stats *stats.Stats
}

func (d *slipStreamDecoder) Write(chunk []byte) [][]byte {
	var packets [][]byte
	overflows := d.dec.Overflows
	for _, b := range chunk {
		if packet, ok := d.dec.Feed(b); ok {
			packets = append(packets, packet)
		}
	}
	d.stats.AddDrops(stats.ReasonOverflow, d.dec.Overflows-overflows)
	return packets
}

func (d *slipStreamDecoder) Buffered() int { return d.dec.Pending() }

// ---------------------------------------------------------------------------
// Fragment + CRC16
// ---------------------------------------------------------------------------

type fragmentFramer struct {
	capacity int
}

func (fragmentFramer) Name() string { return FramingFragment }

func (f fragmentFramer) Encode(packet []byte) ([][]byte, error) {
	if len(packet) == 0 {
		return nil, ErrEmptyPayload
	}
	return FragmentFrames(packet, f.capacity)
}

func (f fragmentFramer) NewDecoder(s *stats.Stats) Decoder {
	return NewFragmentDecoder(f.capacity, s)
}

// FragmentDecoder - finds fragment frames in the byte stream and reassembles packets
type FragmentDecoder struct {
	capacity int
	buf      []byte
	table    *ReassemblyTable
	stats    *stats.Stats
}

// NewFragmentDecoder - decoder accepting frames with at most capacity payload bytes
func NewFragmentDecoder(capacity int, s *stats.Stats) *FragmentDecoder {
	return &FragmentDecoder{
		capacity: capacity,
		table:    NewReassemblyTable(variable.ReassemblyTimeout),
		stats:    s,
	}
}

// Table - the reassembly table fed by this decoder
func (d *FragmentDecoder) Table() *ReassemblyTable { return d.table }

// Write - scan for magic, validate header, wait for the whole frame, check CRC, reassemble.
// Every rejected candidate skips exactly one byte so the next magic can be found.
func (d *FragmentDecoder) Write(chunk []byte) [][]byte {
	d.buf = append(d.buf, chunk...)
	var packets [][]byte
	start := 0
	for start < len(d.buf) {
		rest := d.buf[start:]
		if rest[0] != FrameMagic {
			skip := bytes.IndexByte(rest, FrameMagic)
			if skip < 0 {
				skip = len(rest)
			}
			d.stats.AddDrops(stats.ReasonDesync, skip)
			start += skip
			continue
		}
		if len(rest) < FrameHeaderSize {
			break
		}
		if rest[1] != FrameTypeData || FrameSize(rest)-FrameOverhead > d.capacity {
			d.stats.Drop(stats.ReasonDesync)
			start++
			continue
		}
		size := FrameSize(rest)
		if len(rest) < size {
			// a false header must not hold back a good frame already buffered behind it
			if next := d.nextFrame(rest); next > 0 {
				d.stats.AddDrops(stats.ReasonDesync, next)
				start += next
				continue
			}
			break
		}
		frame, err := ParseFrame(rest[:size])
		if err != nil {
			d.stats.Drop(stats.ReasonChecksum)
			start++
			continue
		}
		start += size

		invalid, expired := d.table.Invalid, d.table.Expired
		if packet, ok := d.table.Add(frame); ok {
			packets = append(packets, packet)
		}
		d.stats.AddDrops(stats.ReasonReassembly, d.table.Invalid-invalid+d.table.Expired-expired)
	}
	d.buf = append(d.buf[:0], d.buf[start:]...)
	return packets
}

func (d *FragmentDecoder) Buffered() int { return len(d.buf) }

// nextFrame - offset of the first magic after rest[0] that starts a complete
// valid frame, 0 when there is none yet
func (d *FragmentDecoder) nextFrame(rest []byte) int {
	for i := 1; i < len(rest); i++ {
		j := bytes.IndexByte(rest[i:], FrameMagic)
		if j < 0 {
			return 0
		}
		i += j
		candidate := rest[i:]
		if len(candidate) < FrameHeaderSize || candidate[1] != FrameTypeData {
			continue
		}
		size := FrameSize(candidate)
		if size-FrameOverhead > d.capacity || len(candidate) < size {
			continue
		}
		if _, err := ParseFrame(candidate[:size]); err == nil {
			return i
		}
	}
	return 0
}

// ---------------------------------------------------------------------------
// Length prefix
// ---------------------------------------------------------------------------

type lengthFramer struct {
	maxPayload int
}

func (lengthFramer) Name() string { return FramingLength }

func (f lengthFramer) Encode(packet []byte) ([][]byte, error) {
	data, err := LengthEncode(packet, f.maxPayload)
	if err != nil {
		return nil, err
	}
	return [][]byte{data}, nil
}

func (f lengthFramer) NewDecoder(s *stats.Stats) Decoder {
	return &lengthDecoder{maxPayload: f.maxPayload, stats: s}
}

type lengthDecoder struct {
	maxPayload int
	buf        []byte
	stats      *stats.Stats
}

func (d *lengthDecoder) Write(chunk []byte) [][]byte {
	d.buf = append(d.buf, chunk...)
	var packets [][]byte
	start := 0
	for {
		packet, consumed := LengthDecode(d.buf[start:], d.maxPayload)
		if consumed == 0 {
			break
		}
		start += consumed
		if packet == nil {
			d.stats.Drop(stats.ReasonDesync)
			continue
		}
		packets = append(packets, packet)
	}
	d.buf = append(d.buf[:0], d.buf[start:]...)
	return packets
}

func (d *lengthDecoder) Buffered() int { return len(d.buf) }
