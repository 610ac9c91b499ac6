package protocol

// SLIP special bytes (RFC 1055)
const (
	SLIPEnd    = byte(0xC0)
	SLIPEsc    = byte(0xDB)
	SLIPEscEnd = byte(0xDC)
	SLIPEscEsc = byte(0xDD)
)

// MaxPacketSize - upper bound of one decoded packet, for any framing
const MaxPacketSize = 65535

// SLIPEncode - wrap packet in END delimiters and escape END / ESC inside it
func SLIPEncode(packet []byte) []byte {
	out := make([]byte, 0, len(packet)+len(packet)/8+2)
	out = append(out, SLIPEnd)
	for _, b := range packet {
		switch b {
		case SLIPEnd:
			out = append(out, SLIPEsc, SLIPEscEnd)
		case SLIPEsc:
			out = append(out, SLIPEsc, SLIPEscEsc)
		default:
			out = append(out, b)
		}
	}
	return append(out, SLIPEnd)
}

// SLIPDecoder - resumable SLIP state machine, fed one byte at a time.
// It holds exactly one in-progress buffer and one escape flag.
type SLIPDecoder struct {
	buf      []byte
	escaped  bool
	overflow bool
	// Overflows - count of packets discarded because they outgrew MaxPacketSize
	Overflows int
}

// Feed - consume one byte, return a completed packet when b closes one
func (d *SLIPDecoder) Feed(b byte) ([]byte, bool) {
	if b == SLIPEnd {
		d.escaped = false
		if d.overflow {
			d.overflow = false
			d.buf = d.buf[:0]
			return nil, false
		}
		if len(d.buf) == 0 {
			// back-to-back delimiters
			return nil, false
		}
		packet := make([]byte, len(d.buf))
		copy(packet, d.buf)
		d.buf = d.buf[:0]
		return packet, true
	}
	if d.overflow {
		return nil, false
	}
	if d.escaped {
		d.escaped = false
		switch b {
		case SLIPEscEnd:
			b = SLIPEnd
		case SLIPEscEsc:
			b = SLIPEsc
		}
		d.push(b)
		return nil, false
	}
	if b == SLIPEsc {
		d.escaped = true
		return nil, false
	}
	d.push(b)
	return nil, false
}

func (d *SLIPDecoder) push(b byte) {
	if len(d.buf) >= MaxPacketSize {
		d.overflow = true
		d.Overflows++
		d.buf = d.buf[:0]
		return
	}
	d.buf = append(d.buf, b)
}

// Pending - bytes buffered for the packet in progress
func (d *SLIPDecoder) Pending() int {
	return len(d.buf)
}
