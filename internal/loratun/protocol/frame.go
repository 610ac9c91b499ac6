package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	// FrameMagic - first byte of every fragment frame
	FrameMagic = byte(0xA5)
	// FrameTypeData - the only frame type, a fragment of an IP packet
	FrameTypeData = byte(0x01)
	// FrameHeaderSize - magic, type, sequence index, group size, payload length
	FrameHeaderSize = 8
	// FrameChecksumSize - trailing CRC16
	FrameChecksumSize = 2
	// FrameOverhead - bytes a frame adds around its payload
	FrameOverhead = FrameHeaderSize + FrameChecksumSize
	// MaxFragments - group size is carried in 16 bits
	MaxFragments = 0xFFFF
)

var (
	// ErrFrameTooShort - fewer bytes than the header plus the declared payload and checksum
	ErrFrameTooShort = errors.New("frame too short")
	// ErrBadMagic - first byte is not FrameMagic
	ErrBadMagic = errors.New("bad frame magic")
	// ErrBadType - frame type is not FrameTypeData
	ErrBadType = errors.New("unknown frame type")
	// ErrLengthMismatch - raw is not exactly one frame long
	ErrLengthMismatch = errors.New("frame length mismatch")
	// ErrChecksumMismatch - trailing CRC16 does not cover header and payload
	ErrChecksumMismatch = errors.New("frame checksum mismatch")
	// ErrTooManyFragments - packet would need more than MaxFragments frames
	ErrTooManyFragments = errors.New("too many fragments")
)

// Frame - one fragment of an IP packet on the radio link, use Little-Endian
type Frame struct {
	// frame type, always FrameTypeData
	Type byte
	// index of this fragment inside its group
	SequenceIndex uint16
	// number of fragments the packet was split into
	FragmentGroupSize uint16
	// fragment bytes
	Payload []byte
}

// NewDataFrame - new a Frame carrying fragment seq of total
func NewDataFrame(seq, total uint16, payload []byte) Frame {
	return Frame{
		Type:              FrameTypeData,
		SequenceIndex:     seq,
		FragmentGroupSize: total,
		Payload:           payload,
	}
}

// Equal - Equal
func (f *Frame) Equal(other *Frame) bool {
	return f.Type == other.Type &&
		f.SequenceIndex == other.SequenceIndex &&
		f.FragmentGroupSize == other.FragmentGroupSize &&
		bytes.Equal(f.Payload, other.Payload)
}

// Serialize - Serialize Frame to []byte, checksum appended
func (f *Frame) Serialize() []byte {
	n := len(f.Payload)
	data := make([]byte, FrameHeaderSize+n+FrameChecksumSize)
	data[0] = FrameMagic
	data[1] = f.Type
	binary.LittleEndian.PutUint16(data[2:4], f.SequenceIndex)
	binary.LittleEndian.PutUint16(data[4:6], f.FragmentGroupSize)
	binary.LittleEndian.PutUint16(data[6:8], uint16(n))
	copy(data[FrameHeaderSize:], f.Payload)
	binary.LittleEndian.PutUint16(data[FrameHeaderSize+n:], CRC16(data[:FrameHeaderSize+n]))
	return data
}

// BuildFrame - serialize fragment seq of total with its checksum
func BuildFrame(seq, total uint16, payload []byte) []byte {
	f := NewDataFrame(seq, total, payload)
	return f.Serialize()
}

// ParseFrame - decode raw, which must hold exactly one frame (see FrameSize).
// Any error means "no frame": the caller must skip ahead instead of parsing the same prefix again.
func ParseFrame(raw []byte) (*Frame, error) {
	if len(raw) < FrameOverhead {
		return nil, ErrFrameTooShort
	}
	if raw[0] != FrameMagic {
		return nil, ErrBadMagic
	}
	if raw[1] != FrameTypeData {
		return nil, ErrBadType
	}
	length := int(binary.LittleEndian.Uint16(raw[6:8]))
	if len(raw) < FrameOverhead+length {
		return nil, ErrFrameTooShort
	}
	if len(raw) > FrameOverhead+length {
		return nil, ErrLengthMismatch
	}
	end := FrameHeaderSize + length
	if CRC16(raw[:end]) != binary.LittleEndian.Uint16(raw[end:end+FrameChecksumSize]) {
		return nil, ErrChecksumMismatch
	}
	payload := make([]byte, length)
	copy(payload, raw[FrameHeaderSize:end])
	return &Frame{
		Type:              raw[1],
		SequenceIndex:     binary.LittleEndian.Uint16(raw[2:4]),
		FragmentGroupSize: binary.LittleEndian.Uint16(raw[4:6]),
		Payload:           payload,
	}, nil
}

// FrameSize - bytes on the wire of a frame whose header starts raw, 0 if the header is incomplete
func FrameSize(raw []byte) int {
	if len(raw) < FrameHeaderSize {
		return 0
	}
	return FrameOverhead + int(binary.LittleEndian.Uint16(raw[6:8]))
}

// Fragment - split packet into consecutive chunks of at most capacity bytes, the last may be shorter
func Fragment(packet []byte, capacity int) [][]byte {
	if capacity <= 0 || len(packet) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(packet)+capacity-1)/capacity)
	for i := 0; i < len(packet); i += capacity {
		end := i + capacity
		if end > len(packet) {
			end = len(packet)
		}
		chunks = append(chunks, packet[i:end])
	}
	return chunks
}

// FragmentFrames - fragment packet and serialize every chunk as a frame of the same group
func FragmentFrames(packet []byte, capacity int) ([][]byte, error) {
	chunks := Fragment(packet, capacity)
	if len(chunks) > MaxFragments {
		return nil, ErrTooManyFragments
	}
	total := uint16(len(chunks))
	frames := make([][]byte, len(chunks))
	for i, chunk := range chunks {
		frames[i] = BuildFrame(uint16(i), total, chunk)
	}
	return frames, nil
}
