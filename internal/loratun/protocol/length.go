package protocol

import (
	"encoding/binary"
	"errors"
)

// LengthHeaderSize - u16 little-endian length prefix
const LengthHeaderSize = 2

var (
	// ErrPayloadTooLarge - packet does not fit in one frame of this framing
	ErrPayloadTooLarge = errors.New("payload exceeds frame capacity")
	// ErrEmptyPayload - zero length packets are never framed
	ErrEmptyPayload = errors.New("empty payload")
)

// LengthEncode - prefix payload with its u16 little-endian length.
// Payloads larger than maxPayload are refused, there is no fragmentation.
func LengthEncode(payload []byte, maxPayload int) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(payload) > maxPayload || len(payload) > MaxPacketSize {
		return nil, ErrPayloadTooLarge
	}
	data := make([]byte, LengthHeaderSize+len(payload))
	binary.LittleEndian.PutUint16(data, uint16(len(payload)))
	copy(data[LengthHeaderSize:], payload)
	return data, nil
}

// LengthDecode - try to take one packet from the start of buf.
//
// consumed is the number of bytes the caller must drop from buf. A declared
// length of 0 or above maxPayload consumes one byte (stream desync). Not
// enough bytes yet returns (nil, 0).
func LengthDecode(buf []byte, maxPayload int) (packet []byte, consumed int) {
	if len(buf) < LengthHeaderSize {
		return nil, 0
	}
	size := int(binary.LittleEndian.Uint16(buf))
	if size == 0 || size > maxPayload {
		return nil, 1
	}
	if len(buf) < LengthHeaderSize+size {
		return nil, 0
	}
	packet = make([]byte, size)
	copy(packet, buf[LengthHeaderSize:LengthHeaderSize+size])
	return packet, LengthHeaderSize + size
}
