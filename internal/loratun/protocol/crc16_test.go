package protocol

import "testing"

func TestCRC16(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"check value", []byte("123456789"), 0x29B1},
		{"empty", nil, 0xFFFF},
		{"single zero", []byte{0x00}, 0xE1F0},
		{"letter A", []byte("A"), 0xB915},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC16(tt.data); got != tt.want {
				t.Errorf("CRC16() = %#04x, want %#04x", got, tt.want)
			}
		})
	}
}
