package protocol

import "github.com/sigurn/crc16"

// polynomial 0x1021, init 0xFFFF, MSB first, no final xor
var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// CRC16 - CRC-16/CCITT-FALSE of data
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}
