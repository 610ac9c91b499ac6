package vni

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// utun datagrams carry a 4-byte big-endian address family ahead of the packet
const (
	utunHeaderSize = 4
	utunAFInet     = 2
)

// utunWrap - prefix packet with the AF_INET tag
func utunWrap(packet []byte) []byte {
	data := make([]byte, utunHeaderSize+len(packet))
	binary.BigEndian.PutUint32(data, utunAFInet)
	copy(data[utunHeaderSize:], packet)
	return data
}

// utunUnwrap - strip the family tag; nil for short datagrams or other families
func utunUnwrap(data []byte) []byte {
	if len(data) <= utunHeaderSize {
		return nil
	}
	if binary.BigEndian.Uint32(data) != utunAFInet {
		return nil
	}
	return data[utunHeaderSize:]
}

// utunUnit - control socket unit for name: "" or "utun" lets the kernel pick (0), utunN is N+1
func utunUnit(name string) (uint32, error) {
	if name == "" || name == "utun" {
		return 0, nil
	}
	if !strings.HasPrefix(name, "utun") {
		return 0, fmt.Errorf("interface name %q must be utun or utunN", name)
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(name, "utun"), 10, 31)
	if err != nil {
		return 0, fmt.Errorf("interface name %q must be utun or utunN", name)
	}
	return uint32(n) + 1, nil
}
