package protocol

import (
	"math/rand"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

func randomBytes(r *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.Intn(256))
	}
	return b
}

// udpPacket - well formed IPv4/UDP packet of 28+payloadLen bytes
func udpPacket(t testing.TB, r *rand.Rand, payloadLen int) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	udp := &layers.UDP{SrcPort: 5000, DstPort: 5001}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf,
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		ip, udp, gopacket.Payload(randomBytes(r, payloadLen)))
	require.NoError(t, err)
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}

// noise - random bytes that never contain any of the given values
func noise(r *rand.Rand, n int, avoid ...byte) []byte {
	b := make([]byte, 0, n)
	for len(b) < n {
		c := byte(r.Intn(256))
		ok := true
		for _, a := range avoid {
			if c == a {
				ok = false
				break
			}
		}
		if ok {
			b = append(b, c)
		}
	}
	return b
}
