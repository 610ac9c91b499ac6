// Package stats counts traffic and drops on the bridge, exposes them to
// Prometheus and logs a periodic summary.
package stats

import (
	"sync/atomic"
)

// Reason - why a unit of data was discarded
type Reason int

const (
	// ReasonNotIPv4 - packet failed the IPv4 policy filter
	ReasonNotIPv4 Reason = iota
	// ReasonCapacity - packet does not fit the framing capacity
	ReasonCapacity
	// ReasonChecksum - fragment frame failed its CRC16
	ReasonChecksum
	// ReasonDesync - stream bytes skipped while looking for a frame boundary
	ReasonDesync
	// ReasonOverflow - SLIP packet outgrew the decoder buffer
	ReasonOverflow
	// ReasonReassembly - fragment with an impossible index, or a stale group expired
	ReasonReassembly
	numReasons
)

var reasonNames = [numReasons]string{
	ReasonNotIPv4:    "not_ipv4",
	ReasonCapacity:   "capacity",
	ReasonChecksum:   "checksum",
	ReasonDesync:     "desync",
	ReasonOverflow:   "overflow",
	ReasonReassembly: "reassembly",
}

func (r Reason) String() string {
	if r < 0 || r >= numReasons {
		return "unknown"
	}
	return reasonNames[r]
}

// Reasons - every drop reason, in declaration order
func Reasons() []Reason {
	rs := make([]Reason, numReasons)
	for i := range rs {
		rs[i] = Reason(i)
	}
	return rs
}

// Global is the process-wide counter set used by the bridge.
var Global = &Stats{}

// Stats - cumulative counters since process start. A nil *Stats discards everything.
type Stats struct {
	PacketsOut  atomic.Int64 // packets taken from the interface and written to the link
	PacketsIn   atomic.Int64 // packets decoded from the link and delivered to the interface
	BytesOut    atomic.Int64 // wire bytes written to the link
	BytesIn     atomic.Int64 // wire bytes read from the link
	WriteErrors atomic.Int64 // failed link or interface writes
	ReadErrors  atomic.Int64 // failed link or interface reads

	drops [numReasons]atomic.Int64
}

func (s *Stats) AddPacketOut(wireBytes int) {
	if s == nil {
		return
	}
	s.PacketsOut.Add(1)
	s.BytesOut.Add(int64(wireBytes))
}

func (s *Stats) AddPacketIn() {
	if s == nil {
		return
	}
	s.PacketsIn.Add(1)
}

func (s *Stats) AddBytesIn(n int) {
	if s == nil {
		return
	}
	s.BytesIn.Add(int64(n))
}

func (s *Stats) AddWriteError() {
	if s == nil {
		return
	}
	s.WriteErrors.Add(1)
}

func (s *Stats) AddReadError() {
	if s == nil {
		return
	}
	s.ReadErrors.Add(1)
}

// Drop - count one discarded unit
func (s *Stats) Drop(r Reason) {
	s.AddDrops(r, 1)
}

// AddDrops - count n discarded units
func (s *Stats) AddDrops(r Reason, n int) {
	if s == nil || n <= 0 || r < 0 || r >= numReasons {
		return
	}
	s.drops[r].Add(int64(n))
}

// Drops - discarded units for reason r
func (s *Stats) Drops(r Reason) int64 {
	if s == nil || r < 0 || r >= numReasons {
		return 0
	}
	return s.drops[r].Load()
}
