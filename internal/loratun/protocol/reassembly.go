package protocol

import (
	"time"
)

// ReassemblyTable - fragments received so far, grouped by fragment group size.
//
// The group key is the fragment count, not a message id: two packets that split
// into the same number of fragments and arrive interleaved land in one group.
// It is goroutine-local (owned by the inbound pump's decoder) and needs no locking.
type ReassemblyTable struct {
	groups  map[uint16]*reassemblyGroup
	timeout time.Duration
	now     func() time.Time
	// Expired - count of incomplete groups discarded because they outlived the timeout
	Expired int
	// Invalid - count of frames dropped for an impossible index or group size
	Invalid int
}

type reassemblyGroup struct {
	created   time.Time
	fragments map[uint16][]byte
}

// NewReassemblyTable - empty table; timeout <= 0 keeps incomplete groups forever
func NewReassemblyTable(timeout time.Duration) *ReassemblyTable {
	return &ReassemblyTable{
		groups:  make(map[uint16]*reassemblyGroup),
		timeout: timeout,
		now:     time.Now,
	}
}

// Add - store frame's payload; when its group is complete return the packet and forget the group
func (t *ReassemblyTable) Add(frame *Frame) ([]byte, bool) {
	size := frame.FragmentGroupSize
	if size == 0 || frame.SequenceIndex >= size {
		t.Invalid++
		return nil, false
	}
	now := t.now()
	group, ok := t.groups[size]
	if ok && t.timeout > 0 && now.Sub(group.created) > t.timeout {
		t.Expired++
		ok = false
	}
	if !ok {
		group = &reassemblyGroup{
			created:   now,
			fragments: make(map[uint16][]byte, size),
		}
		t.groups[size] = group
	}
	group.fragments[frame.SequenceIndex] = frame.Payload
	if len(group.fragments) < int(size) {
		return nil, false
	}

	n := 0
	for _, p := range group.fragments {
		n += len(p)
	}
	packet := make([]byte, 0, n)
	for i := uint16(0); i < size; i++ {
		packet = append(packet, group.fragments[i]...)
	}
	delete(t.groups, size)
	return packet, true
}

// Pending - number of incomplete groups
func (t *ReassemblyTable) Pending() int {
	return len(t.groups)
}
