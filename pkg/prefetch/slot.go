package prefetch

import (
	"github.com/riverdb/pagestore-smgr/pkg/blockid"
	"github.com/riverdb/pagestore-smgr/pkg/lsn"
	"github.com/riverdb/pagestore-smgr/pkg/protocol"
)

// SlotStatus is the state a PrefetchSlot (spec §3) can be in.
type SlotStatus uint8

const (
	StatusUnused SlotStatus = iota
	StatusRequested
	StatusReceived
	StatusTagRemains
)

func (s SlotStatus) String() string {
	switch s {
	case StatusUnused:
		return "unused"
	case StatusRequested:
		return "requested"
	case StatusReceived:
		return "received"
	case StatusTagRemains:
		return "tag_remains"
	default:
		return "unknown"
	}
}

// Slot is a PrefetchSlot: one element of the ring. Slots are reused in
// place; reset clears every field except RingIndex back to the UNUSED
// invariant.
type Slot struct {
	Tag                 blockid.BlockId
	Status              SlotStatus
	EffectiveRequestLSN lsn.LSN
	Response            *protocol.Response // owned iff Status == StatusReceived
	Err                 error              // page-server ErrorResponse, owned iff Status == StatusReceived
	RingIndex           uint64
}

func (s *Slot) reset() {
	s.Tag = blockid.BlockId{}
	s.Status = StatusUnused
	s.EffectiveRequestLSN = 0
	s.Response = nil
	s.Err = nil
	// RingIndex is left for diagnostics; it is overwritten on next
	// allocation and never read while the slot is UNUSED.
}
