// Package lsn implements the Log Sequence Number type shared by every
// component in this module, plus the boundary-adjustment logic from
// spec §4.3.1.
package lsn

import "fmt"

// LSN is a monotonic WAL position. It is a plain uint64 wire value;
// the "0/X" log formatting mirrors the source engine's convention of
// splitting an LSN into a high 32-bit "segment" half and a low 32-bit
// "offset" half for human consumption.
type LSN uint64

const Invalid LSN = 0

// These constants describe the WAL page/segment framing that
// AdjustForPageServer backs a boundary LSN away from. They are sized
// against the source engine's defaults (8KB WAL pages, 16MB segments)
// and are not configurable: the spec ties them to on-disk WAL layout,
// not to this adaptor's tunables.
const (
	XLogBlockSize    = 8192
	WALSegmentSize   = 16 * 1024 * 1024
	sizeOfShortPHD   = 24 // short WAL page header
	sizeOfLongPHD    = 40 // long WAL page header (segment boundary)
)

func (l LSN) String() string {
	return fmt.Sprintf("%X/%X", uint64(l)>>32, uint64(l)&0xFFFFFFFF)
}

func (l LSN) Uint64() uint64 { return uint64(l) }

func Max(a, b LSN) LSN {
	if a > b {
		return a
	}
	return b
}

// AdjustForPageServer implements spec §4.3.1: if lsn points at the
// first record of a WAL page or WAL segment, back it off to the
// containing page/segment origin. A page server asked for a record
// exactly at one of these boundary offsets has no record to serve and
// would stall; backing off to the origin is always safe because the
// origin's last-written-LSN is a lower bound on the boundary LSN's.
func AdjustForPageServer(l LSN) LSN {
	v := uint64(l)
	if v%WALSegmentSize == sizeOfLongPHD {
		return LSN(v - sizeOfLongPHD)
	}
	if v%XLogBlockSize == sizeOfShortPHD {
		return LSN(v - sizeOfShortPHD)
	}
	return l
}
