// Package requestlsn implements the request-LSN oracle (component E,
// spec §4.3): picks the (latest, lsn) pair stamped on an outgoing
// GetPage/Exists/NBlocks request.
package requestlsn

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/riverdb/pagestore-smgr/pkg/blockid"
	"github.com/riverdb/pagestore-smgr/pkg/collab"
	"github.com/riverdb/pagestore-smgr/pkg/lsn"
)

// Oracle implements prefetch.LSNOracle. It is safe to share a single
// Oracle across every Pipeline in a process: it holds no mutable state
// of its own, only references to the collaborators it consults.
type Oracle struct {
	recovery collab.RecoveryState
	lastLSN  collab.LastWrittenLSN
	wal      collab.WAL
	logger   log.Logger
}

func New(recovery collab.RecoveryState, lastLSN collab.LastWrittenLSN, wal collab.WAL, logger log.Logger) *Oracle {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Oracle{recovery: recovery, lastLSN: lastLSN, wal: wal, logger: logger}
}

// PickLSN implements spec §4.3's three branches.
func (o *Oracle) PickLSN(tag blockid.BlockId) (latest bool, at lsn.LSN) {
	if o.recovery.IsWalSender() {
		// Open Question (c): 0 here is the sentinel "freshest the
		// server has", not an uninitialized LSN. It must pass through
		// unchanged to the wire.
		return true, lsn.Invalid
	}

	if o.recovery.InRecovery() {
		raw := o.lastLSN.GetLastWrittenLSN(tag)
		return false, lsn.AdjustForPageServer(raw)
	}

	raw := o.lastLSN.GetLastWrittenLSN(tag)
	adjusted := lsn.AdjustForPageServer(raw)

	if adjusted > o.wal.GetFlushRecPtr() {
		// Only reachable during index builds that log-then-flush: the
		// WAL record exists but hasn't hit disk yet.
		if err := o.wal.XLogFlush(adjusted); err != nil {
			level.Error(o.logger).Log("msg", "failed to flush WAL up to request LSN", "tag", tag, "lsn", adjusted, "err", err)
		}
	}
	return true, adjusted
}
