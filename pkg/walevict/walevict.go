// Package walevict implements the eviction WAL-logger (component G,
// spec §4.4): on every write of a permanent relation, and on every
// extend of a non-zero page, decides how to record the page's LSN
// before it can be evicted from shared buffers.
package walevict

import (
	"github.com/pkg/errors"

	"github.com/riverdb/pagestore-smgr/pkg/blockid"
	"github.com/riverdb/pagestore-smgr/pkg/collab"
	"github.com/riverdb/pagestore-smgr/pkg/lsn"
)

// ErrUnloggedDirtyEviction marks the invariant violation in spec §4.4
// step 2 / §7 item 4: a dirty page with lsn=0 that is neither new nor
// an empty heap page. The caller is expected to let this panic the
// backend, matching the source's elog(PANIC).
var ErrUnloggedDirtyEviction = errors.New("walevict: eviction of unlogged dirty page")

// Page is the fixed BLCKSZ payload this component inspects and, when
// necessary, logs.
type Page = [8192]byte

// Logger implements component G against the collaborators named in
// §6.3.
type Logger struct {
	recovery collab.RecoveryState
	lastLSN  collab.LastWrittenLSN
	wal      collab.WAL

	// EmptyHeapPage reports whether a page is byte-equal to a freshly
	// initialized heap page; Evict consults it for zero-LSN pages. It is
	// a collaborator rather than a constant because the page layout is
	// the engine's.
	EmptyHeapPage func(page Page) bool
}

func New(recovery collab.RecoveryState, lastLSN collab.LastWrittenLSN, wal collab.WAL, isEmptyHeapPage func(Page) bool) *Logger {
	return &Logger{recovery: recovery, lastLSN: lastLSN, wal: wal, EmptyHeapPage: isEmptyHeapPage}
}

// PageLSN extracts the LSN stamped in a page's header, reading the
// page's first 8 bytes as a big-endian integer. This package has no
// notion of page internals beyond that leading LSN field.
func PageLSN(page Page) lsn.LSN {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(page[i])
	}
	return lsn.LSN(v)
}

func isAllZero(page Page) bool {
	for _, b := range page {
		if b != 0 {
			return false
		}
	}
	return true
}

// Evict implements spec §4.4. tag identifies the page being evicted;
// fork and force come from the caller (FSM/visibility-map forks, or an
// explicit force flag, always take the full-page-image path outside
// recovery).
func (l *Logger) Evict(tag blockid.BlockId, page Page, force bool) error {
	if (isSpecialFork(tag.Fork) || force) && !l.recovery.InRecovery() {
		newLSN := l.wal.LogNewPage(tag, page, true)
		if err := l.wal.XLogFlush(newLSN); err != nil {
			return errors.Wrap(err, "flush full-page-image record")
		}
		l.lastLSN.SetLastWrittenLSNForBlock(newLSN, tag)
		return nil
	}

	pageLSN := PageLSN(page)
	if pageLSN == lsn.Invalid {
		if isAllZero(page) {
			// PageIsNew: this is a relation extension, not a dirty
			// unlogged write.
			return nil
		}
		if l.EmptyHeapPage != nil && l.EmptyHeapPage(page) {
			return nil
		}
		return errors.Wrapf(ErrUnloggedDirtyEviction, "tag=%s", tag)
	}

	l.lastLSN.SetLastWrittenLSNForBlock(pageLSN, tag)
	return nil
}

func isSpecialFork(f blockid.ForkNumber) bool {
	return f == blockid.FSMForkNum || f == blockid.VisibilityMapForkNum
}

// LogNewPage is the relation-extension counterpart to Evict: a freshly
// extended page (real or synthetic gap-fill) always gets a forced
// full-page-image record, since it has no prior WAL history to fall
// back on, and returns the LSN it was stamped with so the caller can
// also publish a per-relation last-written LSN. force is accepted for
// call-site symmetry with Evict; extension always forces.
func (l *Logger) LogNewPage(tag blockid.BlockId, page Page, force bool) (lsn.LSN, error) {
	newLSN := l.wal.LogNewPage(tag, page, true)
	if err := l.wal.XLogFlush(newLSN); err != nil {
		return 0, errors.Wrap(err, "flush extend record")
	}
	l.lastLSN.SetLastWrittenLSNForBlock(newLSN, tag)
	return newLSN, nil
}
