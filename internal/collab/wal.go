package collab

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/riverdb/pagestore-smgr/pkg/blockid"
	"github.com/riverdb/pagestore-smgr/pkg/lsn"
)

// WAL is an in-memory stand-in for the host engine's WAL subsystem:
// GetFlushRecPtr, GetXLogInsertRecPtr, XLogFlush, log_newpage. Every
// LogNewPage call advances the insert pointer by one page's worth of
// space, mirroring real WAL growth closely enough to exercise the
// adjustment and flush-ordering logic this module depends on.
type WAL struct {
	insertPtr atomic.Uint64
	flushPtr  atomic.Uint64
	mu        sync.Mutex
}

func NewWAL() *WAL { return &WAL{} }

func (w *WAL) GetFlushRecPtr() lsn.LSN      { return lsn.LSN(w.flushPtr.Load()) }
func (w *WAL) GetXLogInsertRecPtr() lsn.LSN { return lsn.LSN(w.insertPtr.Load()) }

func (w *WAL) XLogFlush(upto lsn.LSN) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if uint64(upto) > w.flushPtr.Load() {
		w.flushPtr.Store(uint64(upto))
	}
	return nil
}

func (w *WAL) LogNewPage(tag blockid.BlockId, page [8192]byte, forceImage bool) lsn.LSN {
	w.mu.Lock()
	defer w.mu.Unlock()
	next := w.insertPtr.Load() + lsn.XLogBlockSize
	w.insertPtr.Store(next)
	return lsn.LSN(next)
}

// RecoveryState is a plain, swappable in-memory stand-in for whether
// this backend is replaying WAL or is the walsender process.
type RecoveryState struct {
	inRecovery atomic.Bool
	walSender  atomic.Bool
}

func NewRecoveryState() *RecoveryState { return &RecoveryState{} }

func (r *RecoveryState) InRecovery() bool  { return r.inRecovery.Load() }
func (r *RecoveryState) IsWalSender() bool { return r.walSender.Load() }
func (r *RecoveryState) SetInRecovery(v bool) { r.inRecovery.Store(v) }
func (r *RecoveryState) SetWalSender(v bool)  { r.walSender.Store(v) }
