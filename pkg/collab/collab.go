// Package collab declares the collaborator interfaces named in §6.3:
// the relation-size cache, the last-written-LSN service, the local
// file cache, the WAL subsystem, and the local-disk fallback for
// temp/unlogged relations. These are consumed, not implemented, by the
// rest of this module; internal/collab ships default in-memory
// implementations for testing.
package collab

import (
	"github.com/riverdb/pagestore-smgr/pkg/blockid"
	"github.com/riverdb/pagestore-smgr/pkg/lsn"
)

// RelSizeCache is get/set/update/forget_cached_relsize.
type RelSizeCache interface {
	GetCachedRelSize(rf blockid.RelFork) (nblocks uint32, ok bool)
	SetCachedRelSize(rf blockid.RelFork, nblocks uint32)
	UpdateCachedRelSize(rf blockid.RelFork, nblocks uint32)
	ForgetCachedRelSize(rf blockid.RelFork)
}

// LastWrittenLSN is GetLastWrittenLSN / SetLastWrittenLSNForBlock /
// SetLastWrittenLSNForRelation.
type LastWrittenLSN interface {
	GetLastWrittenLSN(tag blockid.BlockId) lsn.LSN
	SetLastWrittenLSNForBlock(l lsn.LSN, tag blockid.BlockId)
	SetLastWrittenLSNForRelation(l lsn.LSN, rf blockid.RelFork)
}

// LocalFileCache is lfc_read / lfc_write / lfc_cache_contains / lfc_evict.
type LocalFileCache interface {
	Read(tag blockid.BlockId) (page [8192]byte, ok bool)
	Write(tag blockid.BlockId, page [8192]byte)
	Contains(tag blockid.BlockId) bool
	Evict(tag blockid.BlockId)
}

// WAL is the subset of the WAL subsystem the adaptor consults:
// GetFlushRecPtr, GetXLogInsertRecPtr, XLogFlush, log_newpage.
type WAL interface {
	GetFlushRecPtr() lsn.LSN
	GetXLogInsertRecPtr() lsn.LSN
	XLogFlush(upto lsn.LSN) error
	LogNewPage(tag blockid.BlockId, page [8192]byte, forceImage bool) lsn.LSN
}

// RecoveryState answers the two process-mode questions the request-LSN
// oracle (§4.3) and the eviction WAL-logger (§4.4) branch on.
type RecoveryState interface {
	InRecovery() bool
	IsWalSender() bool
}

// LocalDisk is the local disk fallback used in full for TEMP/UNLOGGED
// relations and partially for relpersistence-0 probing (§4.7).
type LocalDisk interface {
	Create(rf blockid.RelFork) error
	Exists(rf blockid.RelFork) bool
	NBlocks(rf blockid.RelFork) (uint32, error)
	Read(tag blockid.BlockId) ([8192]byte, error)
	Write(tag blockid.BlockId, page [8192]byte) error
	Extend(rf blockid.RelFork, nblocks uint32) error
	Truncate(rf blockid.RelFork, nblocks uint32) error
	Unlink(rf blockid.RelFork) error
}
