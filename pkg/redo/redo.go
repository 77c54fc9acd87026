// Package redo implements the redo read-buffer filter (component H,
// spec §4.5): called by the WAL redo driver to decide whether a block
// referenced by a record can skip its read+apply step.
package redo

import (
	"sync"

	"github.com/riverdb/pagestore-smgr/pkg/blockid"
	"github.com/riverdb/pagestore-smgr/pkg/collab"
	"github.com/riverdb/pagestore-smgr/pkg/lsn"
)

// SharedBuffers answers whether a block is currently resident, guarded
// by the buffer-mapping partition lock (spec §4.5 step 2/4). A real
// implementation holds one lock per partition; this interface exposes
// only the critical section the filter needs.
type SharedBuffers interface {
	// WithPartitionLock runs fn while holding the shared lock for the
	// partition that (rel,fork,block) hashes to, passing whether the
	// block is currently resident.
	WithPartitionLock(tag blockid.BlockId, fn func(resident bool))
}

// Filter implements component H against the collaborators in §6.3.
type Filter struct {
	buffers  SharedBuffers
	lastLSN  collab.LastWrittenLSN
	lfc      collab.LocalFileCache
	relsize  collab.RelSizeCache
	nblocksAtLSN func(rf blockid.RelFork, at lsn.LSN) (uint32, error)

	mu sync.Mutex
}

func New(buffers SharedBuffers, lastLSN collab.LastWrittenLSN, lfc collab.LocalFileCache, relsize collab.RelSizeCache, nblocksAtLSN func(blockid.RelFork, lsn.LSN) (uint32, error)) *Filter {
	return &Filter{buffers: buffers, lastLSN: lastLSN, lfc: lfc, relsize: relsize, nblocksAtLSN: nblocksAtLSN}
}

// InvalidDatabaseID matches the shared-catalog sentinel (database id
// 0) that step 1 of §4.5 checks for.
const InvalidDatabaseID uint32 = 0

// ShouldSkip implements spec §4.5. endOfRecordLSN is the LSN one past
// the end of the record being replayed.
func (f *Filter) ShouldSkip(tag blockid.BlockId, endOfRecordLSN lsn.LSN) bool {
	if tag.Database == InvalidDatabaseID {
		return false
	}

	var absent bool
	f.buffers.WithPartitionLock(tag, func(resident bool) {
		// Step 3 is unconditional and happens before the lock is
		// released: any future reader must see an LSN that dominates
		// this record.
		f.lastLSN.SetLastWrittenLSNForBlock(endOfRecordLSN, tag)

		absent = !resident
		if absent {
			f.lfc.Evict(tag)
		}
	})

	rf := blockid.RelFork{Tablespace: tag.Tablespace, Database: tag.Database, Relation: tag.Relation, Fork: tag.Fork}
	f.mu.Lock()
	defer f.mu.Unlock()
	if size, ok := f.relsize.GetCachedRelSize(rf); ok {
		if tag.Block+1 > size {
			f.relsize.UpdateCachedRelSize(rf, tag.Block+1)
			f.lastLSN.SetLastWrittenLSNForRelation(endOfRecordLSN, rf)
		}
	} else if f.nblocksAtLSN != nil {
		if n, err := f.nblocksAtLSN(rf, endOfRecordLSN); err == nil {
			f.relsize.SetCachedRelSize(rf, n)
			f.lastLSN.SetLastWrittenLSNForRelation(endOfRecordLSN, rf)
		}
	}

	return absent
}
