package collab

import (
	"sync"

	"github.com/riverdb/pagestore-smgr/pkg/blockid"
	"github.com/riverdb/pagestore-smgr/pkg/lsn"
)

// LastWrittenLSN is a plain-map, mutex-guarded last-written-LSN
// service: GetLastWrittenLSN / SetLastWrittenLSNForBlock /
// SetLastWrittenLSNForRelation.
type LastWrittenLSN struct {
	mu       sync.Mutex
	byBlock  map[blockid.BlockId]lsn.LSN
	byRelMax map[blockid.RelFork]lsn.LSN
}

func NewLastWrittenLSN() *LastWrittenLSN {
	return &LastWrittenLSN{
		byBlock:  make(map[blockid.BlockId]lsn.LSN),
		byRelMax: make(map[blockid.RelFork]lsn.LSN),
	}
}

func (l *LastWrittenLSN) GetLastWrittenLSN(tag blockid.BlockId) lsn.LSN {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.byBlock[tag]
}

func (l *LastWrittenLSN) SetLastWrittenLSNForBlock(at lsn.LSN, tag blockid.BlockId) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byBlock[tag] = lsn.Max(l.byBlock[tag], at)
}

func (l *LastWrittenLSN) SetLastWrittenLSNForRelation(at lsn.LSN, rf blockid.RelFork) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byRelMax[rf] = lsn.Max(l.byRelMax[rf], at)
}
