// Package blockid defines the identity used throughout the storage
// adaptor: a tuple of (tablespace, database, relation, fork, block).
package blockid

import (
	"fmt"
)

// ForkNumber mirrors the engine's fork numbering: the main data fork
// plus the free-space map and visibility map forks that the eviction
// WAL-logger (pkg/walevict) treats specially.
type ForkNumber uint8

const (
	MainForkNum ForkNumber = iota
	FSMForkNum
	VisibilityMapForkNum
	InitForkNum
)

func (f ForkNumber) String() string {
	switch f {
	case MainForkNum:
		return "main"
	case FSMForkNum:
		return "fsm"
	case VisibilityMapForkNum:
		return "vm"
	case InitForkNum:
		return "init"
	default:
		return fmt.Sprintf("fork(%d)", uint8(f))
	}
}

// BlockId is the key for the prefetch index (§3 of the spec) and the
// addressing tuple for every request/response on the wire. It is used
// directly as a Go map key, so equality is bitwise over the tuple.
type BlockId struct {
	Tablespace uint32
	Database   uint32
	Relation   uint32
	Fork       ForkNumber
	Block      uint32
}

// Zero is the sentinel relation (0/0/0) that smgr.Exists short-circuits
// to "does not exist" without a round trip, per spec §4.7.
func (b BlockId) IsZeroRelation() bool {
	return b.Tablespace == 0 && b.Database == 0 && b.Relation == 0
}

func (b BlockId) String() string {
	return fmt.Sprintf("%d/%d/%d.%s/%d", b.Tablespace, b.Database, b.Relation, b.Fork, b.Block)
}

// RelFork identifies a relation fork without a specific block, used by
// exists/nblocks/truncate which operate on the whole fork.
type RelFork struct {
	Tablespace uint32
	Database   uint32
	Relation   uint32
	Fork       ForkNumber
}

func (rf RelFork) String() string {
	return fmt.Sprintf("%d/%d/%d.%s", rf.Tablespace, rf.Database, rf.Relation, rf.Fork)
}

// Block pins this RelFork to a specific block number, building the
// BlockId used as a prefetch tag.
func (rf RelFork) Block(blockNumber uint32) BlockId {
	return BlockId{
		Tablespace: rf.Tablespace,
		Database:   rf.Database,
		Relation:   rf.Relation,
		Fork:       rf.Fork,
		Block:      blockNumber,
	}
}
