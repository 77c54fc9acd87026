package collab

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/riverdb/pagestore-smgr/pkg/blockid"
)

var ErrBlockNotFound = errors.New("localdisk: block not found")

// LocalDisk is an in-memory stand-in for the local disk fallback used
// in full for TEMP/UNLOGGED relations.
type LocalDisk struct {
	mu     sync.Mutex
	sizes  map[blockid.RelFork]uint32
	pages  map[blockid.BlockId][8192]byte
}

func NewLocalDisk() *LocalDisk {
	return &LocalDisk{
		sizes: make(map[blockid.RelFork]uint32),
		pages: make(map[blockid.BlockId][8192]byte),
	}
}

// Create establishes rf as a zero-block relation, the local-disk
// counterpart to mdcreate: a bare Extend(rf, 0) would be a no-op
// against an unset map entry, so Exists would still report false for a
// genuinely new, empty relation without this.
func (d *LocalDisk) Create(rf blockid.RelFork) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sizes[rf]; !ok {
		d.sizes[rf] = 0
	}
	return nil
}

func (d *LocalDisk) Exists(rf blockid.RelFork) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.sizes[rf]
	return ok
}

func (d *LocalDisk) NBlocks(rf blockid.RelFork) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sizes[rf], nil
}

func (d *LocalDisk) Read(tag blockid.BlockId) ([8192]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	page, ok := d.pages[tag]
	if !ok {
		return [8192]byte{}, errors.Wrapf(ErrBlockNotFound, "tag=%s", tag)
	}
	return page, nil
}

func (d *LocalDisk) Write(tag blockid.BlockId, page [8192]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[tag] = page
	rf := blockid.RelFork{Tablespace: tag.Tablespace, Database: tag.Database, Relation: tag.Relation, Fork: tag.Fork}
	if tag.Block+1 > d.sizes[rf] {
		d.sizes[rf] = tag.Block + 1
	}
	return nil
}

func (d *LocalDisk) Extend(rf blockid.RelFork, nblocks uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if nblocks > d.sizes[rf] {
		d.sizes[rf] = nblocks
	}
	return nil
}

func (d *LocalDisk) Truncate(rf blockid.RelFork, nblocks uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sizes[rf] = nblocks
	return nil
}

func (d *LocalDisk) Unlink(rf blockid.RelFork) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sizes, rf)
	for tag := range d.pages {
		if tag.Tablespace == rf.Tablespace && tag.Database == rf.Database && tag.Relation == rf.Relation && tag.Fork == rf.Fork {
			delete(d.pages, tag)
		}
	}
	return nil
}
