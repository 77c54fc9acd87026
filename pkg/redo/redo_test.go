package redo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverdb/pagestore-smgr/pkg/blockid"
	"github.com/riverdb/pagestore-smgr/pkg/lsn"
)

type fakeBuffers struct {
	resident map[blockid.BlockId]bool
}

func (f *fakeBuffers) WithPartitionLock(tag blockid.BlockId, fn func(resident bool)) {
	fn(f.resident[tag])
}

type fakeLastLSN struct {
	byBlock map[blockid.BlockId]lsn.LSN
	byRel   map[blockid.RelFork]lsn.LSN
}

func newFakeLastLSN() *fakeLastLSN {
	return &fakeLastLSN{byBlock: map[blockid.BlockId]lsn.LSN{}, byRel: map[blockid.RelFork]lsn.LSN{}}
}
func (f *fakeLastLSN) GetLastWrittenLSN(tag blockid.BlockId) lsn.LSN { return f.byBlock[tag] }
func (f *fakeLastLSN) SetLastWrittenLSNForBlock(l lsn.LSN, tag blockid.BlockId) {
	f.byBlock[tag] = l
}
func (f *fakeLastLSN) SetLastWrittenLSNForRelation(l lsn.LSN, rf blockid.RelFork) {
	f.byRel[rf] = l
}

type fakeLFC struct {
	evicted map[blockid.BlockId]bool
}

func (f *fakeLFC) Read(tag blockid.BlockId) ([8192]byte, bool) { return [8192]byte{}, false }
func (f *fakeLFC) Write(tag blockid.BlockId, page [8192]byte)  {}
func (f *fakeLFC) Contains(tag blockid.BlockId) bool           { return false }
func (f *fakeLFC) Evict(tag blockid.BlockId) {
	if f.evicted == nil {
		f.evicted = map[blockid.BlockId]bool{}
	}
	f.evicted[tag] = true
}

type fakeRelSize struct {
	sizes map[blockid.RelFork]uint32
}

func newFakeRelSize() *fakeRelSize { return &fakeRelSize{sizes: map[blockid.RelFork]uint32{}} }
func (f *fakeRelSize) GetCachedRelSize(rf blockid.RelFork) (uint32, bool) {
	n, ok := f.sizes[rf]
	return n, ok
}
func (f *fakeRelSize) SetCachedRelSize(rf blockid.RelFork, n uint32)    { f.sizes[rf] = n }
func (f *fakeRelSize) UpdateCachedRelSize(rf blockid.RelFork, n uint32) { f.sizes[rf] = n }
func (f *fakeRelSize) ForgetCachedRelSize(rf blockid.RelFork)           { delete(f.sizes, rf) }

func tag() blockid.BlockId {
	return blockid.BlockId{Tablespace: 1663, Database: 12345, Relation: 16384, Fork: blockid.MainForkNum, Block: 9}
}

// S7 / R8 — redo filter on a missing block.
func TestShouldSkip_AbsentBlockReturnsTrueAndPublishesLSN(t *testing.T) {
	buffers := &fakeBuffers{resident: map[blockid.BlockId]bool{}}
	lastLSN := newFakeLastLSN()
	lfc := &fakeLFC{}
	relsize := newFakeRelSize()

	f := New(buffers, lastLSN, lfc, relsize, nil)
	endLSN := lsn.LSN(0x1000)
	skip := f.ShouldSkip(tag(), endLSN)

	assert.True(t, skip)
	assert.Equal(t, endLSN, lastLSN.GetLastWrittenLSN(tag()), "R8: last-written LSN must dominate the record regardless of the return value")
	assert.True(t, lfc.evicted[tag()])
}

func TestShouldSkip_ResidentBlockReturnsFalseButStillPublishesLSN(t *testing.T) {
	buffers := &fakeBuffers{resident: map[blockid.BlockId]bool{tag(): true}}
	lastLSN := newFakeLastLSN()
	lfc := &fakeLFC{}
	relsize := newFakeRelSize()

	f := New(buffers, lastLSN, lfc, relsize, nil)
	endLSN := lsn.LSN(0x2000)
	skip := f.ShouldSkip(tag(), endLSN)

	require.False(t, skip)
	assert.Equal(t, endLSN, lastLSN.GetLastWrittenLSN(tag()))
	assert.False(t, lfc.evicted[tag()])
}

func TestShouldSkip_InvalidDatabaseAlwaysFalse(t *testing.T) {
	buffers := &fakeBuffers{resident: map[blockid.BlockId]bool{}}
	lastLSN := newFakeLastLSN()
	lfc := &fakeLFC{}
	relsize := newFakeRelSize()

	f := New(buffers, lastLSN, lfc, relsize, nil)
	sharedTag := tag()
	sharedTag.Database = InvalidDatabaseID

	skip := f.ShouldSkip(sharedTag, lsn.LSN(99))
	assert.False(t, skip)
	assert.Zero(t, lastLSN.GetLastWrittenLSN(sharedTag), "shared-catalog blocks are never touched by the filter")
}

func TestShouldSkip_BumpsKnownRelSizeOnGap(t *testing.T) {
	buffers := &fakeBuffers{resident: map[blockid.BlockId]bool{}}
	lastLSN := newFakeLastLSN()
	lfc := &fakeLFC{}
	relsize := newFakeRelSize()
	rf := blockid.RelFork{Tablespace: 1663, Database: 12345, Relation: 16384, Fork: blockid.MainForkNum}
	relsize.SetCachedRelSize(rf, 5)

	f := New(buffers, lastLSN, lfc, relsize, nil)
	f.ShouldSkip(tag(), lsn.LSN(0x3000)) // block 9, current size 5 -> bump to 10

	n, ok := relsize.GetCachedRelSize(rf)
	require.True(t, ok)
	assert.Equal(t, uint32(10), n)
	assert.Equal(t, lsn.LSN(0x3000), lastLSN.byRel[rf])
}

func TestShouldSkip_SeedsUnknownRelSizeViaNBlocksAtLSN(t *testing.T) {
	buffers := &fakeBuffers{resident: map[blockid.BlockId]bool{}}
	lastLSN := newFakeLastLSN()
	lfc := &fakeLFC{}
	relsize := newFakeRelSize()
	rf := blockid.RelFork{Tablespace: 1663, Database: 12345, Relation: 16384, Fork: blockid.MainForkNum}

	called := false
	nblocks := func(got blockid.RelFork, at lsn.LSN) (uint32, error) {
		called = true
		assert.Equal(t, rf, got)
		return 20, nil
	}

	f := New(buffers, lastLSN, lfc, relsize, nblocks)
	f.ShouldSkip(tag(), lsn.LSN(0x4000))

	assert.True(t, called)
	n, ok := relsize.GetCachedRelSize(rf)
	require.True(t, ok)
	assert.Equal(t, uint32(20), n)
}
