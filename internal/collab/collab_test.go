package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverdb/pagestore-smgr/pkg/blockid"
	"github.com/riverdb/pagestore-smgr/pkg/lsn"
)

func TestRelSizeCache(t *testing.T) {
	c := NewRelSizeCache(8)
	rf := blockid.RelFork{Tablespace: 1, Database: 2, Relation: 3}

	_, ok := c.GetCachedRelSize(rf)
	assert.False(t, ok)

	c.SetCachedRelSize(rf, 5)
	n, ok := c.GetCachedRelSize(rf)
	require.True(t, ok)
	assert.Equal(t, uint32(5), n)

	c.UpdateCachedRelSize(rf, 3) // lower value must not regress the cache
	n, _ = c.GetCachedRelSize(rf)
	assert.Equal(t, uint32(5), n)

	c.UpdateCachedRelSize(rf, 9)
	n, _ = c.GetCachedRelSize(rf)
	assert.Equal(t, uint32(9), n)

	c.ForgetCachedRelSize(rf)
	_, ok = c.GetCachedRelSize(rf)
	assert.False(t, ok)
}

func TestLastWrittenLSNNeverRegresses(t *testing.T) {
	l := NewLastWrittenLSN()
	tag := blockid.BlockId{Tablespace: 1, Database: 2, Relation: 3, Block: 4}

	l.SetLastWrittenLSNForBlock(lsn.LSN(100), tag)
	l.SetLastWrittenLSNForBlock(lsn.LSN(50), tag)
	assert.Equal(t, lsn.LSN(100), l.GetLastWrittenLSN(tag))
}

func TestLocalFileCache(t *testing.T) {
	f := NewLocalFileCache(4)
	tag := blockid.BlockId{Tablespace: 1, Database: 2, Relation: 3, Block: 4}
	assert.False(t, f.Contains(tag))

	var page [8192]byte
	page[0] = 0x42
	f.Write(tag, page)
	assert.True(t, f.Contains(tag))

	got, ok := f.Read(tag)
	require.True(t, ok)
	assert.Equal(t, byte(0x42), got[0])

	f.Evict(tag)
	assert.False(t, f.Contains(tag))
}

func TestWALFlushAndInsertPointers(t *testing.T) {
	w := NewWAL()
	tag := blockid.BlockId{Tablespace: 1, Database: 2, Relation: 3, Block: 4}
	var page [8192]byte

	l1 := w.LogNewPage(tag, page, false)
	l2 := w.LogNewPage(tag, page, false)
	assert.Greater(t, uint64(l2), uint64(l1))

	require.NoError(t, w.XLogFlush(l1))
	assert.Equal(t, l1, w.GetFlushRecPtr())

	// flushing to an earlier point must not regress the pointer.
	require.NoError(t, w.XLogFlush(lsn.LSN(1)))
	assert.Equal(t, l1, w.GetFlushRecPtr())
}

func TestLocalDiskCreateMarksEmptyRelationAsExisting(t *testing.T) {
	d := NewLocalDisk()
	rf := blockid.RelFork{Tablespace: 1, Database: 2, Relation: 3}

	assert.False(t, d.Exists(rf))
	require.NoError(t, d.Create(rf))
	assert.True(t, d.Exists(rf))

	n, err := d.NBlocks(rf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), n)

	// re-creating an already-populated relation must not truncate it.
	var page [8192]byte
	require.NoError(t, d.Write(rf.Block(0), page))
	require.NoError(t, d.Create(rf))
	n, err = d.NBlocks(rf)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n)
}

func TestLocalDiskRoundTrip(t *testing.T) {
	d := NewLocalDisk()
	rf := blockid.RelFork{Tablespace: 1, Database: 2, Relation: 3}
	tag := rf.Block(0)

	assert.False(t, d.Exists(rf))

	var page [8192]byte
	page[0] = 0x7
	require.NoError(t, d.Write(tag, page))
	assert.True(t, d.Exists(rf))

	n, err := d.NBlocks(rf)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n)

	got, err := d.Read(tag)
	require.NoError(t, err)
	assert.Equal(t, byte(0x7), got[0])

	require.NoError(t, d.Unlink(rf))
	assert.False(t, d.Exists(rf))
}
