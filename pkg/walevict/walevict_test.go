package walevict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverdb/pagestore-smgr/pkg/blockid"
	"github.com/riverdb/pagestore-smgr/pkg/lsn"
)

type fakeRecovery struct{ inRecovery bool }

func (f fakeRecovery) InRecovery() bool  { return f.inRecovery }
func (f fakeRecovery) IsWalSender() bool { return false }

type fakeLastLSN struct {
	byBlock map[blockid.BlockId]lsn.LSN
}

func (f *fakeLastLSN) GetLastWrittenLSN(tag blockid.BlockId) lsn.LSN { return f.byBlock[tag] }
func (f *fakeLastLSN) SetLastWrittenLSNForBlock(l lsn.LSN, tag blockid.BlockId) {
	if f.byBlock == nil {
		f.byBlock = map[blockid.BlockId]lsn.LSN{}
	}
	f.byBlock[tag] = l
}
func (f *fakeLastLSN) SetLastWrittenLSNForRelation(l lsn.LSN, rf blockid.RelFork) {}

type fakeWAL struct {
	flushRecPtr lsn.LSN
	flushedTo   lsn.LSN
	loggedPage  bool
	nextLSN     lsn.LSN
}

func (f *fakeWAL) GetFlushRecPtr() lsn.LSN      { return f.flushRecPtr }
func (f *fakeWAL) GetXLogInsertRecPtr() lsn.LSN { return f.flushRecPtr }
func (f *fakeWAL) XLogFlush(upto lsn.LSN) error {
	f.flushedTo = upto
	f.flushRecPtr = upto
	return nil
}
func (f *fakeWAL) LogNewPage(tag blockid.BlockId, page [8192]byte, forceImage bool) lsn.LSN {
	f.loggedPage = true
	return f.nextLSN
}

func withLSN(at lsn.LSN) Page {
	var p Page
	for i := 7; i >= 0; i-- {
		p[i] = byte(at)
		at >>= 8
	}
	return p
}

func tag(fork blockid.ForkNumber) blockid.BlockId {
	return blockid.BlockId{Tablespace: 1, Database: 2, Relation: 3, Fork: fork, Block: 4}
}

// S5 — eviction of FSM fork.
func TestEvict_FSMForkAlwaysLogsFullPageImage(t *testing.T) {
	wal := &fakeWAL{nextLSN: lsn.LSN(999)}
	ll := &fakeLastLSN{}
	logger := New(fakeRecovery{}, ll, wal, nil)

	page := withLSN(0)
	err := logger.Evict(tag(blockid.FSMForkNum), page, false)
	require.NoError(t, err)
	assert.True(t, wal.loggedPage)
	assert.Equal(t, lsn.LSN(999), wal.flushedTo)
	assert.Equal(t, lsn.LSN(999), ll.byBlock[tag(blockid.FSMForkNum)])
}

func TestEvict_ForceFlagLogsFullPageImage(t *testing.T) {
	wal := &fakeWAL{nextLSN: lsn.LSN(555)}
	ll := &fakeLastLSN{}
	logger := New(fakeRecovery{}, ll, wal, nil)

	err := logger.Evict(tag(blockid.MainForkNum), withLSN(0), true)
	require.NoError(t, err)
	assert.True(t, wal.loggedPage)
}

func TestEvict_InRecoverySkipsForcedFullPageImage(t *testing.T) {
	wal := &fakeWAL{}
	ll := &fakeLastLSN{}
	logger := New(fakeRecovery{inRecovery: true}, ll, wal, nil)

	page := withLSN(0)
	err := logger.Evict(tag(blockid.FSMForkNum), page, false)
	require.NoError(t, err, "an all-zero page is still a no-op even on the fallback path")
	assert.False(t, wal.loggedPage)
}

func TestEvict_AllZeroPageIsRelationExtension(t *testing.T) {
	wal := &fakeWAL{}
	ll := &fakeLastLSN{}
	logger := New(fakeRecovery{}, ll, wal, nil)

	var page Page // all zero
	err := logger.Evict(tag(blockid.MainForkNum), page, false)
	require.NoError(t, err)
	assert.False(t, wal.loggedPage)
	assert.Empty(t, ll.byBlock)
}

func TestEvict_EmptyHeapPageIsIgnored(t *testing.T) {
	wal := &fakeWAL{}
	ll := &fakeLastLSN{}
	isEmpty := func(p Page) bool { return p[100] == 0xEE }
	logger := New(fakeRecovery{}, ll, wal, isEmpty)

	page := withLSN(0)
	page[100] = 0xEE
	err := logger.Evict(tag(blockid.MainForkNum), page, false)
	require.NoError(t, err)
	assert.False(t, wal.loggedPage)
}

// S6 — zero-LSN dirty eviction panics (surfaced here as an error the
// caller is expected to escalate to a panic, per §7 item 4).
func TestEvict_ZeroLSNDirtyPageIsInvariantViolation(t *testing.T) {
	wal := &fakeWAL{}
	ll := &fakeLastLSN{}
	isEmpty := func(p Page) bool { return false }
	logger := New(fakeRecovery{}, ll, wal, isEmpty)

	page := withLSN(0)
	page[200] = 0x42 // dirty, not all-zero, not recognized as an empty heap page
	err := logger.Evict(tag(blockid.MainForkNum), page, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnloggedDirtyEviction)
}

func TestEvict_AlreadyLoggedPagePublishesItsOwnLSN(t *testing.T) {
	wal := &fakeWAL{}
	ll := &fakeLastLSN{}
	logger := New(fakeRecovery{}, ll, wal, nil)

	page := withLSN(12345)
	err := logger.Evict(tag(blockid.MainForkNum), page, false)
	require.NoError(t, err)
	assert.False(t, wal.loggedPage)
	assert.Equal(t, lsn.LSN(12345), ll.byBlock[tag(blockid.MainForkNum)])
}
