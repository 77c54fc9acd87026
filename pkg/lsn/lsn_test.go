package lsn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdjustForPageServer_PageBoundary(t *testing.T) {
	l := LSN(XLogBlockSize*3 + sizeOfShortPHD)
	got := AdjustForPageServer(l)
	assert.Equal(t, LSN(XLogBlockSize*3), got)
}

func TestAdjustForPageServer_SegmentBoundary(t *testing.T) {
	l := LSN(WALSegmentSize*2 + sizeOfLongPHD)
	got := AdjustForPageServer(l)
	assert.Equal(t, LSN(WALSegmentSize*2), got)
}

func TestAdjustForPageServer_NoAdjustmentNeeded(t *testing.T) {
	l := LSN(12345)
	assert.Equal(t, l, AdjustForPageServer(l))
}

func TestMax(t *testing.T) {
	assert.Equal(t, LSN(10), Max(LSN(10), LSN(3)))
	assert.Equal(t, LSN(10), Max(LSN(3), LSN(10)))
}

func TestString(t *testing.T) {
	assert.Equal(t, "1/0", LSN(0x100000000).String())
}
