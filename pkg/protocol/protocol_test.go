package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverdb/pagestore-smgr/pkg/blockid"
	"github.com/riverdb/pagestore-smgr/pkg/lsn"
)

func TestRequestRoundTrip(t *testing.T) {
	cases := []*Request{
		{Tag: TagExistsRequest, Latest: true, LSN: 0, Tablespace: 1663, Database: 12345, Relation: 16384, Fork: blockid.MainForkNum},
		{Tag: TagNBlocksRequest, Latest: false, LSN: lsn.LSN(0xABCD), Tablespace: 1, Database: 2, Relation: 3, Fork: blockid.FSMForkNum},
		{Tag: TagDbSizeRequest, Latest: true, LSN: lsn.LSN(99), Database: 42},
		{Tag: TagGetPageRequest, Latest: false, LSN: lsn.LSN(123456789), Tablespace: 1663, Database: 5, Relation: 100, Fork: blockid.VisibilityMapForkNum, Block: 42},
	}

	for _, req := range cases {
		var buf bytes.Buffer
		require.NoError(t, EncodeRequest(&buf, req))

		got, err := DecodeRequest(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, req, got)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	page := [BlockSize]byte{}
	page[0] = 0xFF
	page[BlockSize-1] = 0x42

	cases := []*Response{
		{Tag: TagExistsResponse, Exists: true},
		{Tag: TagExistsResponse, Exists: false},
		{Tag: TagNBlocksResponse, NBlocks: 123456},
		{Tag: TagGetPageResponse, Page: page},
		{Tag: TagDbSizeResponse, DbSizeB: -1},
		{Tag: TagErrorResponse, ErrorMsg: "page not found"},
	}

	for _, resp := range cases {
		var buf bytes.Buffer
		require.NoError(t, EncodeResponse(&buf, resp))

		got, err := DecodeResponse(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, resp, got)
	}
}

func TestDecodeRequest_UnknownTag(t *testing.T) {
	_, err := DecodeRequest([]byte{99})
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecodeRequest_TrailingBytes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeRequest(&buf, &Request{Tag: TagDbSizeRequest, Database: 1}))
	buf.WriteByte(0xFF)

	_, err := DecodeRequest(buf.Bytes())
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecodeResponse_UnknownTag(t *testing.T) {
	_, err := DecodeResponse([]byte{0})
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecodeResponse_ErrorMissingTerminator(t *testing.T) {
	body := append([]byte{byte(TagErrorResponse)}, []byte("oops")...)
	_, err := DecodeResponse(body)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecodeResponse_TrailingAfterPage(t *testing.T) {
	body := make([]byte, 1+BlockSize+1)
	body[0] = byte(TagGetPageResponse)
	_, err := DecodeResponse(body)
	assert.ErrorIs(t, err, ErrProtocol)
}
