// Package protocol implements the wire codec between this adaptor and
// the remote page server (spec §6.1, component A): five request kinds
// and five response kinds, fixed-width network-order integers, a
// leading one-byte tag per message.
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/riverdb/pagestore-smgr/pkg/blockid"
	"github.com/riverdb/pagestore-smgr/pkg/lsn"
)

// BlockSize is BLCKSZ: the fixed size of a page payload.
const BlockSize = 8192

type RequestTag uint8

const (
	TagExistsRequest RequestTag = iota + 1
	TagNBlocksRequest
	TagDbSizeRequest
	TagGetPageRequest
	tagReservedRequest // reserved, per spec §4.2; never produced or accepted
)

type ResponseTag uint8

const (
	TagExistsResponse ResponseTag = iota + 1
	TagNBlocksResponse
	TagGetPageResponse
	TagDbSizeResponse
	TagErrorResponse
)

// Request is the sum type over the four live request kinds.
type Request struct {
	Tag    RequestTag
	Latest bool
	LSN    lsn.LSN

	// Exists, NBlocks, GetPage
	Tablespace uint32
	Database   uint32
	Relation   uint32
	Fork       blockid.ForkNumber

	// GetPage only
	Block uint32
}

// Response is the sum type over the five response kinds.
type Response struct {
	Tag ResponseTag

	Exists   bool
	NBlocks  uint32
	Page     [BlockSize]byte
	DbSizeB  int64
	ErrorMsg string
}

// ErrProtocol is the taxonomy's "protocol error": an unknown tag or
// trailing bytes after decode. Per spec §7 this is fatal to the
// backend; callers should not attempt to recover a stream after it.
var ErrProtocol = fmt.Errorf("protocol error")

func protoErrf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

// EncodeRequest writes the wire form of req. The caller owns req and
// may reuse it after this call returns.
func EncodeRequest(buf *bytes.Buffer, req *Request) error {
	buf.WriteByte(byte(req.Tag))

	switch req.Tag {
	case TagExistsRequest, TagNBlocksRequest, TagGetPageRequest:
		writeBool(buf, req.Latest)
		writeU64(buf, uint64(req.LSN))
		writeU32(buf, req.Tablespace)
		writeU32(buf, req.Database)
		writeU32(buf, req.Relation)
		buf.WriteByte(byte(req.Fork))
		if req.Tag == TagGetPageRequest {
			writeU32(buf, req.Block)
		}
	case TagDbSizeRequest:
		writeBool(buf, req.Latest)
		writeU64(buf, uint64(req.LSN))
		writeU32(buf, req.Database)
	default:
		return protoErrf("encode: unknown request tag %d", req.Tag)
	}
	return nil
}

// DecodeRequest decodes exactly one message from b. Any trailing bytes
// after the message is fully parsed, or an unrecognized tag, is a
// protocol error (spec §4.2, §6.1).
func DecodeRequest(b []byte) (*Request, error) {
	if len(b) < 1 {
		return nil, protoErrf("decode: empty buffer")
	}
	tag := RequestTag(b[0])
	r := bytes.NewReader(b[1:])
	req := &Request{Tag: tag}

	switch tag {
	case TagExistsRequest, TagNBlocksRequest, TagGetPageRequest:
		var err error
		if req.Latest, err = readBool(r); err != nil {
			return nil, protoErrf("decode latest: %v", err)
		}
		var v uint64
		if err = binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, protoErrf("decode lsn: %v", err)
		}
		req.LSN = lsn.LSN(v)
		if req.Tablespace, err = readU32(r); err != nil {
			return nil, protoErrf("decode tablespace: %v", err)
		}
		if req.Database, err = readU32(r); err != nil {
			return nil, protoErrf("decode database: %v", err)
		}
		if req.Relation, err = readU32(r); err != nil {
			return nil, protoErrf("decode relation: %v", err)
		}
		forkByte, err := r.ReadByte()
		if err != nil {
			return nil, protoErrf("decode fork: %v", err)
		}
		req.Fork = blockid.ForkNumber(forkByte)
		if tag == TagGetPageRequest {
			if req.Block, err = readU32(r); err != nil {
				return nil, protoErrf("decode block: %v", err)
			}
		}
	case TagDbSizeRequest:
		var err error
		if req.Latest, err = readBool(r); err != nil {
			return nil, protoErrf("decode latest: %v", err)
		}
		var v uint64
		if err = binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, protoErrf("decode lsn: %v", err)
		}
		req.LSN = lsn.LSN(v)
		if req.Database, err = readU32(r); err != nil {
			return nil, protoErrf("decode database: %v", err)
		}
	default:
		return nil, protoErrf("decode: unknown request tag %d", tag)
	}

	if r.Len() != 0 {
		return nil, protoErrf("decode: %d trailing bytes", r.Len())
	}
	return req, nil
}

// EncodeResponse writes the wire form of resp.
func EncodeResponse(buf *bytes.Buffer, resp *Response) error {
	buf.WriteByte(byte(resp.Tag))

	switch resp.Tag {
	case TagExistsResponse:
		writeBool(buf, resp.Exists)
	case TagNBlocksResponse:
		writeU32(buf, resp.NBlocks)
	case TagGetPageResponse:
		buf.Write(resp.Page[:])
	case TagDbSizeResponse:
		writeI64(buf, resp.DbSizeB)
	case TagErrorResponse:
		buf.WriteString(resp.ErrorMsg)
		buf.WriteByte(0)
	default:
		return protoErrf("encode: unknown response tag %d", resp.Tag)
	}
	return nil
}

// DecodeResponse decodes exactly one message from b.
func DecodeResponse(b []byte) (*Response, error) {
	if len(b) < 1 {
		return nil, protoErrf("decode: empty buffer")
	}
	tag := ResponseTag(b[0])
	body := b[1:]
	resp := &Response{Tag: tag}

	switch tag {
	case TagExistsResponse:
		if len(body) != 1 {
			return nil, protoErrf("decode exists: want 1 byte, got %d", len(body))
		}
		resp.Exists = body[0] != 0
	case TagNBlocksResponse:
		if len(body) != 4 {
			return nil, protoErrf("decode nblocks: want 4 bytes, got %d", len(body))
		}
		resp.NBlocks = binary.BigEndian.Uint32(body)
	case TagGetPageResponse:
		if len(body) != BlockSize {
			return nil, protoErrf("decode page: want %d bytes, got %d", BlockSize, len(body))
		}
		copy(resp.Page[:], body)
	case TagDbSizeResponse:
		if len(body) != 8 {
			return nil, protoErrf("decode dbsize: want 8 bytes, got %d", len(body))
		}
		resp.DbSizeB = int64(binary.BigEndian.Uint64(body))
	case TagErrorResponse:
		nul := bytes.IndexByte(body, 0)
		if nul < 0 {
			return nil, protoErrf("decode error: missing NUL terminator")
		}
		if nul != len(body)-1 {
			return nil, protoErrf("decode error: %d trailing bytes after NUL", len(body)-nul-1)
		}
		resp.ErrorMsg = string(body[:nul])
	default:
		return nil, protoErrf("decode: unknown response tag %d", tag)
	}
	return resp, nil
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func readU32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(tmp[:]), nil
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func writeI64(buf *bytes.Buffer, v int64) {
	writeU64(buf, uint64(v))
}
