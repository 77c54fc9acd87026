package pageserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/riverdb/pagestore-smgr/pkg/protocol"
)

// TCPTransport is a length-prefixed-frame Transport over a plain
// net.Conn. It is the only concrete Transport this module ships;
// everything else in this package treats Transport as a collaborator
// supplied by the caller. Framing is a 4-byte big-endian length
// followed by exactly that many message bytes, matching the style of
// the wire codec it carries (pkg/protocol): no delimiter scanning, no
// variable-length prefix encoding.
type TCPTransport struct {
	conn net.Conn
	w    *bufio.Writer

	mu sync.Mutex
	rd *bufio.Reader
}

// DialTCP opens a connection to the page server at addr. The caller is
// responsible for closing the returned transport.
func DialTCP(ctx context.Context, addr string) (*TCPTransport, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewTCPTransport(conn), nil
}

// NewTCPTransport wraps an already-established connection.
func NewTCPTransport(conn net.Conn) *TCPTransport {
	return &TCPTransport{
		conn: conn,
		w:    bufio.NewWriter(conn),
		rd:   bufio.NewReader(conn),
	}
}

func (t *TCPTransport) Close() error { return t.conn.Close() }

func (t *TCPTransport) Send(ctx context.Context, req *protocol.Request) bool {
	var buf bytes.Buffer
	if err := protocol.EncodeRequest(&buf, req); err != nil {
		return false
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	}
	if _, err := t.w.Write(lenPrefix[:]); err != nil {
		return false
	}
	if _, err := t.w.Write(buf.Bytes()); err != nil {
		return false
	}
	return true
}

func (t *TCPTransport) Flush(ctx context.Context) bool {
	return t.w.Flush() == nil
}

func (t *TCPTransport) Receive(ctx context.Context) (*protocol.Response, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	}

	var lenPrefix [4]byte
	if _, err := io.ReadFull(t.rd, lenPrefix[:]); err != nil {
		return nil, false
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(t.rd, body); err != nil {
		return nil, false
	}
	resp, err := protocol.DecodeResponse(body)
	if err != nil {
		return nil, false
	}
	return resp, true
}
