package pageserver

import (
	"context"
	"errors"

	"github.com/riverdb/pagestore-smgr/pkg/protocol"
)

// Transport is the wire-level collaborator named in spec §6.2. It is
// consumed, not implemented, by this module: connect/send/receive/
// flush live in the environment (the real network connection to the
// page server). Client (below) is the bounded façade (component B)
// built on top of it.
type Transport interface {
	// Send enqueues req on the outbound buffer. It does not guarantee
	// the bytes have left the process; Flush does. Returns false on
	// any I/O failure, including a connection that is already down.
	Send(ctx context.Context, req *protocol.Request) bool

	// Flush forces anything buffered by Send out onto the wire.
	Flush(ctx context.Context) bool

	// Receive blocks for the next response in FIFO order. ok is false
	// on disconnect or I/O error; resp is nil in that case.
	Receive(ctx context.Context) (resp *protocol.Response, ok bool)
}

// ErrDisconnected is the failure Client.Send's retry loop reports to its
// circuit breaker when it gives up. Client methods themselves report a
// Transport failure as a false return, not as this error.
// Pipeline.HandleDisconnect (spec §4.1.5) is the only correct response
// to such a failure.
var ErrDisconnected = errors.New("pageserver: transport disconnected")

// ErrCircuitOpen names the state in which the façade's circuit breaker
// is open. No Client method returns it: while the breaker is open, Send
// returns false, and Unavailable reports true.
var ErrCircuitOpen = errors.New("pageserver: circuit open, not attempting send")
