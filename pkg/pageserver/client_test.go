package pageserver

import (
	"context"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverdb/pagestore-smgr/pkg/protocol"
)

type fakeTransport struct {
	sendResults  []bool
	sendCalls    int
	flushOK      bool
	receiveQueue []*protocol.Response
	receiveOK    bool
	receiveCalls int
}

func (f *fakeTransport) Send(ctx context.Context, req *protocol.Request) bool {
	idx := f.sendCalls
	f.sendCalls++
	if idx >= len(f.sendResults) {
		return true
	}
	return f.sendResults[idx]
}

func (f *fakeTransport) Flush(ctx context.Context) bool {
	return f.flushOK
}

func (f *fakeTransport) Receive(ctx context.Context) (*protocol.Response, bool) {
	f.receiveCalls++
	if len(f.receiveQueue) == 0 {
		return nil, f.receiveOK
	}
	resp := f.receiveQueue[0]
	f.receiveQueue = f.receiveQueue[1:]
	return resp, true
}

func TestClient_SendSucceedsFirstTry(t *testing.T) {
	ft := &fakeTransport{sendResults: []bool{true}}
	c := NewClient(ft, log.NewNopLogger(), nil)

	ok := c.Send(context.Background(), &protocol.Request{Tag: protocol.TagGetPageRequest})
	assert.True(t, ok)
	assert.Equal(t, 1, ft.sendCalls)
}

func TestClient_SendRetriesThenSucceeds(t *testing.T) {
	ft := &fakeTransport{sendResults: []bool{false, false, true}}
	c := NewClient(ft, log.NewNopLogger(), nil)

	ok := c.Send(context.Background(), &protocol.Request{Tag: protocol.TagGetPageRequest})
	assert.True(t, ok)
	assert.Equal(t, 3, ft.sendCalls)
}

func TestClient_SendGivesUpOnContextCancel(t *testing.T) {
	ft := &fakeTransport{sendResults: []bool{false, false, false, false, false, false, false, false, false, false}}
	c := NewClient(ft, log.NewNopLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok := c.Send(ctx, &protocol.Request{Tag: protocol.TagGetPageRequest})
	assert.False(t, ok)
}

func TestClient_Flush(t *testing.T) {
	ft := &fakeTransport{flushOK: true}
	c := NewClient(ft, log.NewNopLogger(), nil)
	assert.True(t, c.Flush(context.Background()))

	ft.flushOK = false
	assert.False(t, c.Flush(context.Background()))
}

func TestClient_ReceiveDisconnect(t *testing.T) {
	ft := &fakeTransport{receiveOK: false}
	c := NewClient(ft, log.NewNopLogger(), nil)

	resp, ok := c.Receive(context.Background())
	assert.False(t, ok)
	assert.Nil(t, resp)
}

func TestClient_ReceiveResponse(t *testing.T) {
	want := &protocol.Response{Tag: protocol.TagNBlocksResponse, NBlocks: 7}
	ft := &fakeTransport{receiveQueue: []*protocol.Response{want}}
	c := NewClient(ft, log.NewNopLogger(), nil)

	got, ok := c.Receive(context.Background())
	require.True(t, ok)
	assert.Equal(t, want, got)
}
