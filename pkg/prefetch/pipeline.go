// Package prefetch implements the prefetch ring & hash index
// (component C) and the prefetch state machine (component D) from
// spec §2–§4.1: a per-backend ring buffer of in-flight page requests,
// matched to future reads by BlockId, obeying the LSN-freshness rules
// in §4.1.1.
//
// A Pipeline is owned by exactly one backend and is not safe for
// concurrent use (spec §5): the ring, the index, and the counters are
// mutated only by the goroutine driving Register/Wait/SetUnused. The
// three slot counts (in-flight, buffered, unused) are atomics; the ring
// positions and the prefetch LSN that Stats() also reports are plain
// fields, read without synchronization.
package prefetch

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/riverdb/pagestore-smgr/pkg/blockid"
	"github.com/riverdb/pagestore-smgr/pkg/lsn"
	"github.com/riverdb/pagestore-smgr/pkg/protocol"
)

// LSNOracle is component E, consumed by the pipeline to pick the LSN
// stamped on outgoing requests (spec §4.1.2, §4.3). requestlsn.Oracle
// implements this.
type LSNOracle interface {
	PickLSN(tag blockid.BlockId) (latest bool, at lsn.LSN)
}

// Sender is the subset of the pageserver façade (component B) the
// pipeline drives directly.
type Sender interface {
	Send(ctx context.Context, req *protocol.Request) bool
	Flush(ctx context.Context) bool
	Receive(ctx context.Context) (*protocol.Response, bool)
}

// ForceLSN pins the LSN a register call must use instead of consulting
// the oracle, per spec §4.1.1 / §4.7 (`read` always forces its LSN).
type ForceLSN struct {
	Latest bool
	LSN    lsn.LSN
}

// ErrDisconnected surfaces a Transport failure observed while waiting
// for a response (spec §7 taxonomy item 1). The caller must invoke
// HandleDisconnect before issuing further requests.
var ErrDisconnected = errors.New("prefetch: transport disconnected while waiting for a response")

// ErrInvariant marks an impossible ring state (duplicate tag on
// insert, etc.) — spec §7 item 4.
var ErrInvariant = errors.New("prefetch: invariant violation")

// Pipeline is PipelineState from spec §3.
type Pipeline struct {
	cfg    Config
	client Sender
	oracle LSNOracle
	logger log.Logger
	m      *metrics

	ring  []Slot
	index map[blockid.BlockId]*Slot

	ringLast    uint64
	ringReceive uint64
	ringFlush   uint64
	ringUnused  uint64

	prefetchLSN lsn.LSN

	nRequestsInflight  atomic.Int64
	nResponsesBuffered atomic.Int64
	nUnused            atomic.Int64
}

// NewPipeline constructs an empty pipeline of capacity cfg.ReadaheadBufferSize.
func NewPipeline(cfg Config, client Sender, oracle LSNOracle, logger log.Logger, reg prometheus.Registerer) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Pipeline{
		cfg:    cfg,
		client: client,
		oracle: oracle,
		logger: logger,
		m:      newMetrics(reg),
		ring:   make([]Slot, cfg.ReadaheadBufferSize),
		index:  make(map[blockid.BlockId]*Slot, cfg.ReadaheadBufferSize),
	}, nil
}

func (p *Pipeline) cap() uint64 { return uint64(len(p.ring)) }

func (p *Pipeline) slotAt(ringIndex uint64) *Slot {
	return &p.ring[ringIndex%p.cap()]
}

// Stats is a point-in-time, lock-free snapshot for introspection (the
// Go analogue of the original's debug prefetch-status counters).
type Stats struct {
	RingLast, RingReceive, RingFlush, RingUnused uint64
	RequestsInflight, ResponsesBuffered, Unused  int64
	PrefetchLSN                                  lsn.LSN
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		RingLast:          p.ringLast,
		RingReceive:       p.ringReceive,
		RingFlush:         p.ringFlush,
		RingUnused:        p.ringUnused,
		RequestsInflight:  p.nRequestsInflight.Load(),
		ResponsesBuffered: p.nResponsesBuffered.Load(),
		Unused:            p.nUnused.Load(),
		PrefetchLSN:       p.prefetchLSN,
	}
}

// RegisterBuffer implements spec §4.1.1. force is nil when the caller
// has no LSN requirement (a bare prefetch); for a forced read it
// carries the LSN the caller needs served.
func (p *Pipeline) RegisterBuffer(ctx context.Context, tag blockid.BlockId, force *ForceLSN) (uint64, error) {
	if existing, ok := p.index[tag]; ok {
		// A TAG_REMAINS slot carries no response data regardless of what
		// the caller is forcing: it must always be retired and reissued,
		// never handed out as a hit.
		if existing.Status == StatusTagRemains {
			if err := p.retire(existing); err != nil {
				return 0, err
			}
		} else if force != nil {
			reuse := false
			if force.Latest {
				reuse = existing.EffectiveRequestLSN >= force.LSN
			} else {
				reuse = existing.EffectiveRequestLSN == force.LSN
			}
			if reuse {
				p.m.hits.Inc()
				return existing.RingIndex, nil
			}
			// Can't cancel an unflushed outbound request: wait for it,
			// discard it, and register fresh.
			p.m.expired.Inc()
			if !p.WaitFor(ctx, existing.RingIndex) {
				return 0, ErrDisconnected
			}
			if err := p.retire(existing); err != nil {
				return 0, err
			}
		} else {
			p.m.hits.Inc()
			return existing.RingIndex, nil
		}
	}
	p.m.misses.Inc()

	if err := p.makeRoom(ctx); err != nil {
		return 0, err
	}

	slot := p.slotAt(p.ringUnused)
	slot.Tag = tag
	slot.Status = StatusRequested
	slot.RingIndex = p.ringUnused

	if err := p.issueRequest(ctx, slot, force); err != nil {
		slot.reset()
		return 0, err
	}

	if _, dup := p.index[tag]; dup {
		return 0, errors.Wrapf(ErrInvariant, "duplicate tag %s in prefetch index", tag)
	}
	p.index[tag] = slot
	p.nRequestsInflight.Inc()
	p.ringUnused++

	if p.cfg.FlushEveryNRequests > 0 && p.ringUnused-p.ringFlush >= uint64(p.cfg.FlushEveryNRequests) {
		p.client.Flush(ctx)
		p.ringFlush = p.ringUnused
	}

	return slot.RingIndex, nil
}

// issueRequest implements spec §4.1.2.
func (p *Pipeline) issueRequest(ctx context.Context, slot *Slot, force *ForceLSN) error {
	var latest bool
	var at lsn.LSN
	if force != nil {
		latest = force.Latest
		at = force.LSN
	} else {
		latest, at = p.oracle.PickLSN(slot.Tag)
		p.prefetchLSN = lsn.Max(p.prefetchLSN, at)
		at = p.prefetchLSN
	}
	slot.EffectiveRequestLSN = at

	req := &protocol.Request{
		Tag:        protocol.TagGetPageRequest,
		Latest:     latest,
		LSN:        at,
		Tablespace: slot.Tag.Tablespace,
		Database:   slot.Tag.Database,
		Relation:   slot.Tag.Relation,
		Fork:       slot.Tag.Fork,
		Block:      slot.Tag.Block,
	}

	var buf bytes.Buffer
	if err := protocol.EncodeRequest(&buf, req); err != nil {
		return errors.Wrap(err, "encode GetPage request")
	}

	if !p.client.Send(ctx, req) {
		return ErrDisconnected
	}
	return nil
}

// ringFull implements the exact off-box predicate from spec §4.1.1 /
// Open Question (b): `ring_last + CAP - 1 == ring_unused`, not the
// looser structural bound `ring_unused - ring_last <= CAP`.
func (p *Pipeline) ringFull() bool {
	return p.ringLast+p.cap()-1 == p.ringUnused
}

func (p *Pipeline) makeRoom(ctx context.Context) error {
	for p.ringFull() {
		if p.needsCompaction() {
			p.compact()
			if !p.ringFull() {
				continue
			}
		}
		oldest := p.slotAt(p.ringLast)
		if oldest.Status == StatusRequested {
			if !p.WaitFor(ctx, oldest.RingIndex) {
				return ErrDisconnected
			}
		}
		p.m.forcedRetires.Inc()
		if err := p.retire(oldest); err != nil {
			return err
		}
	}
	return nil
}

// needsCompaction implements ReceiveBufferNeedsCompaction, spec §4.1.3:
// the received window ([ring_last, ring_receive)) holds more holes
// (non-RECEIVED slots that aren't simply still-requested) than ⅛ of its
// buffered responses, using integer division.
func (p *Pipeline) needsCompaction() bool {
	windowLen := int64(p.ringReceive - p.ringLast)
	buffered := p.nResponsesBuffered.Load()
	holes := windowLen - buffered
	return buffered/8 < holes
}

// compact implements spec §4.1.3.
func (p *Pipeline) compact() {
	if p.ringReceive <= p.ringLast {
		return
	}
	lo := p.ringLast
	hi := p.ringReceive - 1

	for hi > lo {
		hiSlot := p.slotAt(hi)
		if hiSlot.Status != StatusReceived {
			hi--
			continue
		}
		for lo < hi && p.slotAt(lo).Status != StatusUnused {
			lo++
		}
		if lo >= hi {
			break
		}
		loSlot := p.slotAt(lo)
		loSlot.Tag = hiSlot.Tag
		loSlot.Status = StatusReceived
		loSlot.Response = hiSlot.Response
		loSlot.Err = hiSlot.Err
		loSlot.EffectiveRequestLSN = hiSlot.EffectiveRequestLSN
		loSlot.RingIndex = lo
		p.index[loSlot.Tag] = loSlot

		hiSlot.reset()
		hi--
		lo++
	}

	for p.ringLast < p.ringReceive && p.slotAt(p.ringLast).Status == StatusUnused {
		p.ringLast++
	}
	p.m.compactions.Inc()
}

// WaitFor implements spec §4.1.4. It blocks until the slot at
// ringIndex has a response (or a transport error occurs).
func (p *Pipeline) WaitFor(ctx context.Context, ringIndex uint64) bool {
	if ringIndex >= p.ringFlush {
		if !p.client.Flush(ctx) {
			return false
		}
		p.ringFlush = p.ringUnused
	}

	for p.ringReceive <= ringIndex {
		resp, ok := p.client.Receive(ctx)
		if !ok {
			return false
		}
		slot := p.slotAt(p.ringReceive)
		slot.Status = StatusReceived
		if resp.Tag == protocol.TagErrorResponse {
			slot.Err = fmt.Errorf("page server error for %s at lsn %s: %s", slot.Tag, slot.EffectiveRequestLSN, resp.ErrorMsg)
		} else {
			slot.Response = resp
		}
		p.nRequestsInflight.Dec()
		p.nResponsesBuffered.Inc()
		p.ringReceive++
	}
	return true
}

// TakeResponse returns the response/error owned by the slot at
// ringIndex, which must be RECEIVED. It leaves them in the slot and does
// not retire it; callers (the block adaptor surface) retire via
// SetUnused, which clears them, once they have copied the page out.
func (p *Pipeline) TakeResponse(ringIndex uint64) (*protocol.Response, error, bool) {
	slot := p.slotAt(ringIndex)
	if slot.Status != StatusReceived {
		return nil, nil, false
	}
	return slot.Response, slot.Err, true
}

// SetUnused retires the slot at ringIndex (spec §3 "Lifecycle"). It
// may not target a REQUESTED slot.
func (p *Pipeline) SetUnused(ringIndex uint64) error {
	slot := p.slotAt(ringIndex)
	return p.retire(slot)
}

func (p *Pipeline) retire(slot *Slot) error {
	if slot.Status == StatusRequested {
		return errors.Wrap(ErrInvariant, "cannot retire a REQUESTED slot without waiting for it first")
	}
	if slot.Status == StatusReceived {
		p.nResponsesBuffered.Dec()
	}
	delete(p.index, slot.Tag)
	wasAtLast := slot.RingIndex == p.ringLast
	slot.reset()

	if wasAtLast {
		for p.ringLast < p.ringUnused && p.slotAt(p.ringLast).Status == StatusUnused {
			p.ringLast++
		}
	}
	return nil
}

// HandleDisconnect implements spec §4.1.5.
func (p *Pipeline) HandleDisconnect() {
	p.m.disconnects.Inc()
	level.Warn(p.logger).Log("msg", "pipeline observed a transport disconnect, orphaning in-flight slots")

	for k := p.ringReceive; k < p.ringUnused; k++ {
		slot := p.slotAt(k)
		if slot.Status == StatusRequested {
			slot.Status = StatusTagRemains
			p.nRequestsInflight.Dec()
		}
	}
	p.ringReceive = p.ringUnused
	p.ringFlush = p.ringUnused
}

// Resize implements spec §4.1.6.
func (p *Pipeline) Resize(ctx context.Context, newCap int) bool {
	for p.nRequestsInflight.Load() > int64(newCap) {
		if !p.WaitFor(ctx, p.ringReceive) {
			return false
		}
	}

	type carried struct {
		tag    blockid.BlockId
		status SlotStatus
		resp   *protocol.Response
		errv   error
		at     lsn.LSN
	}

	var live []carried
	for k := p.ringLast; k < p.ringUnused; k++ {
		s := p.slotAt(k)
		if s.Status == StatusUnused {
			continue
		}
		live = append(live, carried{s.Tag, s.Status, s.Response, s.Err, s.EffectiveRequestLSN})
	}
	if len(live) > newCap {
		live = live[len(live)-newCap:]
	}

	newRing := make([]Slot, newCap)
	newIndex := make(map[blockid.BlockId]*Slot, len(live))
	newRingLast := p.ringUnused - uint64(len(live))

	var inflight, buffered int64
	numRequestedTrailing := int64(0)
	for i, c := range live {
		idx := newRingLast + uint64(i)
		s := &newRing[idx%uint64(newCap)]
		s.Tag = c.tag
		s.Status = c.status
		s.Response = c.resp
		s.Err = c.errv
		s.EffectiveRequestLSN = c.at
		s.RingIndex = idx
		newIndex[c.tag] = s

		switch c.status {
		case StatusRequested:
			inflight++
			numRequestedTrailing++
		case StatusReceived:
			buffered++
		}
	}

	p.ring = newRing
	p.index = newIndex
	p.ringLast = newRingLast
	p.ringReceive = p.ringUnused - uint64(numRequestedTrailing)
	// Conservative: treat the carried-over window as potentially
	// unflushed so the next WaitFor re-flushes rather than risk
	// waiting on a request that never reached the wire.
	p.ringFlush = p.ringReceive

	p.nRequestsInflight.Store(inflight)
	p.nResponsesBuffered.Store(buffered)
	p.nUnused.Store(0)

	return true
}
