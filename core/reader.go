package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/bytebufferpool"

	"github.com/rtpsfix/rtpsd/admin"
	"github.com/rtpsfix/rtpsd/export"
)

// Stream is the lazy, cancellation-safe sequence of delivered samples a
// StatefulReader exposes to callers. The Reactor is the sole producer;
// Next suspends until a sample is available or ctx is done, and a Stream
// left un-drained and garbage collected never corrupts the Reader's
// HistoryCache -- it is just a forgotten consumer of a channel the
// Reactor keeps feeding into a bounded buffer.
type Stream struct {
	ch chan *CacheChange
}

func newStream() *Stream {
	return &Stream{ch: make(chan *CacheChange, 64)}
}

func (s *Stream) Next(ctx context.Context) (*CacheChange, error) {
	select {
	case c, ok := <-s.ch:
		if !ok {
			return nil, context.Canceled
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Stream) deliver(c *CacheChange) {
	select {
	case s.ch <- c:
	default:
		// buffer full: drop the oldest undelivered sample rather than
		// block the Reactor, same "never let a slow consumer wedge the
		// event loop" posture requires.
		select {
		case <-s.ch:
		default:
		}
		s.ch <- c
	}
}

// StatefulReader implements the RTPS reliable/best-effort reader state
// machine: it owns a HistoryCache and a table of RtpsWriterProxy, one per
// matched writer, and drives repair requests by comparing each writer's
// announced HEARTBEAT range against what has actually been received.
type StatefulReader struct {
	zerolog.Logger

	Guid  Guid
	Qos   QoS
	cache *HistoryCache

	proxies map[Guid]*RtpsWriterProxy

	transport  Transport
	acknackCnt int32
	stream     *Stream

	// lastSampleAt is when DispatchData last delivered a sample, the
	// clock CheckDeadline compares Qos.Deadline against.
	lastSampleAt time.Time

	// Export, when set, mirrors every delivered sample to a Kafka topic
	// without affecting delivery to Stream/Take/Read.
	Export *export.KafkaBridge
}

func NewStatefulReader(guid Guid, qos QoS, transport Transport, logger zerolog.Logger) (*StatefulReader, error) {
	if err := qos.Validate(); err != nil {
		return nil, err
	}
	return &StatefulReader{
		Logger:       logger,
		Guid:         guid,
		Qos:          qos,
		cache:        NewHistoryCache(qos),
		proxies:      make(map[Guid]*RtpsWriterProxy),
		transport:    transport,
		stream:       newStream(),
		lastSampleAt: time.Now(),
	}, nil
}

func (r *StatefulReader) Stream() *Stream { return r.stream }

func (r *StatefulReader) MatchWriter(p *RtpsWriterProxy) {
	r.proxies[p.RemoteWriterGuid] = p
}

func (r *StatefulReader) UnmatchWriter(guid Guid) {
	delete(r.proxies, guid)
}

// DispatchData handles an inbound DATA submessage: insert into the
// HistoryCache (duplicates are ignored by HistoryCache.Insert), mark the
// proxy as having received this sequence number, and deliver to Stream.
func (r *StatefulReader) DispatchData(ctx ReceiverContext, m DataSubmessage) {
	guid := Guid{Prefix: ctx.SourceGuidPrefix, Entity: m.WriterId}
	p, ok := r.proxies[guid]
	if !ok {
		return
	}
	c := &CacheChange{
		WriterGuid:     guid,
		SequenceNumber: m.SequenceNumber,
		Kind:           m.Kind,
		Data:           m.Payload,
		SourceTime:     ctx.Timestamp,
	}
	r.cache.Insert(c)
	p.ReceivedChange(m.SequenceNumber)
	r.stream.deliver(c)
	r.lastSampleAt = time.Now()
	admin.SamplesDelivered.Inc()

	if r.Export != nil {
		r.Export.Publish(fmt.Sprintf("%x-%x", guid.Prefix, guid.Entity), c.Data)
	}
}

// CheckDeadline reports whether more than Qos.Deadline has elapsed since
// the last sample was delivered, and re-arms the next deadline period
// either way. Called by the Reactor's deadline timer token; never by the
// dispatch path itself.
func (r *StatefulReader) CheckDeadline(now time.Time) bool {
	missed := r.Qos.Deadline > 0 && now.Sub(r.lastSampleAt) > r.Qos.Deadline
	r.lastSampleAt = now
	return missed
}

// DispatchHeartbeat handles an inbound HEARTBEAT submessage: drop it if
// its count is stale, otherwise immediately ACKNACK if any sequence number
// in the announced range is missing (Reliable only).
func (r *StatefulReader) DispatchHeartbeat(ctx ReceiverContext, m HeartbeatSubmessage) {
	guid := Guid{Prefix: ctx.SourceGuidPrefix, Entity: m.WriterId}
	p, ok := r.proxies[guid]
	if !ok {
		return
	}
	if !p.AcceptHeartbeat(m.Count, m.FirstAvailable, m.LastAvailable) {
		return
	}
	if r.Qos.Reliability == Reliable {
		r.sendAckNack(p, m.FirstAvailable, m.LastAvailable)
	}
}

// DispatchGap handles an inbound GAP submessage: every sequence number in
// the range/set is marked irrelevant, never to be requested.
func (r *StatefulReader) DispatchGap(ctx ReceiverContext, m GapSubmessage) {
	guid := Guid{Prefix: ctx.SourceGuidPrefix, Entity: m.WriterId}
	p, ok := r.proxies[guid]
	if !ok {
		return
	}
	sn := m.GapStart
	for ; sn < m.GapList.Base; sn++ {
		p.Irrelevant(sn)
	}
	for i := range m.GapList.Bitmap {
		if m.GapList.Bitmap[i] {
			p.Irrelevant(m.GapList.Base + SequenceNumber(i) + 1)
		}
	}
	p.Irrelevant(m.GapList.Base)
}

func (r *StatefulReader) DispatchAckNack(ReceiverContext, AckNackSubmessage) {} // readers do not consume ACKNACK

func (r *StatefulReader) sendAckNack(p *RtpsWriterProxy, first, last SequenceNumber) {
	missing := p.MissingChanges(first, last)
	if len(missing) == 0 {
		return
	}
	r.acknackCnt++
	set := SequenceNumberSetFrom(missing)

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	EncodeHeader(buf, Header{VersionMajor: ProtocolVersionMajor, VersionMinor: ProtocolVersionMinor, VendorId: VendorId, SourceGuidPrefix: r.Guid.Prefix})
	EncodeSubmessageHeader(buf, SubmessageAckNack, 0, 0)
	EncodeAckNack(buf, AckNackSubmessage{ReaderId: r.Guid.Entity, WriterId: p.RemoteWriterGuid.Entity, Reader: set, Count: r.acknackCnt})

	locs := p.UnicastLocatorList
	if len(locs) == 0 {
		locs = p.MulticastLocatorList
	}
	for _, loc := range locs {
		if err := r.transport.SendTo(loc, buf.B); err != nil {
			r.Warn().Err(err).Msg("acknack send failed")
		}
	}
}

func (r *StatefulReader) HistoryCache() *HistoryCache { return r.cache }

// Take removes and returns every currently-cached change, the
// non-blocking counterpart to Stream for callers that poll instead of
// awaiting delivery.
func (r *StatefulReader) Take() []*CacheChange {
	changes := r.cache.Changes()
	out := make([]*CacheChange, len(changes))
	copy(out, changes)
	r.cache.RemoveAll()
	return out
}

// Read returns every currently-cached change without removing them.
func (r *StatefulReader) Read() []*CacheChange {
	changes := r.cache.Changes()
	out := make([]*CacheChange, len(changes))
	copy(out, changes)
	return out
}
