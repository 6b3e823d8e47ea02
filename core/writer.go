package core

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/time/rate"

	"github.com/rtpsfix/rtpsd/admin"
)

// evictionPollInterval paces Write's poll loop while it waits for a
// reader proxy to acknowledge a change KeepLast retention needs to evict.
const evictionPollInterval = 5 * time.Millisecond

// StatefulWriter implements the RTPS reliable/best-effort writer state
// machine: it owns a HistoryCache and a table of
// RtpsReaderProxy, one per matched reader, and drives delivery by
// alternating "send whatever each proxy still needs" with periodic
// HEARTBEATs that let readers discover gaps and request repairs.
type StatefulWriter struct {
	zerolog.Logger

	Guid  Guid
	Qos   QoS
	cache *HistoryCache

	proxies map[Guid]*RtpsReaderProxy

	transport Transport
	heartbeatCount int32
	heartbeatLimit *rate.Limiter // paces HEARTBEAT emission

	nextSeqNum SequenceNumber
}

func NewStatefulWriter(guid Guid, qos QoS, transport Transport, logger zerolog.Logger) (*StatefulWriter, error) {
	if err := qos.Validate(); err != nil {
		return nil, err
	}
	return &StatefulWriter{
		Logger:         logger,
		Guid:           guid,
		Qos:            qos,
		cache:          NewHistoryCache(qos),
		proxies:        make(map[Guid]*RtpsReaderProxy),
		transport:      transport,
		heartbeatLimit: rate.NewLimiter(rate.Limit(20), 5),
		nextSeqNum:     1,
	}, nil
}

// Write appends a new sample to the HistoryCache and marks it unsent for
// every matched reader proxy. For a Reliable writer under KeepLast{depth},
// if this write would otherwise evict a change some live matched proxy
// has not yet acknowledged, Write blocks until that proxy acknowledges it
// (up to Qos.MaxBlockingTime) and fails with a *ResourceExhaustion instead
// of silently dropping an unacknowledged change.
func (w *StatefulWriter) Write(kind ChangeKind, key InstanceKey, payload []byte) (*CacheChange, error) {
	if w.Qos.Reliability == Reliable && w.Qos.History == KeepLast {
		if oldest, ok := w.cache.OldestForInstance(key); ok && w.cache.InstanceLen(key) >= w.Qos.Depth {
			if err := w.awaitEvictable(oldest.SequenceNumber); err != nil {
				return nil, err
			}
		}
	}

	c := &CacheChange{
		WriterGuid:     w.Guid,
		SequenceNumber: w.nextSeqNum,
		Kind:           kind,
		InstanceKey:    key,
		Data:           payload,
	}
	w.nextSeqNum++
	w.cache.Insert(c)
	for _, p := range w.proxies {
		p.AddUnsentChange(c.SequenceNumber)
	}
	return c, nil
}

// evictable reports whether every live matched proxy has acknowledged sn,
// so KeepLast retention is free to drop it.
func (w *StatefulWriter) evictable(sn SequenceNumber) bool {
	for _, p := range w.proxies {
		if p.IsActive && !p.SequenceIsAcked(sn) {
			return false
		}
	}
	return true
}

// awaitEvictable blocks, if Qos.MaxBlockingTime allows it, until sn
// becomes evictable, polling at evictionPollInterval. A zero
// MaxBlockingTime fails immediately rather than blocking at all.
func (w *StatefulWriter) awaitEvictable(sn SequenceNumber) error {
	if w.evictable(sn) {
		return nil
	}
	deadline := time.Now().Add(w.Qos.MaxBlockingTime)
	for w.Qos.MaxBlockingTime > 0 && time.Now().Before(deadline) {
		time.Sleep(evictionPollInterval)
		if w.evictable(sn) {
			return nil
		}
	}
	return &ResourceExhaustion{Resource: "history cache depth for instance", Limit: w.Qos.Depth}
}

// MatchReader registers a new reader proxy. Under TransientLocal
// durability every change currently in the cache becomes unsent for the
// newly matched reader; under Volatile the reader only sees changes
// written from now on.
func (w *StatefulWriter) MatchReader(p *RtpsReaderProxy) {
	w.proxies[p.RemoteReaderGuid] = p
	if w.Qos.Durability != TransientLocal {
		return
	}
	for _, c := range w.cache.Changes() {
		p.AddUnsentChange(c.SequenceNumber)
	}
}

func (w *StatefulWriter) UnmatchReader(guid Guid) {
	delete(w.proxies, guid)
}

// OnAckNack applies an incoming ACKNACK to the addressed proxy: the base
// of the reader's set acknowledges every earlier sequence number, and any
// bits set in the bitmap become repair requests.
func (w *StatefulWriter) OnAckNack(ctx ReceiverContext, m AckNackSubmessage) {
	guid := Guid{Prefix: ctx.SourceGuidPrefix, Entity: m.ReaderId}
	p, ok := w.proxies[guid]
	if !ok {
		return
	}
	admin.AckNacksReceived.Inc()
	if m.Reader.Base > 1 {
		p.AckedChangesSet(m.Reader.Base - 1)
	}
	p.AddRequestedChanges(m.Reader, w.cache.MaxSequenceNumber())
}

func (w *StatefulWriter) DispatchAckNack(ctx ReceiverContext, m AckNackSubmessage) { w.OnAckNack(ctx, m) }

// drain flushes every proxy's outstanding requested and unsent changes,
// emitting DATA for changes still present in the cache and GAP for
// sequence numbers that were evicted (KeepLast trimming, or RemoveUpTo)
// while still referenced by that proxy.
func (w *StatefulWriter) drain() {
	for _, p := range w.proxies {
		for p.CanSend() {
			var sn SequenceNumber
			var ok bool
			if p.CanSendRequested() {
				sn, ok = p.NextRequestedChange()
			} else {
				sn, ok = p.NextUnsentChange()
			}
			if !ok {
				break
			}
			w.sendOne(p, sn)
		}
	}
}

func (w *StatefulWriter) sendOne(p *RtpsReaderProxy, sn SequenceNumber) {
	c, ok := w.cache.Get(w.Guid, sn)
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	EncodeHeader(buf, Header{VersionMajor: ProtocolVersionMajor, VersionMinor: ProtocolVersionMinor, VendorId: VendorId, SourceGuidPrefix: w.Guid.Prefix})
	if !ok {
		EncodeSubmessageHeader(buf, SubmessageGap, 0, 0)
		EncodeGap(buf, GapSubmessage{ReaderId: p.RemoteReaderGuid.Entity, WriterId: w.Guid.Entity, GapStart: sn, GapList: SequenceNumberSet{Base: sn}})
	} else {
		EncodeSubmessageHeader(buf, SubmessageData, 0, 0)
		EncodeData(buf, DataSubmessage{ReaderId: p.RemoteReaderGuid.Entity, WriterId: w.Guid.Entity, SequenceNumber: sn, Kind: c.Kind, Payload: c.Data})
	}
	w.sendTo(p, buf.B)
}

func (w *StatefulWriter) sendTo(p *RtpsReaderProxy, payload []byte) {
	locs := p.UnicastLocatorList
	if len(locs) == 0 {
		locs = p.MulticastLocatorList
	}
	for _, loc := range locs {
		if err := w.transport.SendTo(loc, payload); err != nil {
			w.Warn().Err(err).Msg("send failed")
		}
	}
}

// OnHeartbeatTick is driven by the Reactor's timer token: it emits a
// HEARTBEAT to every matched reader (if Reliable) and drains outstanding
// sends.
func (w *StatefulWriter) OnHeartbeatTick() {
	w.drain()
	if w.Qos.Reliability != Reliable {
		return
	}
	if !w.heartbeatLimit.Allow() {
		return
	}
	atomic.AddInt32(&w.heartbeatCount, 1)
	first, last := w.cache.MinSequenceNumber(), w.cache.MaxSequenceNumber()
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	for _, p := range w.proxies {
		buf.Reset()
		EncodeHeader(buf, Header{VersionMajor: ProtocolVersionMajor, VersionMinor: ProtocolVersionMinor, VendorId: VendorId, SourceGuidPrefix: w.Guid.Prefix})
		EncodeSubmessageHeader(buf, SubmessageHeartbeat, 0, 0)
		EncodeHeartbeat(buf, HeartbeatSubmessage{ReaderId: p.RemoteReaderGuid.Entity, WriterId: w.Guid.Entity, FirstAvailable: first, LastAvailable: last, Count: atomic.LoadInt32(&w.heartbeatCount)})
		w.sendTo(p, buf.B)
		admin.HeartbeatsSent.Inc()
	}
}

func (w *StatefulWriter) DispatchHeartbeat(ReceiverContext, HeartbeatSubmessage) {} // writers do not consume HEARTBEAT
func (w *StatefulWriter) DispatchGap(ReceiverContext, GapSubmessage)             {} // writers do not consume GAP
func (w *StatefulWriter) DispatchData(ReceiverContext, DataSubmessage)          {} // writers do not consume DATA

func (w *StatefulWriter) HistoryCache() *HistoryCache { return w.cache }
