package core

// RtpsWriterProxy is the reader-side state the StatefulReader keeps for
// each writer it has matched: what the writer has announced as available
// (via HEARTBEAT) versus what has actually been received, and what is
// outstanding to request a repair for.
type RtpsWriterProxy struct {
	RemoteWriterGuid     Guid
	UnicastLocatorList   LocatorList
	MulticastLocatorList LocatorList

	received         map[SequenceNumber]bool // actually delivered (DATA) or irrelevant (GAP)
	lastHeartbeatCnt int32
}

func NewRtpsWriterProxy(guid Guid, unicast, multicast LocatorList) *RtpsWriterProxy {
	return &RtpsWriterProxy{
		RemoteWriterGuid:     guid,
		UnicastLocatorList:   unicast,
		MulticastLocatorList: multicast,
		received:             make(map[SequenceNumber]bool),
	}
}

// ReceivedChange records that sn has actually arrived (via DATA).
func (p *RtpsWriterProxy) ReceivedChange(sn SequenceNumber) {
	p.received[sn] = true
}

// Irrelevant marks sn as no longer relevant (GAP), same bookkeeping as a
// received change without a sample to deliver: it must never again show up
// in MissingChanges.
func (p *RtpsWriterProxy) Irrelevant(sn SequenceNumber) {
	p.received[sn] = true
}

// MissingChanges returns, in ascending order, every sequence number in
// [firstAvailable, lastAvailable] that has not been received or marked
// irrelevant, used to build the ACKNACK request bitmap.
func (p *RtpsWriterProxy) MissingChanges(firstAvailable, lastAvailable SequenceNumber) []SequenceNumber {
	var missing []SequenceNumber
	for sn := firstAvailable; sn <= lastAvailable; sn++ {
		if !p.received[sn] {
			missing = append(missing, sn)
		}
	}
	return missing
}

// AcceptHeartbeat records the HEARTBEAT's count, returning false for a
// stale/duplicate count so the reader can skip re-deriving ACKNACK state.
// The announced [firstAvailable, lastAvailable] range is not stored; the
// caller passes it on to MissingChanges. It does not itself mark anything
// received -- only DispatchData/DispatchGap
// do that -- so a HEARTBEAT that arrives before a DATA it describes still
// produces a correct ACKNACK request.
func (p *RtpsWriterProxy) AcceptHeartbeat(count int32, firstAvailable, lastAvailable SequenceNumber) bool {
	if count <= p.lastHeartbeatCnt {
		return false
	}
	p.lastHeartbeatCnt = count
	return true
}
