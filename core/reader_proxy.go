package core

// ChangeForReaderStatus tracks, from the writer's point of view, where one
// CacheChange stands with respect to one matched reader.
type ChangeForReaderStatus int

const (
	Unsent ChangeForReaderStatus = iota
	Unacknowledged
	Requested
	Acknowledged
	Underway
)

// RtpsReaderProxy is the writer-side state the StatefulWriter keeps for
// each reader it has matched: the unsent/requested/acked sequence number
// sets drive what gets sent and when a reader's repair request can be
// dropped.
type RtpsReaderProxy struct {
	RemoteReaderGuid     Guid
	RemoteGroupEntityId  EntityId
	UnicastLocatorList   LocatorList
	MulticastLocatorList LocatorList
	ExpectsInlineQos     bool
	IsActive             bool

	requestedChanges map[SequenceNumber]bool
	unsentChanges    map[SequenceNumber]bool
	largestAcked     SequenceNumber
}

func NewRtpsReaderProxy(guid Guid, unicast, multicast LocatorList, expectsInlineQos bool) *RtpsReaderProxy {
	return &RtpsReaderProxy{
		RemoteReaderGuid:     guid,
		UnicastLocatorList:   unicast,
		MulticastLocatorList: multicast,
		ExpectsInlineQos:     expectsInlineQos,
		IsActive:             true,
		requestedChanges:     make(map[SequenceNumber]bool),
		unsentChanges:        make(map[SequenceNumber]bool),
		largestAcked:         SequenceNumberUnknown,
	}
}

// CanSend reports whether there is anything left to push to this reader,
// requested repairs taking priority over the plain unsent queue.
func (p *RtpsReaderProxy) CanSend() bool {
	return p.CanSendRequested() || p.CanSendUnsent()
}

func (p *RtpsReaderProxy) CanSendRequested() bool {
	return len(p.requestedChanges) > 0
}

func (p *RtpsReaderProxy) CanSendUnsent() bool {
	return len(p.unsentChanges) > 0
}

// AddUnsentChange marks sn as newly available for this reader. Called by
// the writer whenever a fresh CacheChange is written.
func (p *RtpsReaderProxy) AddUnsentChange(sn SequenceNumber) {
	if sn > p.largestAcked {
		p.unsentChanges[sn] = true
	}
}

// NextUnsentChange pops and returns the smallest unsent sequence number.
func (p *RtpsReaderProxy) NextUnsentChange() (SequenceNumber, bool) {
	return popSmallest(p.unsentChanges)
}

// NextRequestedChange pops and returns the smallest requested sequence number.
func (p *RtpsReaderProxy) NextRequestedChange() (SequenceNumber, bool) {
	return popSmallest(p.requestedChanges)
}

func popSmallest(set map[SequenceNumber]bool) (SequenceNumber, bool) {
	if len(set) == 0 {
		return SequenceNumberUnknown, false
	}
	var min SequenceNumber
	first := true
	for sn := range set {
		if first || sn < min {
			min = sn
			first = false
		}
	}
	delete(set, min)
	return min, true
}

// AddRequestedChanges folds an ACKNACK's requested-set bitmap into the
// proxy's repair queue.
func (p *RtpsReaderProxy) AddRequestedChanges(set SequenceNumberSet, maxAvailable SequenceNumber) {
	if set.Empty() {
		return
	}
	sn := set.Base
	for sn <= maxAvailable {
		if set.Contains(sn) {
			p.requestedChanges[sn] = true
			delete(p.unsentChanges, sn)
		}
		sn++
	}
}

// AckedChangesSet records the reader's acknowledgement of every change up
// to and including sn: those sequence numbers are dropped from both the
// unsent and requested queues and can no longer be re-requested.
func (p *RtpsReaderProxy) AckedChangesSet(sn SequenceNumber) {
	if sn <= p.largestAcked {
		return
	}
	p.largestAcked = sn
	for s := range p.unsentChanges {
		if s <= sn {
			delete(p.unsentChanges, s)
		}
	}
	for s := range p.requestedChanges {
		if s <= sn {
			delete(p.requestedChanges, s)
		}
	}
}

func (p *RtpsReaderProxy) SequenceIsAcked(sn SequenceNumber) bool {
	return sn <= p.largestAcked
}

// RemoveUnsentChange drops sn from the unsent queue without marking it
// acknowledged, used when the writer's HistoryCache evicts sn before it
// was sent and a GAP must be emitted instead.
func (p *RtpsReaderProxy) RemoveUnsentChange(sn SequenceNumber) {
	delete(p.unsentChanges, sn)
}
