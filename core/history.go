package core

import (
	"bytes"
	"sort"
)

// changeKey uniquely identifies one CacheChange. A StatefulReader shares a
// single HistoryCache across every matched RtpsWriterProxy, so identity
// can never be the bare SequenceNumber: two independently numbering
// writers both have a "sequence number 1", and they must not collide.
type changeKey struct {
	Writer Guid
	SN     SequenceNumber
}

// HistoryCache stores CacheChanges in ascending (WriterGuid, SequenceNumber)
// order, retaining them per the configured QoS. It is owned exclusively by
// its Writer or Reader and is only ever touched from the Reactor goroutine
// -- callers elsewhere must go through Stream/snapshot accessors, never
// this type directly.
type HistoryCache struct {
	qos      QoS
	changes  []*CacheChange // ascending by (WriterGuid, SequenceNumber)
	byKey    map[InstanceKey][]*CacheChange
	byChange map[changeKey]*CacheChange
}

func NewHistoryCache(qos QoS) *HistoryCache {
	return &HistoryCache{
		qos:      qos,
		byKey:    make(map[InstanceKey][]*CacheChange),
		byChange: make(map[changeKey]*CacheChange),
	}
}

func keyOf(c *CacheChange) changeKey {
	return changeKey{Writer: c.WriterGuid, SN: c.SequenceNumber}
}

// less orders two changes first by writer GUID, then by sequence number,
// so a writer proxy table shared HistoryCache never conflates two
// different writers' independently numbered changes.
func less(a, b *CacheChange) bool {
	if c := bytes.Compare(a.WriterGuid.Prefix[:], b.WriterGuid.Prefix[:]); c != 0 {
		return c < 0
	}
	if c := bytes.Compare(a.WriterGuid.Entity[:], b.WriterGuid.Entity[:]); c != 0 {
		return c < 0
	}
	return a.SequenceNumber < b.SequenceNumber
}

// Insert adds a change, keeping the cache sorted, and enforces KeepLast{depth}
// by trimming older changes for the same instance key. KeepAll retains
// every change until RemoveUpTo/RemoveAll is called explicitly. A change
// already present for the same (WriterGuid, SequenceNumber) pair is a
// duplicate and is ignored.
func (h *HistoryCache) Insert(c *CacheChange) {
	key := keyOf(c)
	if _, dup := h.byChange[key]; dup {
		return
	}
	idx := sort.Search(len(h.changes), func(i int) bool {
		return !less(h.changes[i], c)
	})
	h.changes = append(h.changes, nil)
	copy(h.changes[idx+1:], h.changes[idx:])
	h.changes[idx] = c
	h.byChange[key] = c

	h.byKey[c.InstanceKey] = append(h.byKey[c.InstanceKey], c)

	if h.qos.History == KeepLast {
		h.trimInstance(c.InstanceKey, h.qos.Depth)
	}
}

func (h *HistoryCache) trimInstance(key InstanceKey, depth int) {
	list := h.byKey[key]
	if len(list) <= depth {
		return
	}
	drop := list[:len(list)-depth]
	h.byKey[key] = list[len(list)-depth:]
	for _, c := range drop {
		h.removeChange(c)
	}
}

func (h *HistoryCache) removeChange(c *CacheChange) {
	idx := sort.Search(len(h.changes), func(i int) bool {
		return !less(h.changes[i], c)
	})
	if idx < len(h.changes) && h.changes[idx] == c {
		h.changes = append(h.changes[:idx], h.changes[idx+1:]...)
	}
	delete(h.byChange, keyOf(c))
}

// Get returns the change identified by (writer, sn), if still present.
func (h *HistoryCache) Get(writer Guid, sn SequenceNumber) (*CacheChange, bool) {
	c, ok := h.byChange[changeKey{Writer: writer, SN: sn}]
	return c, ok
}

// RemoveUpTo discards every change from writer with SequenceNumber <= sn,
// returning the sequence numbers removed; callers use this to emit GAP
// for changes that were evicted while still referenced by a reader proxy.
// Scoping to a single writer keeps this correct when the cache holds
// changes from several independently numbered writers at once.
func (h *HistoryCache) RemoveUpTo(writer Guid, sn SequenceNumber) []SequenceNumber {
	var removed []SequenceNumber
	kept := h.changes[:0:0]
	for _, c := range h.changes {
		if c.WriterGuid == writer && c.SequenceNumber <= sn {
			removed = append(removed, c.SequenceNumber)
			delete(h.byChange, keyOf(c))
			list := h.byKey[c.InstanceKey]
			for i, cc := range list {
				if cc == c {
					h.byKey[c.InstanceKey] = append(list[:i], list[i+1:]...)
					break
				}
			}
			continue
		}
		kept = append(kept, c)
	}
	h.changes = kept
	return removed
}

// RemoveAll discards every change currently cached, regardless of which
// writer it came from -- used by a reader's Take() to drain the whole
// cache in one step instead of resolving a per-writer high-water mark.
func (h *HistoryCache) RemoveAll() {
	h.changes = nil
	h.byKey = make(map[InstanceKey][]*CacheChange)
	h.byChange = make(map[changeKey]*CacheChange)
}

// Changes returns the cache contents in ascending (WriterGuid,
// SequenceNumber) order. The returned slice must not be mutated by the
// caller.
func (h *HistoryCache) Changes() []*CacheChange {
	return h.changes
}

func (h *HistoryCache) Len() int {
	return len(h.changes)
}

// InstanceLen returns how many changes for key are currently retained.
func (h *HistoryCache) InstanceLen(key InstanceKey) int {
	return len(h.byKey[key])
}

// OldestForInstance returns the oldest retained change for key, the one
// KeepLast{depth} would evict next for that instance, if any is retained.
func (h *HistoryCache) OldestForInstance(key InstanceKey) (*CacheChange, bool) {
	list := h.byKey[key]
	if len(list) == 0 {
		return nil, false
	}
	return list[0], true
}

// MaxSequenceNumber and MinSequenceNumber are meaningful only for a cache
// that holds a single writer's changes (a StatefulWriter's own cache):
// every entry shares one WriterGuid, so (WriterGuid, SequenceNumber)
// ordering degenerates to plain SequenceNumber ordering.
func (h *HistoryCache) MaxSequenceNumber() SequenceNumber {
	if len(h.changes) == 0 {
		return SequenceNumberUnknown
	}
	return h.changes[len(h.changes)-1].SequenceNumber
}

func (h *HistoryCache) MinSequenceNumber() SequenceNumber {
	if len(h.changes) == 0 {
		return SequenceNumberUnknown
	}
	return h.changes[0].SequenceNumber
}
