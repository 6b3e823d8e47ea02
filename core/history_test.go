package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func change(sn SequenceNumber, key InstanceKey) *CacheChange {
	return &CacheChange{SequenceNumber: sn, InstanceKey: key, Kind: Alive, Data: []byte("x")}
}

func changeFrom(writer Guid, sn SequenceNumber, key InstanceKey) *CacheChange {
	return &CacheChange{WriterGuid: writer, SequenceNumber: sn, InstanceKey: key, Kind: Alive, Data: []byte("x")}
}

func TestHistoryCacheInsertAscending(t *testing.T) {
	h := NewHistoryCache(QoS{History: KeepAll})
	h.Insert(change(3, "a"))
	h.Insert(change(1, "a"))
	h.Insert(change(2, "a"))

	var sns []SequenceNumber
	for _, c := range h.Changes() {
		sns = append(sns, c.SequenceNumber)
	}
	require.Equal(t, []SequenceNumber{1, 2, 3}, sns)
}

func TestHistoryCacheKeepLastPerInstance(t *testing.T) {
	h := NewHistoryCache(QoS{History: KeepLast, Depth: 1})
	h.Insert(change(1, "a"))
	h.Insert(change(2, "a"))
	h.Insert(change(3, "b"))

	require.Equal(t, 2, h.Len())
	_, ok := h.Get(Guid{}, 1)
	require.False(t, ok, "instance a's first change should have been trimmed")
	_, ok = h.Get(Guid{}, 2)
	require.True(t, ok, "instance a's latest change should survive")
	_, ok = h.Get(Guid{}, 3)
	require.True(t, ok, "instance b's only change should survive")
}

func TestHistoryCacheRemoveUpTo(t *testing.T) {
	h := NewHistoryCache(QoS{History: KeepAll})
	h.Insert(change(1, "a"))
	h.Insert(change(2, "a"))
	h.Insert(change(3, "a"))

	removed := h.RemoveUpTo(Guid{}, 2)
	require.Equal(t, []SequenceNumber{1, 2}, removed)
	require.Equal(t, 1, h.Len())
	require.Equal(t, SequenceNumber(3), h.MinSequenceNumber())
}

func TestHistoryCacheDuplicateInsertIgnored(t *testing.T) {
	h := NewHistoryCache(QoS{History: KeepAll})
	h.Insert(change(1, "a"))
	h.Insert(change(1, "a"))
	require.Equal(t, 1, h.Len())
}

// TestHistoryCacheDistinguishesWritersWithSameSequenceNumber guards
// against a StatefulReader's shared cache conflating two independently
// matched writers that both number their own changes from 1: without a
// (WriterGuid, SequenceNumber) identity, the second writer's change 1
// would look like a duplicate of the first's and be dropped.
func TestHistoryCacheDistinguishesWritersWithSameSequenceNumber(t *testing.T) {
	h := NewHistoryCache(QoS{History: KeepAll})
	writerA := Guid{Entity: EntityId{0, 0, 1, 0x03}}
	writerB := Guid{Entity: EntityId{0, 0, 2, 0x03}}

	h.Insert(changeFrom(writerA, 1, "a"))
	h.Insert(changeFrom(writerB, 1, "a"))

	require.Equal(t, 2, h.Len(), "both writers' sequence number 1 must be retained")

	ca, ok := h.Get(writerA, 1)
	require.True(t, ok)
	cb, ok := h.Get(writerB, 1)
	require.True(t, ok)
	require.NotSame(t, ca, cb)
}

func TestHistoryCacheRemoveUpToScopedToOneWriter(t *testing.T) {
	h := NewHistoryCache(QoS{History: KeepAll})
	writerA := Guid{Entity: EntityId{0, 0, 1, 0x03}}
	writerB := Guid{Entity: EntityId{0, 0, 2, 0x03}}

	h.Insert(changeFrom(writerA, 1, "a"))
	h.Insert(changeFrom(writerB, 1, "b"))

	removed := h.RemoveUpTo(writerA, 1)
	require.Equal(t, []SequenceNumber{1}, removed)
	require.Equal(t, 1, h.Len(), "writer B's change must survive a RemoveUpTo scoped to writer A")
	_, ok := h.Get(writerB, 1)
	require.True(t, ok)
}

func TestHistoryCacheRemoveAllClearsEveryWriter(t *testing.T) {
	h := NewHistoryCache(QoS{History: KeepAll})
	writerA := Guid{Entity: EntityId{0, 0, 1, 0x03}}
	writerB := Guid{Entity: EntityId{0, 0, 2, 0x03}}

	h.Insert(changeFrom(writerA, 1, "a"))
	h.Insert(changeFrom(writerB, 1, "b"))

	h.RemoveAll()
	require.Equal(t, 0, h.Len())
}
