package core

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func mustWriter(t *testing.T, qos QoS) *StatefulWriter {
	t.Helper()
	w, err := NewStatefulWriter(Guid{Entity: EntityId{0, 0, 1, 0x03}}, qos, newFakeTransport(), zerolog.Nop())
	require.NoError(t, err)
	return w
}

func TestStatefulWriterWriteAssignsIncreasingSequenceNumbers(t *testing.T) {
	w := mustWriter(t, DefaultQoS())
	c1, err := w.Write(Alive, "k", []byte("a"))
	require.NoError(t, err)
	c2, err := w.Write(Alive, "k", []byte("b"))
	require.NoError(t, err)
	require.Equal(t, SequenceNumber(1), c1.SequenceNumber)
	require.Equal(t, SequenceNumber(2), c2.SequenceNumber)
}

// TestStatefulWriterMatchReaderBackfillsRetainedHistory covers S3: a
// TransientLocal Reliable writer publishes sequences 1..5 before any
// reader is matched, and a reader that joins afterward must see the
// whole retained history queued as unsent.
func TestStatefulWriterMatchReaderBackfillsRetainedHistory(t *testing.T) {
	qos := DefaultQoS()
	qos.Reliability = Reliable
	qos.Durability = TransientLocal
	qos.History = KeepLast
	qos.Depth = 10
	w := mustWriter(t, qos)

	for i := 0; i < 5; i++ {
		_, err := w.Write(Alive, "shape", []byte("sample"))
		require.NoError(t, err)
	}

	p := NewRtpsReaderProxy(Guid{Entity: EntityId{0, 0, 2, 0x04}}, nil, nil)
	w.MatchReader(p)

	var got []SequenceNumber
	for p.CanSendUnsent() {
		sn, ok := p.NextUnsentChange()
		require.True(t, ok)
		got = append(got, sn)
	}
	require.Equal(t, []SequenceNumber{1, 2, 3, 4, 5}, got)
}

// TestStatefulWriterKeepLastEvictsDownToDepthWithNoMatchedReaders covers
// S4: with no matched readers, KeepLast{3} eviction proceeds freely (an
// empty proxy table is vacuously fully-acknowledged), so only the three
// most recent sequence numbers for the key survive to be backfilled once
// a reader matches (backfill happens under TransientLocal durability).
func TestStatefulWriterKeepLastEvictsDownToDepthWithNoMatchedReaders(t *testing.T) {
	qos := DefaultQoS()
	qos.Reliability = Reliable
	qos.Durability = TransientLocal
	qos.History = KeepLast
	qos.Depth = 3
	w := mustWriter(t, qos)

	for i := 0; i < 10; i++ {
		_, err := w.Write(Alive, "shape", []byte("sample"))
		require.NoError(t, err)
	}

	p := NewRtpsReaderProxy(Guid{Entity: EntityId{0, 0, 2, 0x04}}, nil, nil)
	w.MatchReader(p)

	var got []SequenceNumber
	for p.CanSendUnsent() {
		sn, ok := p.NextUnsentChange()
		require.True(t, ok)
		got = append(got, sn)
	}
	require.Equal(t, []SequenceNumber{8, 9, 10}, got)
}

// TestStatefulWriterReliableAwaitsAckBeforeEvicting covers the
// review-flagged KeepLast{1} boundary: a Reliable writer must not evict
// a change some live matched proxy has not yet acknowledged. Acking the
// outgoing change first lets the second Write succeed immediately;
// without it (the companion fail-fast test below) Write must fail.
func TestStatefulWriterReliableAwaitsAckBeforeEvicting(t *testing.T) {
	qos := DefaultQoS()
	qos.Reliability = Reliable
	qos.History = KeepLast
	qos.Depth = 1
	qos.MaxBlockingTime = time.Second
	w := mustWriter(t, qos)

	p := NewRtpsReaderProxy(Guid{Entity: EntityId{0, 0, 2, 0x04}}, nil, nil)
	w.MatchReader(p)

	c1, err := w.Write(Alive, "shape", []byte("first"))
	require.NoError(t, err)

	p.AckedChangesSet(c1.SequenceNumber)

	_, err = w.Write(Alive, "shape", []byte("second"))
	require.NoError(t, err)
}

// TestStatefulWriterReliableTimesOutWaitingForAck confirms Write gives
// up and fails once MaxBlockingTime elapses without the acknowledgement
// ever arriving.
func TestStatefulWriterReliableTimesOutWaitingForAck(t *testing.T) {
	qos := DefaultQoS()
	qos.Reliability = Reliable
	qos.History = KeepLast
	qos.Depth = 1
	qos.MaxBlockingTime = 20 * time.Millisecond
	w := mustWriter(t, qos)

	p := NewRtpsReaderProxy(Guid{Entity: EntityId{0, 0, 2, 0x04}}, nil, nil)
	w.MatchReader(p)

	_, err := w.Write(Alive, "shape", []byte("first"))
	require.NoError(t, err)

	start := time.Now()
	_, err = w.Write(Alive, "shape", []byte("second"))
	require.Error(t, err)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	var re *ResourceExhaustion
	require.ErrorAs(t, err, &re)
}

// TestStatefulWriterReliableFailsFastWithZeroMaxBlockingTime confirms
// "Reliable writers block or fail instead": with MaxBlockingTime at its
// zero value, a blocked eviction fails immediately with a
// *ResourceExhaustion rather than hanging or silently dropping the
// unacknowledged change.
func TestStatefulWriterReliableFailsFastWithZeroMaxBlockingTime(t *testing.T) {
	qos := DefaultQoS()
	qos.Reliability = Reliable
	qos.History = KeepLast
	qos.Depth = 1
	w := mustWriter(t, qos)

	p := NewRtpsReaderProxy(Guid{Entity: EntityId{0, 0, 2, 0x04}}, nil, nil)
	w.MatchReader(p)

	_, err := w.Write(Alive, "shape", []byte("first"))
	require.NoError(t, err)

	_, err = w.Write(Alive, "shape", []byte("second"))
	require.Error(t, err)
	var re *ResourceExhaustion
	require.ErrorAs(t, err, &re)
}

// TestStatefulWriterBestEffortEvictsWithoutBlocking confirms the other
// half of the KeepLast{1} boundary: a BestEffort writer evicts an
// unacknowledged change unconditionally, never blocking.
func TestStatefulWriterBestEffortEvictsWithoutBlocking(t *testing.T) {
	qos := DefaultQoS()
	qos.Reliability = BestEffort
	qos.History = KeepLast
	qos.Depth = 1
	w := mustWriter(t, qos)

	p := NewRtpsReaderProxy(Guid{Entity: EntityId{0, 0, 2, 0x04}}, nil, nil)
	w.MatchReader(p)

	_, err := w.Write(Alive, "shape", []byte("first"))
	require.NoError(t, err)
	_, err = w.Write(Alive, "shape", []byte("second"))
	require.NoError(t, err)

	require.Equal(t, 1, w.cache.InstanceLen("shape"))
}

func TestStatefulWriterOnAckNackRequestsMissingChanges(t *testing.T) {
	qos := DefaultQoS()
	qos.Reliability = Reliable
	qos.History = KeepAll
	w := mustWriter(t, qos)

	readerGuid := Guid{Entity: EntityId{0, 0, 2, 0x04}}
	p := NewRtpsReaderProxy(readerGuid, nil, nil)
	w.MatchReader(p)

	for i := 0; i < 3; i++ {
		_, err := w.Write(Alive, "shape", []byte("sample"))
		require.NoError(t, err)
	}
	// drain the initial unsent queue as if already sent and acked up to 1
	for p.CanSendUnsent() {
		p.NextUnsentChange()
	}

	w.OnAckNack(ReceiverContext{SourceGuidPrefix: readerGuid.Prefix}, AckNackSubmessage{
		ReaderId: readerGuid.Entity,
		WriterId: w.Guid.Entity,
		Reader:   SequenceNumberSetFrom([]SequenceNumber{2, 3}),
		Count:    1,
	})

	require.True(t, p.CanSendRequested())
}
