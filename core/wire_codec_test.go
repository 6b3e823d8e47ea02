package core

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/bytebufferpool"
)

func TestHeaderRoundTrip(t *testing.T) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	want := Header{VersionMajor: 2, VersionMinor: 3, VendorId: [2]byte{1, 2}, SourceGuidPrefix: GuidPrefix{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}}
	EncodeHeader(buf, want)

	got, rest, err := DecodeHeader(buf.B)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Empty(t, rest)
}

func TestDecodeHeaderTooShort(t *testing.T) {
	_, _, err := DecodeHeader([]byte{1, 2, 3})
	require.Error(t, err)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
}

func TestDecodeHeaderBadMagic(t *testing.T) {
	b := make([]byte, 20)
	copy(b, "XXXX")
	_, _, err := DecodeHeader(b)
	require.Error(t, err)
}

func TestAckNackRoundTrip(t *testing.T) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	want := AckNackSubmessage{
		ReaderId: EntityId{1, 0, 0, 4},
		WriterId: EntityId{1, 0, 0, 3},
		Reader:   SequenceNumberSetFrom([]SequenceNumber{5, 7, 9}),
		Count:    3,
	}
	EncodeAckNack(buf, want)

	got, err := decodeAckNack(buf.B, true)
	require.NoError(t, err)
	require.Equal(t, want.ReaderId, got.ReaderId)
	require.Equal(t, want.WriterId, got.WriterId)
	require.Equal(t, want.Count, got.Count)
	require.Equal(t, want.Reader.Base, got.Reader.Base)
	for _, sn := range []SequenceNumber{5, 7, 9} {
		require.True(t, got.Reader.Contains(sn))
	}
	require.False(t, got.Reader.Contains(6))
}

func TestHeartbeatRoundTrip(t *testing.T) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	want := HeartbeatSubmessage{
		ReaderId:       EntityId{1, 0, 0, 4},
		WriterId:       EntityId{1, 0, 0, 3},
		FirstAvailable: 1,
		LastAvailable:  42,
		Count:          7,
	}
	EncodeHeartbeat(buf, want)

	got, err := decodeHeartbeat(buf.B, true)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDataRoundTrip(t *testing.T) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	want := DataSubmessage{
		ReaderId:       EntityId{1, 0, 0, 4},
		WriterId:       EntityId{1, 0, 0, 3},
		SequenceNumber: 99,
		Kind:           Alive,
		Payload:        []byte("hello"),
	}
	EncodeData(buf, want)

	got, err := decodeData(buf.B, true)
	require.NoError(t, err)
	require.Equal(t, want.ReaderId, got.ReaderId)
	require.Equal(t, want.WriterId, got.WriterId)
	require.Equal(t, want.SequenceNumber, got.SequenceNumber)
	require.Equal(t, want.Payload, got.Payload)
}

func TestSequenceNumberSetFromSingleton(t *testing.T) {
	set := SequenceNumberSetFrom([]SequenceNumber{5})
	require.Equal(t, SequenceNumber(5), set.Base)
	require.True(t, set.Contains(5))
	require.False(t, set.Contains(6))
}
