package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRtpsReaderProxyUnsentAndAcked(t *testing.T) {
	p := NewRtpsReaderProxy(Guid{}, nil, nil, false)
	p.AddUnsentChange(1)
	p.AddUnsentChange(2)
	require.True(t, p.CanSendUnsent())

	sn, ok := p.NextUnsentChange()
	require.True(t, ok)
	require.Equal(t, SequenceNumber(1), sn)

	p.AckedChangesSet(2)
	require.False(t, p.CanSend())
	require.True(t, p.SequenceIsAcked(2))
	require.True(t, p.SequenceIsAcked(1))
	require.False(t, p.SequenceIsAcked(3))
}

func TestRtpsReaderProxyRequestedChangesTakePriority(t *testing.T) {
	p := NewRtpsReaderProxy(Guid{}, nil, nil, false)
	p.AddUnsentChange(5)

	set := SequenceNumberSetFrom([]SequenceNumber{5})
	p.AddRequestedChanges(set, 5)

	require.True(t, p.CanSendRequested())
	sn, ok := p.NextRequestedChange()
	require.True(t, ok)
	require.Equal(t, SequenceNumber(5), sn)
	require.False(t, p.CanSend())
}

func TestRtpsReaderProxyAddUnsentIgnoresAlreadyAcked(t *testing.T) {
	p := NewRtpsReaderProxy(Guid{}, nil, nil, false)
	p.AckedChangesSet(10)
	p.AddUnsentChange(5)
	require.False(t, p.CanSend())
}
