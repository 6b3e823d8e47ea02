package core

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeTransport is a minimal Transport for Reactor tests: it never
// receives anything on its own, but lets tests push synthetic datagrams
// straight onto the channel the Reactor selects on.
type fakeTransport struct {
	ch   chan Datagram
	sent [][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{ch: make(chan Datagram, 16)}
}

// sent holds a copy of every payload passed to SendTo, in call order.
func (f *fakeTransport) SendTo(_ Locator, b []byte) error {
	f.sent = append(f.sent, append([]byte(nil), b...))
	return nil
}
func (f *fakeTransport) Recv() <-chan Datagram        { return f.ch }
func (f *fakeTransport) Close() error                 { return nil }

type noopDispatch struct{}

func (noopDispatch) DispatchAckNack(ReceiverContext, AckNackSubmessage)   {}
func (noopDispatch) DispatchHeartbeat(ReceiverContext, HeartbeatSubmessage) {}
func (noopDispatch) DispatchGap(ReceiverContext, GapSubmessage)           {}
func (noopDispatch) DispatchData(ReceiverContext, DataSubmessage)        {}

func TestReactorAddRemoveWriterReader(t *testing.T) {
	disc := newFakeTransport()
	user := newFakeTransport()
	rx := NewReactor(disc, user, noopDispatch{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rx.Run(ctx)

	w, err := NewStatefulWriter(Guid{Entity: EntityId{1, 0, 0, 3}}, DefaultQoS(), user, zerolog.Nop())
	require.NoError(t, err)
	rx.AddWriter(w)

	r, err := NewStatefulReader(Guid{Entity: EntityId{1, 0, 0, 4}}, DefaultQoS(), user, zerolog.Nop())
	require.NoError(t, err)
	rx.AddReader(r)

	rx.RemoveWriter(w.Guid)
	rx.RemoveReader(r.Guid)

	rx.Stop()
}

func TestReactorStopEndsRun(t *testing.T) {
	disc := newFakeTransport()
	user := newFakeTransport()
	rx := NewReactor(disc, user, noopDispatch{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		rx.Run(ctx)
		close(done)
	}()

	rx.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reactor did not stop")
	}
}
