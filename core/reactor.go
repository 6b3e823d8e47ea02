package core

import (
	"container/heap"
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rtpsfix/rtpsd/admin"
	"github.com/rtpsfix/rtpsd/capture"
)

// Token names the readiness source that woke the Reactor's select: the
// Reactor itself never touches a socket directly, it is handed a channel per
// readiness source and multiplexes over them with Go's native select, the
// idiomatic-Go rendition of a readiness poller fed by a goroutine per
// connection.
type Token int

const (
	TokenStop Token = iota
	TokenDiscoveryTraffic
	TokenUserTraffic
	TokenAddReader
	TokenRemoveReader
	TokenAddWriter
	TokenRemoveWriter
	TokenTimer
)

type addReaderReq struct {
	reader *StatefulReader
	done   chan struct{}
}

type addWriterReq struct {
	writer *StatefulWriter
	done   chan struct{}
}

// timerEntry is one scheduled callback in the Reactor's timer heap. The
// heap gives the Reactor a single "time until next wakeup" to hand
// time.NewTimer, instead of one OS timer per registered callback.
type timerEntry struct {
	at       time.Time
	interval time.Duration // 0 means one-shot
	fn       func()
	index    int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x any)         { e := x.(*timerEntry); e.index = len(*h); *h = append(*h, e) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Reactor is the single-threaded cooperative event loop: one goroutine,
// driven entirely by select over channels fed by the discovery/user
// transports and by the control channels the Participant uses to
// add/remove endpoints. It owns every StatefulWriter and StatefulReader
// it is handed -- nothing outside this goroutine may touch their
// HistoryCache or proxy tables.
type Reactor struct {
	zerolog.Logger

	discovery Transport
	user      Transport
	receiver  *MessageReceiver

	// Capture, when set, archives every inbound datagram before it is
	// parsed -- the wire-level counterpart to stages/write.go's capture
	// file, repurposed here for raw RTPS traffic instead of BGP.
	Capture *capture.Capture

	addReaderCh    chan addReaderReq
	removeReaderCh chan Guid
	addWriterCh    chan addWriterReq
	removeWriterCh chan Guid
	stopCh         chan struct{}
	stoppedCh      chan struct{}

	writers map[Guid]*StatefulWriter
	readers map[Guid]*StatefulReader

	// order endpoints were added, for LIFO teardown on STOP.
	addOrder []Guid

	timers timerHeap
}

func NewReactor(discovery, user Transport, dispatch EntityDispatch, logger zerolog.Logger) *Reactor {
	return &Reactor{
		Logger:         logger,
		discovery:      discovery,
		user:           user,
		receiver:       NewMessageReceiver(dispatch, logger),
		addReaderCh:    make(chan addReaderReq),
		removeReaderCh: make(chan Guid),
		addWriterCh:    make(chan addWriterReq),
		removeWriterCh: make(chan Guid),
		stopCh:         make(chan struct{}),
		stoppedCh:      make(chan struct{}),
		writers:        make(map[Guid]*StatefulWriter),
		readers:        make(map[Guid]*StatefulReader),
	}
}

// AddReader/AddWriter/RemoveReader/RemoveWriter are the Participant's
// thread-safe handles onto the Reactor: they hand a request to the loop's
// control channel. AddReader/AddWriter block until the loop has applied
// it, so by the time the call returns the endpoint really is wired;
// RemoveReader/RemoveWriter return as soon as the loop has received the
// GUID.
func (rx *Reactor) AddReader(r *StatefulReader) {
	req := addReaderReq{reader: r, done: make(chan struct{})}
	rx.addReaderCh <- req
	<-req.done
}

func (rx *Reactor) AddWriter(w *StatefulWriter) {
	req := addWriterReq{writer: w, done: make(chan struct{})}
	rx.addWriterCh <- req
	<-req.done
}

func (rx *Reactor) RemoveReader(guid Guid) { rx.removeReaderCh <- guid }
func (rx *Reactor) RemoveWriter(guid Guid) { rx.removeWriterCh <- guid }

// scheduleHeartbeat registers a recurring timer token driving a writer's
// OnHeartbeatTick.
func (rx *Reactor) scheduleHeartbeat(w *StatefulWriter, period time.Duration) {
	heap.Push(&rx.timers, &timerEntry{at: time.Now().Add(period), interval: period, fn: w.OnHeartbeatTick})
}

// scheduleDeadlineCheck registers a recurring timer token that fires a
// deadline-missed notification whenever r.CheckDeadline reports no sample
// arrived within Qos.Deadline -- the reader-side counterpart to
// scheduleHeartbeat's periodic writer-side token.
func (rx *Reactor) scheduleDeadlineCheck(r *StatefulReader) {
	period := r.Qos.Deadline
	heap.Push(&rx.timers, &timerEntry{
		at:       time.Now().Add(period),
		interval: period,
		fn: func() {
			if r.CheckDeadline(time.Now()) {
				admin.DeadlineMissed.Inc()
				rx.Warn().Str("reader", r.Guid.String()).Dur("deadline", period).
					Msg("deadline missed: no sample delivered within the configured period")
			}
		},
	})
}

// Stop requests the loop to exit. STOP is level-triggered and checked
// first on every wakeup -- once raised, the loop tears down every
// endpoint in LIFO order and returns without draining remaining traffic
// tokens.
func (rx *Reactor) Stop() {
	close(rx.stopCh)
	<-rx.stoppedCh
}

// Run is the cooperative loop itself. It never spawns a goroutine to do
// protocol work; the only goroutines involved are the Transport's own
// socket readers feeding rx.discovery.Recv()/rx.user.Recv() and the
// Participant-side callers of AddReader/AddWriter/etc, both of which only
// ever communicate through channels.
func (rx *Reactor) Run(ctx context.Context) {
	defer close(rx.stoppedCh)

	var timerC <-chan time.Time
	var timer *time.Timer
	resetTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		if len(rx.timers) == 0 {
			timerC = nil
			return
		}
		d := time.Until(rx.timers[0].at)
		if d < 0 {
			d = 0
		}
		timer = time.NewTimer(d)
		timerC = timer.C
	}
	resetTimer()

	for {
		select {
		case <-rx.stopCh:
			rx.teardownAll()
			return
		default:
		}

		select {
		case <-rx.stopCh:
			rx.teardownAll()
			return
		case <-ctx.Done():
			rx.teardownAll()
			return

		case dgram := <-rx.discovery.Recv():
			rx.drainToken(TokenDiscoveryTraffic, dgram)
			resetTimer()

		case dgram := <-rx.user.Recv():
			rx.drainToken(TokenUserTraffic, dgram)
			resetTimer()

		case req := <-rx.addReaderCh:
			rx.readers[req.reader.Guid] = req.reader
			rx.addOrder = append(rx.addOrder, req.reader.Guid)
			if req.reader.Qos.Deadline > 0 {
				rx.scheduleDeadlineCheck(req.reader)
				resetTimer()
			}
			close(req.done)

		case guid := <-rx.removeReaderCh:
			delete(rx.readers, guid)

		case req := <-rx.addWriterCh:
			rx.writers[req.writer.Guid] = req.writer
			rx.addOrder = append(rx.addOrder, req.writer.Guid)
			rx.scheduleHeartbeat(req.writer, time.Second)
			resetTimer()
			close(req.done)

		case guid := <-rx.removeWriterCh:
			delete(rx.writers, guid)

		case <-timerC:
			rx.fireDueTimers()
			resetTimer()
		}
	}
}

// drainToken processes dgram and then keeps draining the same readiness
// source without blocking, implementing "fully drain before
// repolling" semantics: a burst of datagrams on one transport is consumed
// in one wakeup rather than round-robining with the other select cases
// datagram by datagram.
func (rx *Reactor) drainToken(tok Token, first Datagram) {
	rx.process(first)
	var ch <-chan Datagram
	switch tok {
	case TokenDiscoveryTraffic:
		ch = rx.discovery.Recv()
	case TokenUserTraffic:
		ch = rx.user.Recv()
	}
	for {
		select {
		case d := <-ch:
			rx.process(d)
		default:
			return
		}
	}
}

func (rx *Reactor) process(d Datagram) {
	if rx.Capture != nil {
		if err := rx.Capture.Write(capture.Record{Outbound: false, At: time.Now(), Payload: d.Payload}); err != nil {
			rx.Debug().Err(err).Msg("capture write failed")
		}
	}
	if err := rx.receiver.Process(d.Payload); err != nil {
		admin.DatagramsDropped.Inc()
		rx.Debug().Err(err).Msg("dropping malformed datagram")
	}
}

func (rx *Reactor) fireDueTimers() {
	now := time.Now()
	for len(rx.timers) > 0 && !rx.timers[0].at.After(now) {
		e := heap.Pop(&rx.timers).(*timerEntry)
		e.fn()
		if e.interval > 0 {
			e.at = now.Add(e.interval)
			heap.Push(&rx.timers, e)
		}
	}
}

// teardownAll tears down every endpoint in the reverse order it was added.
func (rx *Reactor) teardownAll() {
	for i := len(rx.addOrder) - 1; i >= 0; i-- {
		guid := rx.addOrder[i]
		delete(rx.writers, guid)
		delete(rx.readers, guid)
	}
	rx.addOrder = nil
}
