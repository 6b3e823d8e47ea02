package core

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rtpsfix/rtpsd/admin"
	"github.com/rtpsfix/rtpsd/capture"
	"github.com/rtpsfix/rtpsd/export"
)

// ParticipantConfig is the plain struct AddFlags/LoadConfig populate from
// CLI flags (koanf+pflag) -- see config.go.
type ParticipantConfig struct {
	DomainId      int
	ParticipantId int
	UnicastAddr   netip.AddrPort
	Codec         Codec

	// Access control, optional: when set, NewParticipant runs its
	// CheckCreateParticipant for DomainId and fails if it is denied.
	// Readers, writers and their matched remote endpoints are not checked
	// individually.
	AccessControl AccessControlChecker

	// Capture, optional: archives every inbound datagram the Reactor sees.
	Capture *capture.Capture
	// Export, optional: every reader this participant creates mirrors its
	// delivered samples to this Kafka bridge.
	Export *export.KafkaBridge
}

// AccessControlChecker is the narrow interface Participant needs from the
// security package, kept here (instead of importing security directly) so
// core has no dependency on crypto/XML parsing -- the boundary between
// the RTPS core and the access-control admission layer.
type AccessControlChecker interface {
	CheckCreateParticipant(domainId int) error
}

// Participant is the top-level object a caller constructs: it owns the
// Reactor, the discovery/user transports, and the writer/reader tables,
// and is the lifecycle unit access control is scoped to.
//
// The embedded zerolog.Logger gives every subordinate object a shared
// structured logger, and the context.WithCancelCause lifecycle gives a
// single cancel-with-cause used for both operator-requested shutdown and
// fatal-error propagation.
type Participant struct {
	zerolog.Logger

	Ctx    context.Context
	Cancel context.CancelCauseFunc

	cfg ParticipantConfig

	discovery Transport
	user      Transport
	reactor   *Reactor

	mu      sync.Mutex
	writers map[Guid]*StatefulWriter
	readers map[Guid]*StatefulReader

	guidPrefix GuidPrefix
	nextEntity uint32

	// Registry mirrors every writer/reader this participant owns for the
	// admin HTTP/WebSocket surface (main.go wires it to admin.Server when
	// --admin-addr is set); it is always populated so admin can be attached
	// after the fact without missing earlier endpoints.
	Registry *admin.Registry
}

// NewParticipant brings up a participant: runs access control's
// create-participant check (when configured), opens discovery+user
// transports, and starts the Reactor goroutine. A SecurityError or
// TransportError here is fatal to construction.
func NewParticipant(ctx context.Context, prefix GuidPrefix, cfg ParticipantConfig, logger zerolog.Logger) (*Participant, error) {
	if cfg.AccessControl != nil {
		if err := cfg.AccessControl.CheckCreateParticipant(cfg.DomainId); err != nil {
			return nil, err
		}
	}

	cctx, cancel := context.WithCancelCause(ctx)

	p := &Participant{
		Logger:     logger,
		Ctx:        cctx,
		Cancel:     cancel,
		cfg:        cfg,
		writers:    make(map[Guid]*StatefulWriter),
		readers:    make(map[Guid]*StatefulReader),
		guidPrefix: prefix,
		Registry:   admin.NewRegistry(),
	}

	discoveryMcast := netip.AddrPortFrom(netip.MustParseAddr("239.255.0.1"), DiscoveryMulticastPort(cfg.DomainId))
	discoveryUnicast := netip.AddrPortFrom(cfg.UnicastAddr.Addr(), DiscoveryUnicastPort(cfg.DomainId, cfg.ParticipantId))
	disc, err := NewUDPTransport(cctx, discoveryUnicast, discoveryMcast)
	if err != nil {
		cancel(err)
		return nil, err
	}

	userUnicast := netip.AddrPortFrom(cfg.UnicastAddr.Addr(), UserUnicastPort(cfg.DomainId, cfg.ParticipantId))
	user, err := NewUDPTransport(cctx, userUnicast, netip.AddrPort{})
	if err != nil {
		disc.Close()
		cancel(err)
		return nil, err
	}

	p.discovery = disc
	p.user = user
	p.reactor = NewReactor(disc, user, p, logger)
	p.reactor.Capture = cfg.Capture

	go p.reactor.Run(cctx)
	return p, nil
}

// NewGuid mints a fresh entity id for the given entity kind byte.
func (p *Participant) NewGuid(kind byte) Guid {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextEntity++
	return Guid{Prefix: p.guidPrefix, Entity: NewEntityId(p.nextEntity, kind)}
}

// CreateWriter builds a StatefulWriter and registers it with the Reactor.
func (p *Participant) CreateWriter(qos QoS) (*StatefulWriter, error) {
	guid := p.NewGuid(EntityKindUserWriterNoKey)
	w, err := NewStatefulWriter(guid, qos, p.user, p.Logger)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.writers[guid] = w
	p.mu.Unlock()
	p.reactor.AddWriter(w)
	p.Registry.Publish(admin.EndpointSnapshot{Guid: guidString(guid), Kind: "writer", CacheLength: w.HistoryCache().Len()})
	return w, nil
}

// CreateReader builds a StatefulReader and registers it with the Reactor.
func (p *Participant) CreateReader(qos QoS) (*StatefulReader, error) {
	guid := p.NewGuid(EntityKindUserReaderNoKey)
	r, err := NewStatefulReader(guid, qos, p.user, p.Logger)
	if err != nil {
		return nil, err
	}
	r.Export = p.cfg.Export
	p.mu.Lock()
	p.readers[guid] = r
	p.mu.Unlock()
	p.reactor.AddReader(r)
	p.Registry.Publish(admin.EndpointSnapshot{Guid: guidString(guid), Kind: "reader", CacheLength: r.HistoryCache().Len()})
	return r, nil
}

func (p *Participant) DeleteWriter(guid Guid) {
	p.mu.Lock()
	delete(p.writers, guid)
	p.mu.Unlock()
	p.reactor.RemoveWriter(guid)
	p.Registry.Remove(guidString(guid))
}

func (p *Participant) DeleteReader(guid Guid) {
	p.mu.Lock()
	delete(p.readers, guid)
	p.mu.Unlock()
	p.reactor.RemoveReader(guid)
	p.Registry.Remove(guidString(guid))
}

func guidString(g Guid) string {
	return fmt.Sprintf("%x-%x", g.Prefix, g.Entity)
}

// Close stops the Reactor (LIFO endpoint teardown), closes both
// transports, and cancels the participant's context.
func (p *Participant) Close() error {
	p.reactor.Stop()
	p.discovery.Close()
	p.user.Close()
	p.Cancel(fmt.Errorf("participant closed"))
	return nil
}

// EntityDispatch implementation: Participant is the Reactor's dispatch
// target, routing each submessage to the writer/reader its WriterId/
// ReaderId addresses.

func (p *Participant) DispatchAckNack(ctx ReceiverContext, m AckNackSubmessage) {
	guid := Guid{Prefix: p.guidPrefix, Entity: m.WriterId}
	p.mu.Lock()
	w := p.writers[guid]
	p.mu.Unlock()
	if w != nil {
		w.DispatchAckNack(ctx, m)
	}
}

func (p *Participant) DispatchHeartbeat(ctx ReceiverContext, m HeartbeatSubmessage) {
	guid := Guid{Prefix: p.guidPrefix, Entity: m.ReaderId}
	p.mu.Lock()
	r := p.readers[guid]
	p.mu.Unlock()
	if r != nil {
		r.DispatchHeartbeat(ctx, m)
	}
}

func (p *Participant) DispatchGap(ctx ReceiverContext, m GapSubmessage) {
	guid := Guid{Prefix: p.guidPrefix, Entity: m.ReaderId}
	p.mu.Lock()
	r := p.readers[guid]
	p.mu.Unlock()
	if r != nil {
		r.DispatchGap(ctx, m)
	}
}

func (p *Participant) DispatchData(ctx ReceiverContext, m DataSubmessage) {
	guid := Guid{Prefix: p.guidPrefix, Entity: m.ReaderId}
	p.mu.Lock()
	r := p.readers[guid]
	p.mu.Unlock()
	if r != nil {
		r.DispatchData(ctx, m)
	}
}
