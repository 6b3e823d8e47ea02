package core

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/sys/unix"
)

// Datagram is one inbound packet plus the locator it arrived from, handed
// to the MessageReceiver by a Transport's Recv channel.
type Datagram struct {
	From    Locator
	Payload []byte
}

// Transport is the send/receive boundary the Reactor drives. The core
// never assumes UDP directly -- it only calls this interface -- but ships
// UDPTransport below as the default, runnable implementation.
type Transport interface {
	SendTo(loc Locator, payload []byte) error
	Recv() <-chan Datagram
	Close() error
}

// UDPTransport listens on one unicast socket and an optional multicast
// group, fanning inbound datagrams into a single channel. The read loop
// runs in its own goroutine and feeds the channel the Reactor selects on,
// a goroutine-plus-channel shape that multiplexes a socket without a raw
// epoll binding.
type UDPTransport struct {
	conn  *net.UDPConn
	mcast *net.UDPConn
	recv  chan Datagram
	done  chan struct{}
}

// NewUDPTransport opens a unicast socket bound to unicastAddr and, if
// multicastGroup is valid, joins that multicast group on the same port
// range. SO_REUSEPORT is requested via golang.org/x/sys/unix because the
// stdlib net package exposes no portable way to let multiple participants
// share a discovery multicast port on the same host.
func NewUDPTransport(ctx context.Context, unicastAddr netip.AddrPort, multicastGroup netip.AddrPort) (*UDPTransport, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	pconn, err := lc.ListenPacket(ctx, "udp", unicastAddr.String())
	if err != nil {
		return nil, &TransportError{Op: "listen unicast", Err: err}
	}
	conn := pconn.(*net.UDPConn)

	t := &UDPTransport{
		conn: conn,
		recv: make(chan Datagram, 256),
		done: make(chan struct{}),
	}

	if multicastGroup.IsValid() {
		mc, err := net.ListenMulticastUDP("udp", nil, net.UDPAddrFromAddrPort(multicastGroup))
		if err != nil {
			conn.Close()
			return nil, &TransportError{Op: "listen multicast", Err: err}
		}
		t.mcast = mc
		go t.readLoop(mc)
	}

	go t.readLoop(conn)
	return t, nil
}

func (t *UDPTransport) readLoop(conn *net.UDPConn) {
	buf := make([]byte, 65536)
	for {
		n, addr, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		select {
		case t.recv <- Datagram{From: LocatorFromUDP4(addr), Payload: payload}:
		case <-t.done:
			return
		}
	}
}

func (t *UDPTransport) SendTo(loc Locator, payload []byte) error {
	ap, ok := loc.AddrPort()
	if !ok {
		return &TransportError{Op: "send", Err: fmt.Errorf("unsupported locator kind %d", loc.Kind)}
	}
	_, err := t.conn.WriteToUDPAddrPort(payload, ap)
	if err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

func (t *UDPTransport) Recv() <-chan Datagram {
	return t.recv
}

func (t *UDPTransport) Close() error {
	close(t.done)
	t.conn.Close()
	if t.mcast != nil {
		t.mcast.Close()
	}
	return nil
}
