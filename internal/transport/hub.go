package transport

import (
	"net/netip"
	"sync"
	"time"
)

const endpointBacklog = 256

type datagram struct {
	src  netip.AddrPort
	data []byte
}

// Hub is an in-memory datagram network. Endpoints exchange datagrams by
// address; datagrams to unknown addresses or full endpoints are lost.
type Hub struct {
	mu        sync.Mutex
	endpoints map[netip.AddrPort]*Endpoint
}

func NewHub() *Hub {
	return &Hub{endpoints: make(map[netip.AddrPort]*Endpoint)}
}

// Listen attaches an endpoint at addr, replacing any previous one
func (h *Hub) Listen(addr netip.AddrPort) *Endpoint {
	ep := &Endpoint{
		hub:    h,
		addr:   addr,
		inbox:  make(chan datagram, endpointBacklog),
		closed: make(chan struct{}),
	}
	h.mu.Lock()
	h.endpoints[addr] = ep
	h.mu.Unlock()
	return ep
}

func (h *Hub) lookup(addr netip.AddrPort) *Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.endpoints[addr]
}

func (h *Hub) remove(ep *Endpoint) {
	h.mu.Lock()
	if h.endpoints[ep.addr] == ep {
		delete(h.endpoints, ep.addr)
	}
	h.mu.Unlock()
}

// Endpoint is a Transport attached to a Hub
type Endpoint struct {
	hub    *Hub
	addr   netip.AddrPort
	inbox  chan datagram
	once   sync.Once
	closed chan struct{}
}

// Pipe returns two endpoints of a private hub, at 10.0.0.1:9000 and 10.0.0.2:9000
func Pipe() (*Endpoint, *Endpoint) {
	hub := NewHub()
	a := hub.Listen(netip.MustParseAddrPort("10.0.0.1:9000"))
	b := hub.Listen(netip.MustParseAddrPort("10.0.0.2:9000"))
	return a, b
}

func (e *Endpoint) Addr() netip.AddrPort {
	return e.addr
}

func (e *Endpoint) Send(data []byte, dest netip.AddrPort) error {
	select {
	case <-e.closed:
		return ErrClosed
	default:
	}

	peer := e.hub.lookup(dest)
	if peer == nil {
		return nil
	}

	dg := datagram{src: e.addr, data: append([]byte(nil), data...)}
	select {
	case peer.inbox <- dg:
	default:
	}
	return nil
}

func (e *Endpoint) Receive(buf []byte, timeout time.Duration) (int, netip.AddrPort, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case dg := <-e.inbox:
		return copy(buf, dg.data), dg.src, nil
	case <-timer.C:
		return 0, netip.AddrPort{}, ErrTimeout
	case <-e.closed:
		return 0, netip.AddrPort{}, ErrClosed
	}
}

func (e *Endpoint) Close() error {
	e.once.Do(func() {
		close(e.closed)
		e.hub.remove(e)
	})
	return nil
}
