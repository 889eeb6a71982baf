package transport

import (
	"errors"
	"net/netip"
	"time"
)

var (
	ErrTimeout = errors.New("receive timed out")
	ErrClosed  = errors.New("transport closed")
)

// Transport moves datagrams for one link
type Transport interface {
	Send(data []byte, dest netip.AddrPort) error
	// Receive waits up to timeout for one datagram and returns ErrTimeout
	// when none arrived
	Receive(buf []byte, timeout time.Duration) (int, netip.AddrPort, error)
	Close() error
}
