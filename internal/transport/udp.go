package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// UDP is a datagram socket, optionally bound to one network interface
type UDP struct {
	conn  *net.UDPConn
	iface string
}

// ListenUDP opens a socket on port. When iface is set the socket only sees
// traffic of that interface, so both links of a node may share a port.
func ListenUDP(ctx context.Context, iface string, port uint16) (*UDP, error) {
	lc := net.ListenConfig{Control: control(iface)}

	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s:%d: %w", iface, port, err)
	}

	log.Debug().Str("interface", iface).Uint16("port", port).Msg("UDP socket bound")
	return &UDP{conn: pc.(*net.UDPConn), iface: iface}, nil
}

// DialUDP opens an unbound socket on an ephemeral port
func DialUDP(ctx context.Context) (*UDP, error) {
	return ListenUDP(ctx, "", 0)
}

func (u *UDP) Send(data []byte, dest netip.AddrPort) error {
	_, err := u.conn.WriteToUDPAddrPort(data, dest)
	return err
}

func (u *UDP) Receive(buf []byte, timeout time.Duration) (int, netip.AddrPort, error) {
	if err := u.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, netip.AddrPort{}, err
	}

	n, src, err := u.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, netip.AddrPort{}, ErrTimeout
		}
		if errors.Is(err, net.ErrClosed) {
			return 0, netip.AddrPort{}, ErrClosed
		}
		return 0, netip.AddrPort{}, err
	}
	return n, netip.AddrPortFrom(src.Addr().Unmap(), src.Port()), nil
}

func (u *UDP) LocalAddr() netip.AddrPort {
	return u.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func (u *UDP) Close() error {
	return u.conn.Close()
}
