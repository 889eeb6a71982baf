//go:build linux

package transport

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

func control(iface string) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			if opErr != nil {
				opErr = fmt.Errorf("failed to set SO_REUSEADDR: %w", opErr)
				return
			}
			if iface == "" {
				return
			}
			if opErr = unix.BindToDevice(int(fd), iface); opErr != nil {
				opErr = fmt.Errorf("failed to bind to device %s: %w", iface, opErr)
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}
}
