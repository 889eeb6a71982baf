//go:build !linux

package transport

import (
	"errors"
	"syscall"
)

var errBindToDevice = errors.New("binding to an interface is only supported on linux")

func control(iface string) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		if iface != "" {
			return errBindToDevice
		}
		return nil
	}
}
