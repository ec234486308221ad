//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package beacon

import "syscall"

// The runtime already enables SO_BROADCAST on datagram sockets; port sharing is not available here.
func controlReuse(network, address string, c syscall.RawConn) error {
	return nil
}

func controlBroadcast(network, address string, c syscall.RawConn) error {
	return nil
}
