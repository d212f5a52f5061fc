//go:build !unix

package discovery

import "syscall"

// The runtime already enables SO_BROADCAST on datagram sockets here, and
// address reuse is not offered off unix.
func socketControl(bool) func(network, address string, c syscall.RawConn) error {
	return nil
}
