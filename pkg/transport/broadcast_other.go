//go:build !unix

package transport

import "syscall"

// Non-unix platforms are only used for development; limited broadcast
// without SO_BROADCAST fails at send time there.
func broadcastControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
