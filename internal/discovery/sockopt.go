package discovery

import (
	"syscall"
)

// setReuseAndBroadcast is the net.ListenConfig.Control callback that
// enables SO_REUSEADDR and SO_BROADCAST on the discovery socket before
// bind.
func setReuseAndBroadcast(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); sockErr != nil {
			return
		}
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
