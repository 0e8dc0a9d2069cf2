//go:build linux

package session

import (
	"net"
	"syscall"
	"time"
)

// setKeepAliveProbeInterval applies TCP_KEEPINTVL on top of the portable
// SetKeepAlivePeriod call, so the configured idle and probe intervals are
// honored exactly rather than approximated by the single-knob stdlib API.
// Best-effort: failures are not fatal to the session.
func setKeepAliveProbeInterval(conn *net.TCPConn, interval time.Duration) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return
	}
	seconds := int(interval.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	_ = raw.Control(func(fd uintptr) {
		_ = syscall.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, syscall.TCP_KEEPINTVL, seconds)
	})
}
