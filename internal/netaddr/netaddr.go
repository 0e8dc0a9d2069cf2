// Package netaddr resolves the server's primary IPv4 address on the local
// LAN, once, at startup. This is a generalization of detectLANIP from the
// orchestrator's gRPC entrypoint: that version walked net.InterfaceAddrs()
// with no interface-state check; this one additionally requires the owning
// interface to be up and non-loopback.
package netaddr

import (
	"net"

	"github.com/rvmesh/coordinator/internal/logging"
)

// Loopback is returned when no operational, non-loopback IPv4 interface
// can be found.
const Loopback = "127.0.0.1"

var log = logging.Component("netaddr")

// Probe returns the first IPv4 unicast address bound to an operational,
// non-loopback interface, or Loopback if none is found or enumeration
// fails. It never returns an error: failure is diagnostic-only.
func Probe() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		log.WithError(err).Warn("failed to enumerate interfaces, falling back to loopback")
		return Loopback
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			log.WithError(err).WithField("interface", iface.Name).Warn("failed to read interface addresses")
			continue
		}

		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() {
				continue
			}
			return ip4.String()
		}
	}

	log.Warn("no operational non-loopback IPv4 interface found, falling back to loopback")
	return Loopback
}
