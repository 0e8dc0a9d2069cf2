// Package discovery implements the UDP discovery responder. It replies to
// "announce" datagrams from relay controllers with the server's IPv4 and
// TCP port so the peer can open its session. The responder holds no
// per-peer state: a datagram in, an ack out, nothing remembered between
// them.
//
// This supersedes the peer-to-peer presence-broadcast version of this
// package (periodic self-announce, stale-peer cleanup via a callback
// interface) with a server-only request/reply role; the receive-loop
// shape — read-deadline-driven so context cancellation is observed
// promptly even on an idle socket — carries over unchanged.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rvmesh/coordinator/internal/logging"
	"github.com/rvmesh/coordinator/internal/protocol"
)

var log = logging.Component("discovery")

// pollInterval bounds how long a single ReadFromUDP call blocks before the
// receive loop rechecks ctx.Done(), so Stop returns promptly even with no
// traffic.
const pollInterval = time.Second

// Responder binds udp_port and answers "announce" datagrams with "ack".
type Responder struct {
	udpPort  int
	serverIP string
	tcpPort  int

	conn *net.UDPConn
	wg   sync.WaitGroup
}

// New creates a Responder. serverIP is the value probed once at startup
// (internal/netaddr.Probe); tcpPort is the Session Server's listening port.
func New(udpPort, tcpPort int, serverIP string) *Responder {
	return &Responder{udpPort: udpPort, tcpPort: tcpPort, serverIP: serverIP}
}

// Start binds the UDP socket and begins the receive loop. It returns once
// bind succeeds; the receive loop runs until ctx is cancelled or Stop is
// called. A bind failure is returned to the caller and is fatal only to
// this component.
func (r *Responder) Start(ctx context.Context) error {
	lc := net.ListenConfig{Control: setReuseAndBroadcast}
	pc, err := lc.ListenPacket(ctx, "udp4", (&net.UDPAddr{IP: net.IPv4zero, Port: r.udpPort}).String())
	if err != nil {
		return err
	}
	r.conn = pc.(*net.UDPConn)

	r.wg.Add(1)
	go r.receiveLoop(ctx)

	log.WithField("port", r.udpPort).Info("discovery responder listening")
	return nil
}

// Addr returns the socket's bound address. Only meaningful after Start.
func (r *Responder) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// Stop closes the UDP socket and waits for the receive loop to exit.
func (r *Responder) Stop() {
	if r.conn != nil {
		_ = r.conn.Close()
	}
	r.wg.Wait()
}

func (r *Responder) receiveLoop(ctx context.Context) {
	defer r.wg.Done()

	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = r.conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return // socket closed by Stop/cancellation during shutdown
			}
			log.WithError(err).Warn("discovery: transient receive error")
			continue
		}

		r.handleDatagram(buf[:n], addr)
	}
}

func (r *Responder) handleDatagram(payload []byte, from *net.UDPAddr) {
	var env protocol.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.WithError(err).WithField("from", from).Debug("discovery: malformed or non-UTF-8 datagram, ignored")
		return
	}

	if env.Type != protocol.TypeAnnounce {
		log.WithField("type", env.Type).WithField("from", from).Debug("discovery: unknown message type, ignored")
		return
	}

	var announce protocol.Announce
	if err := json.Unmarshal(payload, &announce); err != nil {
		log.WithError(err).WithField("from", from).Debug("discovery: malformed announce, ignored")
		return
	}

	ack := protocol.Ack{
		Type:     protocol.TypeAck,
		ServerIP: r.serverIP,
		TCPPort:  r.tcpPort,
	}
	data, err := json.Marshal(ack)
	if err != nil {
		log.WithError(err).Error("discovery: failed to marshal ack")
		return
	}

	if _, err := r.conn.WriteToUDP(data, from); err != nil {
		// Best-effort delivery; a send failure during shutdown (socket
		// closing mid-send) is expected and swallowed.
		log.WithError(err).Debug("discovery: ack send failed")
		return
	}

	log.WithField("target_id", announce.TargetID).WithField("from", from).Debug("discovery: acked announce")
}
