// Package session implements the TCP session server: accepting
// connections, framing newline-delimited JSON, classifying frames, and
// driving the per-connection OPEN -> BOUND -> CLOSED state machine.
package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/rvmesh/coordinator/internal/events"
	"github.com/rvmesh/coordinator/internal/logging"
	"github.com/rvmesh/coordinator/internal/protocol"
	"github.com/rvmesh/coordinator/internal/registry"
)

var log = logging.Component("session")

// State is a session's position in the OPEN -> BOUND -> CLOSED machine.
// A session may never leave CLOSED.
type State int

const (
	StateOpen State = iota
	StateBound
	StateClosed
)

// ErrNotConnected is returned by Server.SendCommand when target_id has no
// live session.
var ErrNotConnected = errors.New("session: target not connected")

// Config bundles the session server's runtime knobs.
type Config struct {
	TCPPort               int
	KeepAliveIdle         time.Duration
	KeepAliveInterval     time.Duration
}

// Server accepts TCP connections from relay controllers and dispatches
// their frames against the shared registry.
type Server struct {
	cfg Config
	reg *registry.Registry
	bus *events.Bus

	listener net.Listener
	wg       sync.WaitGroup
}

// New creates a Server bound to the given registry and event bus.
func New(cfg Config, reg *registry.Registry, bus *events.Bus) *Server {
	return &Server{cfg: cfg, reg: reg, bus: bus}
}

// Start binds tcp_port and begins accepting connections. A bind failure is
// returned to the caller and is fatal only to this component.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{Control: setReuseAddr}
	ln, err := lc.Listen(ctx, "tcp4", fmt.Sprintf(":%d", s.cfg.TCPPort))
	if err != nil {
		return err
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	log.WithField("port", s.cfg.TCPPort).Info("session server listening")
	return nil
}

// Addr returns the listener's bound address. Only meaningful after Start.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop closes the listener and waits for the accept loop and every
// connection handler to exit. It does not forcibly close already-accepted
// connections; those observe ctx cancellation (passed down from the
// caller's Start ctx) and tear down on their own, so Stop returns only
// after that ctx is cancelled or every peer has disconnected.
func (s *Server) Stop() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return // listener closed by Stop/cancellation
			}
			log.WithError(err).Warn("session: accept error, continuing")
			continue
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			applyKeepAlive(tcpConn, s.cfg.KeepAliveIdle, s.cfg.KeepAliveInterval)
		}

		h := &handler{
			conn:      conn,
			sessionID: uuid.NewString(),
			reg:       s.reg,
			bus:       s.bus,
			state:     StateOpen,
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			h.run(ctx)
		}()
	}
}

// SendCommand looks up target_id's live connection and writes a command
// frame to it, terminated by '\n'. It never blocks on the peer's
// acknowledgement.
func (s *Server) SendCommand(targetID, deviceType, label, state string) error {
	closer, ok := s.reg.Session(targetID)
	if !ok || closer == nil {
		return ErrNotConnected
	}
	h, ok := closer.(*handler)
	if !ok {
		return ErrNotConnected
	}
	return h.sendCommand(deviceType, label, state)
}

func applyKeepAlive(conn *net.TCPConn, idle, interval time.Duration) {
	if err := conn.SetKeepAlive(true); err != nil {
		log.WithError(err).Debug("session: SetKeepAlive failed")
		return
	}
	if err := conn.SetKeepAlivePeriod(idle); err != nil {
		log.WithError(err).Debug("session: SetKeepAlivePeriod failed")
	}
	setKeepAliveProbeInterval(conn, interval)
}

func setReuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// handler owns one accepted connection for its whole lifetime. It
// satisfies registry.Closer so the registry can evict it without importing
// this package.
type handler struct {
	conn      net.Conn
	sessionID string
	reg       *registry.Registry
	bus       *events.Bus

	mu       sync.Mutex
	state    State
	targetID string
	closed   bool
}

func (h *handler) run(ctx context.Context) {
	defer h.close("")

	go func() {
		<-ctx.Done()
		_ = h.conn.Close() // unblocks the read below on cancellation
	}()

	reader := bufio.NewReader(h.conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// ReadString joins physical reads until a '\n', so a frame may
			// span several reads. A partial, newline-less tail at
			// EOF/error is not a complete frame and is discarded, not
			// processed.
			return
		}
		h.handleFrame([]byte(line))
	}
}

func (h *handler) handleFrame(raw []byte) {
	line := trimNewline(raw)
	if len(line) == 0 {
		return
	}

	var env protocol.Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		log.WithField("session_id", h.sessionID).WithError(err).Debug("session: malformed frame, ignored")
		return
	}

	h.bus.Publish(events.Event{Kind: events.KindMessageReceived, MessageType: string(env.Type), Message: json.RawMessage(append([]byte(nil), line...))})

	if targetID := h.boundTargetID(); targetID != "" {
		h.reg.Touch(targetID)
	}

	switch env.Type {
	case protocol.TypeDeviceInfo:
		h.handleDeviceInfo(line)
	case protocol.TypeHeartbeat:
		// No further action: the Touch call above already refreshed
		// last_heartbeat, which is all a heartbeat frame carries.
	case protocol.TypeStatusUpdate:
		h.handleStatusUpdate(line)
	default:
		log.WithField("session_id", h.sessionID).WithField("type", env.Type).Debug("session: unknown frame type, ignored")
	}
}

func (h *handler) handleDeviceInfo(line []byte) {
	var msg protocol.DeviceInfo
	if err := json.Unmarshal(line, &msg); err != nil || msg.TargetID == "" {
		log.WithField("session_id", h.sessionID).Warn("session: device_info missing target_id, ignored")
		return
	}

	prior := h.reg.Register(msg.TargetID, msg.Relays, h)

	h.mu.Lock()
	h.targetID = msg.TargetID
	h.state = StateBound
	h.mu.Unlock()

	log.WithField("session_id", h.sessionID).WithField("target_id", msg.TargetID).Info("session: bound")

	if prior != nil && prior != h {
		_ = prior.Close()
	}
}

func (h *handler) handleStatusUpdate(line []byte) {
	targetID := h.boundTargetID()
	if targetID == "" {
		return
	}

	var msg protocol.StatusUpdate
	if err := json.Unmarshal(line, &msg); err != nil {
		log.WithField("session_id", h.sessionID).WithError(err).Debug("session: malformed status_update")
		return
	}
	if msg.State == "" {
		return
	}

	if !h.reg.UpdateStatus(targetID, msg.ID, msg.Label, msg.State) {
		log.WithField("session_id", h.sessionID).WithField("label", msg.Label).Debug("session: status_update matched no entry, ignored")
		return
	}

	ack := protocol.StatusAck{Type: protocol.TypeStatusAck, ID: msg.ID, State: msg.State}
	if msg.ID == "" {
		ack.ID = msg.Label
	}
	h.writeFrame(ack)
}

func (h *handler) boundTargetID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateBound {
		return ""
	}
	return h.targetID
}

func (h *handler) sendCommand(deviceType, label, state string) error {
	cmd := protocol.NewCommand(h.boundTargetIDUnsafe(), deviceType, label, state)
	return h.writeFrame(cmd)
}

// boundTargetIDUnsafe returns targetID regardless of state; SendCommand's
// caller already resolved this handler via the registry, which is the
// authoritative "is this connected" check.
func (h *handler) boundTargetIDUnsafe() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.targetID
}

func (h *handler) writeFrame(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrNotConnected
	}

	if _, err := h.conn.Write(data); err != nil {
		return err
	}
	return nil
}

// Close tears the session down and fires DeviceDisconnected exactly once,
// only if the session had reached BOUND.
func (h *handler) Close() error {
	h.close("closed by caller")
	return nil
}

func (h *handler) close(reason string) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	targetID := h.targetID
	wasBound := h.state == StateBound
	h.state = StateClosed
	h.mu.Unlock()

	_ = h.conn.Close()

	if wasBound {
		// RemoveIfCurrent only deletes the registry entry if it still
		// points at this handler: a newer session for the same target_id
		// may have already superseded it (last-writer-wins), in which case
		// the registry entry is left for that newer session to own. Either
		// way, this handler's own termination still fires
		// DeviceDisconnected exactly once, since close() runs its body at
		// most once per handler, guarded by h.closed above.
		h.reg.RemoveIfCurrent(targetID, h)
		h.bus.Publish(events.Event{Kind: events.KindDeviceDisconnected, TargetID: targetID})
		log.WithField("session_id", h.sessionID).WithField("target_id", targetID).WithField("reason", reason).Info("session: disconnected")
	}
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
