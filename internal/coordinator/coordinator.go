// Package coordinator wires the Address Probe, Discovery Responder,
// Session Server, and Liveness Monitor into a single programmatic surface:
// Start, Stop, SendCommand, GetDevices, and an event stream. This
// generalizes the wiring shape of the gRPC OrchestratorServer found
// elsewhere in this codebase's history — one struct owning a registry and
// the components that feed it — to the UDP+TCP protocol this system
// actually speaks.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/rvmesh/coordinator/internal/discovery"
	"github.com/rvmesh/coordinator/internal/events"
	"github.com/rvmesh/coordinator/internal/liveness"
	"github.com/rvmesh/coordinator/internal/logging"
	"github.com/rvmesh/coordinator/internal/registry"
	"github.com/rvmesh/coordinator/internal/session"
)

var log = logging.Component("coordinator")

// Config holds every runtime knob the coordinator exposes, with defaults
// suitable for production use.
type Config struct {
	UDPPort               int
	TCPPort               int
	HeartbeatTimeout      time.Duration
	HeartbeatScanInterval time.Duration
	TCPKeepAliveIdle      time.Duration
	TCPKeepAliveInterval  time.Duration
}

// DefaultConfig returns the stock port and timing defaults.
func DefaultConfig() Config {
	return Config{
		UDPPort:               5000,
		TCPPort:               5001,
		HeartbeatTimeout:      60 * time.Second,
		HeartbeatScanInterval: 10 * time.Second,
		TCPKeepAliveIdle:      30 * time.Second,
		TCPKeepAliveInterval:  10 * time.Second,
	}
}

// Core is the network coordinator's programmatic surface, independent of
// how it is hosted.
type Core struct {
	cfg Config

	registry  *registry.Registry
	bus       *events.Bus
	responder *discovery.Responder
	sessions  *session.Server
	liveness  *liveness.Monitor

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Core but does not start it. serverIP is the value from
// internal/netaddr.Probe(), resolved by the host once at startup.
func New(cfg Config, serverIP string) *Core {
	reg := registry.New()
	bus := events.NewBus()

	return &Core{
		cfg:       cfg,
		registry:  reg,
		bus:       bus,
		responder: discovery.New(cfg.UDPPort, cfg.TCPPort, serverIP),
		sessions: session.New(session.Config{
			TCPPort:           cfg.TCPPort,
			KeepAliveIdle:     cfg.TCPKeepAliveIdle,
			KeepAliveInterval: cfg.TCPKeepAliveInterval,
		}, reg, bus),
		liveness: liveness.New(reg, bus, cfg.HeartbeatScanInterval, cfg.HeartbeatTimeout),
	}
}

// Start begins all four activities under one cancellation scope. If the
// UDP or TCP bind fails, that component alone fails to start: a
// ComponentFailed event is published and the other components keep
// running.
func (c *Core) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.responder.Start(ctx); err != nil {
		log.WithError(err).Error("discovery responder failed to bind, continuing without it")
		c.bus.Publish(events.Event{Kind: events.KindComponentFailed, Component: "discovery", Err: err})
	}

	if err := c.sessions.Start(ctx); err != nil {
		log.WithError(err).Error("session server failed to bind, continuing without it")
		c.bus.Publish(events.Event{Kind: events.KindComponentFailed, Component: "session", Err: err})
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.liveness.Run(ctx)
	}()
}

// Stop cancels the shared scope and waits for every component to tear
// down its sockets.
func (c *Core) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.responder.Stop()
	c.sessions.Stop()
	c.wg.Wait()
	c.bus.Close()
}

// SendCommand dispatches a command frame to target_id's live session.
func (c *Core) SendCommand(targetID, deviceType, label, state string) error {
	return c.sessions.SendCommand(targetID, deviceType, label, state)
}

// GetDevices returns a point-in-time snapshot of every connected
// controller's inventory, safe for external consumers.
func (c *Core) GetDevices() map[string]registry.Snapshot {
	return c.registry.Snapshot()
}

// Subscribe registers an event subscriber. The returned function
// unsubscribes and releases the channel.
func (c *Core) Subscribe() (<-chan events.Event, func()) {
	return c.bus.Subscribe()
}
