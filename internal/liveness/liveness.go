// Package liveness implements the liveness monitor: a ticker-driven sweep,
// independent of socket activity, that evicts any registry record whose
// last_heartbeat has gone stale. The ticker-plus-sweep shape is the same
// one the discovery layer's stale-peer cleanup used (periodic scan,
// delete, notify), here pointed at the consolidated registry instead of a
// bare last-seen map.
package liveness

import (
	"context"
	"time"

	"github.com/rvmesh/coordinator/internal/events"
	"github.com/rvmesh/coordinator/internal/logging"
	"github.com/rvmesh/coordinator/internal/registry"
)

var log = logging.Component("liveness")

// Monitor periodically evicts sessions that have gone silent for longer
// than Timeout.
type Monitor struct {
	reg          *registry.Registry
	bus          *events.Bus
	ScanInterval time.Duration
	Timeout      time.Duration
}

// New creates a Monitor. Pass spec-default ScanInterval=10s, Timeout=60s
// unless configured otherwise.
func New(reg *registry.Registry, bus *events.Bus, scanInterval, timeout time.Duration) *Monitor {
	return &Monitor{reg: reg, bus: bus, ScanInterval: scanInterval, Timeout: timeout}
}

// Run scans on its own ticker until ctx is cancelled. It is meant to be
// run in its own goroutine by the caller.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Monitor) sweep() {
	cutoff := time.Now().Add(-m.Timeout)
	for _, stale := range m.reg.StaleBefore(cutoff) {
		if stale.Session == nil {
			continue
		}
		// RemoveIfCurrent guards against a re-registration that replaced
		// this record between the scan and the evict: if it already lost
		// the race, the registry entry is left alone (it belongs to the
		// newer session now) but the stale session is still closed below.
		m.reg.RemoveIfCurrent(stale.TargetID, stale.Session)

		// Close publishes DeviceDisconnected itself, exactly once per
		// session regardless of how many times Close is called (spec
		// §4.3, §4.4) — the monitor does not publish independently.
		_ = stale.Session.Close()
		log.WithField("target_id", stale.TargetID).Info("liveness: evicted stale session")
	}
}
