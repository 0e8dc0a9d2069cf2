// Package registry holds the single source of truth for connected relay
// controllers: their declared inventory, their live state, and the session
// handle used to reach them. It consolidates what the original orchestrator
// kept as two parallel maps (a device table and a connection table) into
// one record per target_id, as called for by design note 9 ("Double
// bookkeeping of registry + connections") — that is what makes "at most one
// live session per target_id" and "exactly one DeviceDisconnected" provable
// rather than aspirational.
package registry

import (
	"sync"
	"time"

	"github.com/rvmesh/coordinator/internal/protocol"
)

// Closer is the minimal session surface the registry needs in order to
// evict a superseded or stale peer without importing the session package
// (which in turn depends on registry for lookups).
type Closer interface {
	Close() error
}

// Entry is one controllable thing declared by a controller, with live
// runtime state layered on top of its declared defaults.
type Entry struct {
	ID         string
	Label      string
	DeviceType string
	State      string
}

// Device is the consolidated per-target_id record: declared inventory,
// live state, and the session used to reach the peer.
type Device struct {
	TargetID      string
	Inventory     []*Entry
	InventoryByID map[string]*Entry
	LastHeartbeat time.Time
	Session       Closer
}

// SnapshotEntry and Snapshot are the point-in-time, external-consumer-safe
// copies returned by Snapshot.
type SnapshotEntry struct {
	ID         string
	Label      string
	DeviceType string
	State      string
}

type Snapshot struct {
	TargetID  string
	Inventory []SnapshotEntry
}

// Registry is the device table plus connection table, merged, guarded by a
// single mutex over both.
type Registry struct {
	mu         sync.Mutex
	devices    map[string]*Device
	generation uint64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{devices: make(map[string]*Device)}
}

func entriesFromProtocol(declared []protocol.Entry) ([]*Entry, map[string]*Entry) {
	inventory := make([]*Entry, 0, len(declared))
	byID := make(map[string]*Entry, len(declared))
	for _, d := range declared {
		state := d.InitialState
		if state == "" {
			state = "off"
		}
		e := &Entry{
			ID:         d.ID,
			Label:      d.Label,
			DeviceType: d.DeviceType,
			State:      state,
		}
		inventory = append(inventory, e)
		byID[e.ID] = e
	}
	return inventory, byID
}

// Register binds session as the live connection for targetID, replacing
// any prior record for that id (last-writer-wins by target_id). The prior
// session, if any, is returned so the caller can close it outside the lock
// (Close may block on I/O and must never run while the registry mutex is
// held).
func (r *Registry) Register(targetID string, declared []protocol.Entry, session Closer) (prior Closer) {
	inventory, byID := entriesFromProtocol(declared)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.devices[targetID]; ok {
		prior = existing.Session
	}

	r.devices[targetID] = &Device{
		TargetID:      targetID,
		Inventory:     inventory,
		InventoryByID: byID,
		LastHeartbeat: time.Now(),
		Session:       session,
	}
	r.generation++
	return prior
}

// Heartbeat refreshes last_heartbeat for targetID. No-op if unbound.
func (r *Registry) Heartbeat(targetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[targetID]; ok {
		d.LastHeartbeat = time.Now()
		r.generation++
	}
}

// Touch refreshes last_heartbeat the same way Heartbeat does. Any frame on
// a bound session is a liveness signal, not just heartbeat frames; session
// code calls this once per received frame before dispatching on type.
func (r *Registry) Touch(targetID string) {
	r.Heartbeat(targetID)
}

// UpdateStatus locates an entry by id first, then by label, within
// targetID's inventory and applies state. It reports whether a matching
// entry was found; callers ignore the frame silently otherwise.
func (r *Registry) UpdateStatus(targetID, id, label, state string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[targetID]
	if !ok {
		return false
	}

	var entry *Entry
	if id != "" {
		entry = d.InventoryByID[id]
	}
	if entry == nil && label != "" {
		for _, e := range d.Inventory {
			if e.Label == label {
				entry = e
				break
			}
		}
	}
	if entry == nil {
		return false
	}

	if entry.DeviceType == "relay" && !protocol.RelayStates[state] {
		return false
	}

	entry.State = state
	d.LastHeartbeat = time.Now()
	r.generation++
	return true
}

// Remove deletes the record for targetID and returns its session handle
// (nil if it was never registered). Callers close the returned session
// outside any lock they may be holding.
func (r *Registry) Remove(targetID string) Closer {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[targetID]
	if !ok {
		return nil
	}
	delete(r.devices, targetID)
	r.generation++
	return d.Session
}

// RemoveIfCurrent deletes the record for targetID only if it is still
// pointing at expected, atomically with the check. This is what lets a
// session's own close path and the liveness monitor's eviction race
// safely against a concurrent re-registration for the same target_id:
// whichever session is no longer "current" by the time it tries to
// remove itself simply does nothing.
func (r *Registry) RemoveIfCurrent(targetID string, expected Closer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[targetID]
	if !ok || d.Session != expected {
		return false
	}
	delete(r.devices, targetID)
	r.generation++
	return true
}

// StaleDevice pairs a target_id with the session handle observed at scan
// time, so the liveness monitor can evict via RemoveIfCurrent without
// racing a concurrent re-registration.
type StaleDevice struct {
	TargetID string
	Session  Closer
}

// StaleBefore returns every record whose last_heartbeat predates cutoff,
// for the liveness monitor's sweep.
func (r *Registry) StaleBefore(cutoff time.Time) []StaleDevice {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []StaleDevice
	for id, d := range r.devices {
		if d.LastHeartbeat.Before(cutoff) {
			stale = append(stale, StaleDevice{TargetID: id, Session: d.Session})
		}
	}
	return stale
}

// Session returns the live session handle for targetID, for SendCommand's
// connectivity check.
func (r *Registry) Session(targetID string) (Closer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[targetID]
	if !ok {
		return nil, false
	}
	return d.Session, true
}

// Snapshot returns a deep, external-consumer-safe copy of the full
// registry.
func (r *Registry) Snapshot() map[string]Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Snapshot, len(r.devices))
	for id, d := range r.devices {
		entries := make([]SnapshotEntry, 0, len(d.Inventory))
		for _, e := range d.Inventory {
			entries = append(entries, SnapshotEntry{
				ID:         e.ID,
				Label:      e.Label,
				DeviceType: e.DeviceType,
				State:      e.State,
			})
		}
		out[id] = Snapshot{TargetID: id, Inventory: entries}
	}
	return out
}

// Generation returns the current mutation counter, for tests that need to
// observe "something changed" without racing on wall-clock heartbeats.
func (r *Registry) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}
