package liveness

import (
	"context"
	"testing"
	"time"

	"github.com/rvmesh/coordinator/internal/events"
	"github.com/rvmesh/coordinator/internal/registry"
)

type fakeSession struct {
	closed bool
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func TestSweepEvictsStaleSession(t *testing.T) {
	reg := registry.New()
	bus := events.NewBus()

	sess := &fakeSession{}
	reg.Register("PicoW1", nil, sess)

	m := New(reg, bus, 5*time.Millisecond, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	defer cancel()

	time.Sleep(40 * time.Millisecond)

	// The monitor closes the stale session and removes its record; Close
	// itself is responsible for publishing DeviceDisconnected exactly once
	// (see internal/session.handler.close), so a bare fakeSession double
	// with no bus access is enough to verify the monitor's half of this.
	if !sess.closed {
		t.Fatalf("expected stale session to be closed")
	}
	if _, ok := reg.Snapshot()["PicoW1"]; ok {
		t.Fatalf("expected stale record removed")
	}
}

func TestSweepLeavesFreshSessionAlone(t *testing.T) {
	reg := registry.New()
	bus := events.NewBus()

	sess := &fakeSession{}
	reg.Register("PicoW1", nil, sess)

	m := New(reg, bus, 5*time.Millisecond, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	defer cancel()

	time.Sleep(40 * time.Millisecond)

	if sess.closed {
		t.Fatalf("expected fresh session to survive the sweep")
	}
	if _, ok := reg.Snapshot()["PicoW1"]; !ok {
		t.Fatalf("expected record to still be present")
	}
}
