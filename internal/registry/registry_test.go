package registry

import (
	"testing"
	"time"

	"github.com/rvmesh/coordinator/internal/protocol"
)

type fakeSession struct {
	closed bool
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func TestRegisterThenSnapshot(t *testing.T) {
	r := New()
	sess := &fakeSession{}

	prior := r.Register("PicoW1", []protocol.Entry{
		{ID: "r1", Label: "Pump", DeviceType: "relay", InitialState: "off"},
	}, sess)
	if prior != nil {
		t.Fatalf("expected no prior session, got %v", prior)
	}

	snap := r.Snapshot()
	dev, ok := snap["PicoW1"]
	if !ok {
		t.Fatalf("expected PicoW1 in snapshot")
	}
	if len(dev.Inventory) != 1 || dev.Inventory[0].ID != "r1" || dev.Inventory[0].State != "off" {
		t.Fatalf("unexpected inventory: %+v", dev.Inventory)
	}
}

func TestReRegisterReturnsPriorSession(t *testing.T) {
	r := New()
	first := &fakeSession{}
	second := &fakeSession{}

	r.Register("PicoW1", []protocol.Entry{{ID: "r1", Label: "Pump", DeviceType: "relay"}}, first)
	prior := r.Register("PicoW1", []protocol.Entry{{ID: "r1", Label: "Pump2", DeviceType: "relay"}}, second)

	if prior != first {
		t.Fatalf("expected prior session to be the first one registered")
	}

	snap := r.Snapshot()
	if snap["PicoW1"].Inventory[0].Label != "Pump2" {
		t.Fatalf("expected second registration to supersede the first")
	}
}

func TestUpdateStatusByLabel(t *testing.T) {
	r := New()
	r.Register("PicoW1", []protocol.Entry{{ID: "r1", Label: "Pump", DeviceType: "relay", InitialState: "off"}}, &fakeSession{})

	if !r.UpdateStatus("PicoW1", "", "Pump", "on") {
		t.Fatalf("expected update to match by label")
	}
	if r.Snapshot()["PicoW1"].Inventory[0].State != "on" {
		t.Fatalf("expected state to become on")
	}
}

func TestUpdateStatusRejectsInvalidRelayState(t *testing.T) {
	r := New()
	r.Register("PicoW1", []protocol.Entry{{ID: "r1", Label: "Pump", DeviceType: "relay", InitialState: "off"}}, &fakeSession{})

	if r.UpdateStatus("PicoW1", "r1", "", "blinking") {
		t.Fatalf("expected invalid relay state to be rejected")
	}
	if r.Snapshot()["PicoW1"].Inventory[0].State != "off" {
		t.Fatalf("state should be unchanged after a rejected update")
	}
}

func TestUpdateStatusIgnoredWhenUnbound(t *testing.T) {
	r := New()
	if r.UpdateStatus("ghost", "r1", "", "on") {
		t.Fatalf("expected update against unknown target_id to be ignored")
	}
}

func TestRemoveReturnsSessionForClosing(t *testing.T) {
	r := New()
	sess := &fakeSession{}
	r.Register("PicoW1", nil, sess)

	closer := r.Remove("PicoW1")
	if closer == nil {
		t.Fatalf("expected a session handle back")
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sess.closed {
		t.Fatalf("expected underlying session to be closed")
	}

	if _, ok := r.Snapshot()["PicoW1"]; ok {
		t.Fatalf("expected record removed from snapshot")
	}
}

func TestStaleBefore(t *testing.T) {
	r := New()
	r.Register("old", nil, &fakeSession{})
	r.Register("fresh", nil, &fakeSession{})

	r.Heartbeat("fresh")

	cutoff := time.Now().Add(-1 * time.Nanosecond)
	time.Sleep(2 * time.Millisecond)
	r.Heartbeat("fresh")

	stale := r.StaleBefore(cutoff)
	found := map[string]bool{}
	for _, d := range stale {
		found[d.TargetID] = true
	}
	if !found["old"] {
		t.Fatalf("expected old to be stale, got %v", stale)
	}
	if found["fresh"] {
		t.Fatalf("expected fresh to not be stale, got %v", stale)
	}
}

func TestGenerationIncreasesOnMutation(t *testing.T) {
	r := New()
	g0 := r.Generation()
	r.Register("PicoW1", nil, &fakeSession{})
	g1 := r.Generation()
	if g1 <= g0 {
		t.Fatalf("expected generation to increase after Register")
	}
}
