package core

import "testing"

func TestTrackerGenAndAcknowledge(t *testing.T) {
	tr := NewTracker()
	id := tr.GenPing(Tick(10))
	dist, err := tr.AcknowledgePing(id, Tick(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dist != 5 {
		t.Fatalf("expected dist 5 (rtt 10 / 2), got %v", dist)
	}
	if tr.Pending() != 0 {
		t.Fatalf("expected pending queue empty, got %d", tr.Pending())
	}
}

func TestTrackerUnknownPing(t *testing.T) {
	tr := NewTracker()
	if _, err := tr.AcknowledgePing(PingID(12345), Tick(1)); err != ErrPingUnknown {
		t.Fatalf("expected ErrPingUnknown, got %v", err)
	}
}

func TestTrackerEvictsOldest(t *testing.T) {
	tr := NewTracker()
	tr.max = 2
	first := tr.GenPing(Tick(0))
	tr.GenPing(Tick(1))
	tr.GenPing(Tick(2)) // should evict `first`
	if _, err := tr.AcknowledgePing(first, Tick(3)); err != ErrPingUnknown {
		t.Fatalf("expected evicted ping to be unknown, got %v", err)
	}
}

func TestTrackerDistanceUnmeasured(t *testing.T) {
	tr := NewTracker()
	if d := tr.Distance(); d != -1 {
		t.Fatalf("expected -1 for unmeasured tracker, got %v", d)
	}
}
