package roster

import (
	"testing"
	"time"
)

func TestAssignAndLookup(t *testing.T) {
	r := New(0, 0)
	r.Assign("hr-1", "alice", Primary)

	dev, ok := r.Lookup("hr-1", time.Now())
	if !ok {
		t.Fatal("Lookup did not find assigned device")
	}
	if dev.UserID != "alice" || dev.Role != Primary {
		t.Fatalf("dev = %+v, want userId=alice role=Primary", dev)
	}
}

func TestLivenessWindow(t *testing.T) {
	r := New(0, 0)
	r.Assign("hr-1", "alice", Primary)
	now := time.Now()
	r.MarkSeen("hr-1", now)

	dev, _ := r.Lookup("hr-1", now.Add(4*time.Second))
	if !dev.Live {
		t.Fatal("device should be live within the liveness window")
	}

	dev, _ = r.Lookup("hr-1", now.Add(6*time.Second))
	if dev.Live {
		t.Fatal("device should not be live past the liveness window")
	}
}

func TestPrimaryBeatsSecondaryClaim(t *testing.T) {
	r := New(0, 0)
	r.Assign("hr-2", "alice", Secondary)
	r.Assign("hr-1", "alice", Primary)

	dev, _ := r.Lookup("hr-1", time.Now())
	if dev.UserID != "alice" {
		t.Fatalf("primary claim should win the userId slot, got %+v", dev)
	}
}

func TestActiveListsOnlyLiveDevices(t *testing.T) {
	r := New(0, 0)
	now := time.Now()
	r.Assign("hr-1", "alice", Primary)
	r.MarkSeen("hr-1", now)
	r.Assign("hr-2", "bob", Primary)
	r.MarkSeen("hr-2", now.Add(-1*time.Minute))

	active := r.Active(now)
	if len(active) != 1 || active[0].DeviceID != "hr-1" {
		t.Fatalf("Active() = %+v, want only hr-1", active)
	}
}

func TestRateLimitAllows(t *testing.T) {
	r := New(1, 1)
	r.Assign("hr-1", "alice", Primary)
	if !r.Allow("hr-1") {
		t.Fatal("first frame should always be allowed")
	}
}
