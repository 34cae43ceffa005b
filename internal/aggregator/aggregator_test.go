package aggregator

import (
	"testing"

	"github.com/kckern/daylightfit/internal/config"
	"github.com/kckern/daylightfit/internal/zone"
)

func testClassifier() *zone.Classifier {
	return zone.New([]config.ZoneEntry{
		{ID: "a", Min: 160},
		{ID: "b", Min: 140},
		{ID: "c", Min: 0},
	})
}

func TestFoldTickCoinsAndZone(t *testing.T) {
	buckets := map[string]string{"a": "exercise"}
	a := New(30, 5, buckets, testClassifier())

	a.FoldTick([]Reading{{UserID: "alice", HR: 150}})
	snap := a.Snapshot()

	if snap.CoinsTotal != 5 {
		t.Errorf("CoinsTotal = %d, want 5 (round(150/30))", snap.CoinsTotal)
	}
	if snap.ZoneSeconds["exercise"] != 0 {
		t.Errorf("unmapped zone should not accrue bucket time, got %d", snap.ZoneSeconds["exercise"])
	}

	a.FoldTick([]Reading{{UserID: "alice", HR: 165}})
	snap = a.Snapshot()
	if snap.ZoneSeconds["exercise"] != 5 {
		t.Errorf("ZoneSeconds[exercise] = %d, want 5", snap.ZoneSeconds["exercise"])
	}
}

func TestFoldTickMinMaxAvg(t *testing.T) {
	a := New(30, 5, nil, testClassifier())
	a.FoldTick([]Reading{{UserID: "alice", HR: 100}, {UserID: "bob", HR: 120}})
	a.FoldTick([]Reading{{UserID: "alice", HR: 80}})

	snap := a.Snapshot()
	if snap.MinHR != 80 {
		t.Errorf("MinHR = %d, want 80", snap.MinHR)
	}
	if snap.MaxHR != 120 {
		t.Errorf("MaxHR = %d, want 120", snap.MaxHR)
	}
	wantAvg := (100.0 + 120.0 + 80.0) / 3.0
	if avg := snap.AvgHR(); avg != wantAvg {
		t.Errorf("AvgHR = %v, want %v", avg, wantAvg)
	}
}

func TestRestoreReplacesTotals(t *testing.T) {
	a := New(30, 5, nil, testClassifier())
	a.FoldTick([]Reading{{UserID: "alice", HR: 100}})

	a.Restore(Totals{CoinsTotal: 999})
	snap := a.Snapshot()
	if snap.CoinsTotal != 999 {
		t.Errorf("CoinsTotal after Restore = %d, want 999", snap.CoinsTotal)
	}
	if snap.ZoneSeconds == nil {
		t.Errorf("ZoneSeconds should be initialized after Restore, got nil")
	}
}

func TestDeterministicReplay(t *testing.T) {
	readings := [][]Reading{
		{{UserID: "alice", HR: 100}, {UserID: "bob", HR: 150}},
		{{UserID: "alice", HR: 110}},
		{{UserID: "bob", HR: 170}},
	}

	run := func() Totals {
		a := New(30, 5, map[string]string{"a": "exercise", "b": "exercise"}, testClassifier())
		for _, tick := range readings {
			a.FoldTick(tick)
		}
		return a.Snapshot()
	}

	first := run()
	second := run()
	if first.CoinsTotal != second.CoinsTotal || first.AvgHR() != second.AvgHR() {
		t.Fatalf("replay produced different totals: %+v vs %+v", first, second)
	}
}
